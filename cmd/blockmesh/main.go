// Command blockmesh generates, verifies and inspects partitioned block
// meshes.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/notargets/blockmesh/codec"
	"github.com/notargets/blockmesh/config"
	"github.com/notargets/blockmesh/ctxlog"
	"github.com/notargets/blockmesh/mesh"
	"github.com/notargets/blockmesh/partitions"
	"github.com/notargets/blockmesh/pipeline"
)

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run builds the command tree and executes it with args, writing command
// output to outW. Log records go to stderr.
func run(outW io.Writer, args []string) error {
	root := newRootCmd(outW, os.Stderr)
	root.SetArgs(args)
	return root.Execute()
}

type rootOptions struct {
	logLevel string
}

func newRootCmd(outW, logW io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "blockmesh",
		Short:         "Structured block mesh generator and partitioner",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logrus.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			logger := logrus.New()
			logger.SetOutput(logW)
			logger.SetLevel(level)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(ctxlog.WithLogger(ctx, logger))
			return nil
		},
	}
	root.SetOut(outW)
	root.SetErr(outW)
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	root.AddCommand(newGenerateCmd(), newVerifyCmd(), newInfoCmd())
	return root
}

type generateFlags struct {
	output     string
	partitions int
	direction  int
	tolerance  float64
	strategy   string
}

// addPipelineFlags registers the flags that override the partition and
// tolerance settings of a topology file.
func addPipelineFlags(cmd *cobra.Command, f *generateFlags) {
	defaults := pipeline.DefaultOptions()
	cmd.Flags().IntVarP(&f.partitions, "partitions", "p", defaults.Partitions, "number of partitions")
	cmd.Flags().IntVarP(&f.direction, "direction", "d", defaults.Direction, "partition axis (0=x, 1=y, 2=z)")
	cmd.Flags().Float64Var(&f.tolerance, "tolerance", defaults.Tolerance, "absolute node coincidence tolerance")
	cmd.Flags().StringVar(&f.strategy, "strategy", defaults.Strategy.String(), "partition strategy (axis, block, roundrobin)")
}

// loadTopology reads a topology file and applies the flags that were set
// explicitly on the command line.
func loadTopology(cmd *cobra.Command, path string, f *generateFlags) (*pipeline.Result, error) {
	ctx := cmd.Context()
	topo, opts, err := config.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("partitions") {
		opts.Partitions = f.partitions
	}
	if flags.Changed("direction") {
		opts.Direction = f.direction
	}
	if flags.Changed("tolerance") {
		opts.Tolerance = f.tolerance
	}
	if flags.Changed("strategy") {
		s, err := partitions.ParseStrategy(f.strategy)
		if err != nil {
			return nil, err
		}
		opts.Strategy = s
	}
	return pipeline.Run(ctx, topo, opts)
}

func newGenerateCmd() *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate <topology.hcl>",
		Short: "Generate, partition and write a mesh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := loadTopology(cmd, args[0], f)
			if err != nil {
				return err
			}
			if err := codec.WriteFile(f.output, res.Mesh); err != nil {
				return err
			}
			ctxlog.FromContext(cmd.Context()).WithField("file", f.output).Info("mesh written")
			printSummary(cmd.OutOrStdout(), res.Mesh)
			printLayout(cmd.OutOrStdout(), res.Layout)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.output, "output", "o", "mesh.bmsh", "output mesh file")
	addPipelineFlags(cmd, f)
	return cmd
}

func newVerifyCmd() *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "verify <topology.hcl>",
		Short: "Generate a mesh and check that it survives an encode/decode round trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := loadTopology(cmd, args[0], f)
			if err != nil {
				return err
			}
			ghosts, err := res.Layout.GhostConnector()
			if err != nil {
				return err
			}
			if err := ghosts.Verify(); err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := codec.Encode(&buf, res.Mesh); err != nil {
				return err
			}
			decoded, err := codec.Decode(&buf)
			if err != nil {
				return err
			}
			if err := codec.Diff(res.Mesh, decoded); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	addPipelineFlags(cmd, f)
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <mesh.bmsh>",
		Short: "Print a summary of a mesh file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := codec.ReadFile(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			printSummary(w, m)
			for r := 0; r < m.NumRanks; r++ {
				v, err := m.PartitionView(r)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "rank %d: %d elements, %d owned nodes, %d ghost nodes\n",
					r, len(v.Elements), v.NumOwned, len(v.Nodes)-v.NumOwned)
			}
			return nil
		},
	}
}

func printSummary(w io.Writer, m *mesh.Mesh) {
	fmt.Fprintf(w, "dimension:    %d\n", m.Dim)
	fmt.Fprintf(w, "nodes:        %d\n", m.NumNodes())
	fmt.Fprintf(w, "global nodes: %d\n", m.NumGlobalNodes())
	fmt.Fprintf(w, "cells:        %d\n", m.NumCells())
	fmt.Fprintf(w, "elements:     %d\n", m.NumElements())
	fmt.Fprintf(w, "periodic:     %d\n", len(m.Periodic))
	fmt.Fprintf(w, "partitions:   %d along axis %d\n", m.NumRanks, m.Axis)
	for _, r := range m.Regions {
		fmt.Fprintf(w, "region %-12s %d elements\n", r.Name, len(r.Elements))
	}
}

// printLayout lists the element groups of every partition.
func printLayout(w io.Writer, layout *partitions.PartitionLayout) {
	for _, p := range layout.Partitions {
		groups := make([]string, len(p.TypeGroups))
		for i, g := range p.TypeGroups {
			groups[i] = fmt.Sprintf("%v %d", g.ElementType, g.Count)
		}
		fmt.Fprintf(w, "rank %d types: %s\n", p.ID, strings.Join(groups, ", "))
	}
}
