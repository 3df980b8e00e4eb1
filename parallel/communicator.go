// Package parallel runs lock-step collective computations over in-process
// ranks and assigns canonical global node indices.
package parallel

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/blockmesh/ctxlog"
)

// Communicator is the view one rank has of a collective. Every rank must
// make the same sequence of collective calls.
type Communicator interface {
	Rank() int
	Size() int
	// Barrier blocks until every rank has reached it.
	Barrier(ctx context.Context) error
	// Exchange contributes v and returns the contributions of all ranks in
	// rank order.
	Exchange(ctx context.Context, v any) ([]any, error)
}

// World is the shared state of a group of in-process ranks.
type World struct {
	size int

	mu    sync.Mutex
	phase *phase
}

// phase is one collective step. values is written under World.mu and read
// only after done is closed.
type phase struct {
	arrived int
	values  []any
	done    chan struct{}
}

func newPhase(size int) *phase {
	return &phase{values: make([]any, size), done: make(chan struct{})}
}

// NewWorld creates a world of size ranks.
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("parallel: world size %d must be positive", size)
	}
	return &World{size: size, phase: newPhase(size)}, nil
}

// Comm returns the communicator of one rank.
func (w *World) Comm(rank int) *Comm {
	return &Comm{world: w, rank: rank}
}

func (w *World) exchange(ctx context.Context, rank int, v any) ([]any, error) {
	w.mu.Lock()
	ph := w.phase
	ph.values[rank] = v
	ph.arrived++
	if ph.arrived == w.size {
		w.phase = newPhase(w.size)
		close(ph.done)
	}
	w.mu.Unlock()

	select {
	case <-ph.done:
		return ph.values, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Comm is a rank of a World.
type Comm struct {
	world *World
	rank  int
}

// Rank is the id of this rank, in [0, Size).
func (c *Comm) Rank() int { return c.rank }

// Size is the number of ranks in the world.
func (c *Comm) Size() int { return c.world.size }

// Barrier returns once every rank has called it, or when ctx is done.
func (c *Comm) Barrier(ctx context.Context) error {
	_, err := c.world.exchange(ctx, c.rank, nil)
	return err
}

// Exchange contributes v to the current phase and returns every rank's
// contribution in rank order.
func (c *Comm) Exchange(ctx context.Context, v any) ([]any, error) {
	return c.world.exchange(ctx, c.rank, v)
}

// AllGather returns the value contributed by every rank, in rank order.
func AllGather[T any](ctx context.Context, c Communicator, v T) ([]T, error) {
	all, err := c.Exchange(ctx, v)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(all))
	for r, x := range all {
		t, ok := x.(T)
		if !ok {
			return nil, fmt.Errorf("parallel: rank %d contributed %T", r, x)
		}
		out[r] = t
	}
	return out, nil
}

// AllToAll sends send[q] to rank q and returns what every rank sent to the
// caller, in rank order.
func AllToAll[T any](ctx context.Context, c Communicator, send []T) ([]T, error) {
	if len(send) != c.Size() {
		return nil, fmt.Errorf("parallel: rank %d sends %d buffers to %d ranks", c.Rank(), len(send), c.Size())
	}
	all, err := AllGather(ctx, c, send)
	if err != nil {
		return nil, err
	}
	recv := make([]T, len(all))
	for q, s := range all {
		if len(s) != c.Size() {
			return nil, fmt.Errorf("parallel: rank %d sent %d buffers", q, len(s))
		}
		recv[q] = s[c.Rank()]
	}
	return recv, nil
}

// Run executes fn on size ranks, one goroutine each. The first rank to fail
// cancels the context of the others and its error is returned.
func Run(ctx context.Context, size int, fn func(ctx context.Context, c Communicator) error) error {
	w, err := NewWorld(size)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < size; r++ {
		c := w.Comm(r)
		rctx := ctxlog.WithFields(gctx, logrus.Fields{"rank": r})
		g.Go(func() error {
			if err := fn(rctx, c); err != nil {
				return fmt.Errorf("rank %d: %w", c.Rank(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
