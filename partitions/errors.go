package partitions

import "fmt"

// PartitionError reports a degenerate partition request. It is raised
// before any element is assigned.
type PartitionError struct {
	NumPartitions int
	NumCells      int
	Axis          int
	Reason        string
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition: %d partitions of %d cells along axis %d: %s",
		e.NumPartitions, e.NumCells, e.Axis, e.Reason)
}
