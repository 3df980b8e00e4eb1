package topology

import "fmt"

// TopologyError reports a structural problem in the block description. It is
// raised before any mesh is generated.
type TopologyError struct {
	Entity string // point, block, patch or link
	Ref    string // id or name of the offending entity
	Reason string
}

func (e *TopologyError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("topology: %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("topology: %s %s: %s", e.Entity, e.Ref, e.Reason)
}

func topoErr(entity string, ref any, format string, args ...any) error {
	return &TopologyError{
		Entity: entity,
		Ref:    fmt.Sprint(ref),
		Reason: fmt.Sprintf(format, args...),
	}
}
