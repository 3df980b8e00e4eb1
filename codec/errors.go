package codec

import "fmt"

// CodecError reports a corrupt or incompatible mesh file, or a mismatch
// found by Diff. Node and Element are -1 when not applicable.
type CodecError struct {
	Stage   string
	Node    int
	Element int
	Reason  string
}

func (e *CodecError) Error() string {
	msg := "codec: " + e.Stage
	if e.Node >= 0 {
		msg += fmt.Sprintf(": node %d", e.Node)
	}
	if e.Element >= 0 {
		msg += fmt.Sprintf(": element %d", e.Element)
	}
	return msg + ": " + e.Reason
}

func codecErr(stage string, node, element int, format string, args ...any) error {
	return &CodecError{
		Stage:   stage,
		Node:    node,
		Element: element,
		Reason:  fmt.Sprintf(format, args...),
	}
}
