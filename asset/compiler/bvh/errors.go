package bvh

import (
	"errors"
	"fmt"
)

var (
	ErrCorruptIndex  = errors.New("bvh: corrupt node index")
	ErrMalformedLeaf = errors.New("bvh: malformed leaf")
	ErrCycle         = errors.New("bvh: node reachable more than once")
	ErrTooDeep       = errors.New("bvh: tree exceeds the traversal stack depth")
)

// A ValidationError describes the flattened node that failed validation.
type ValidationError struct {
	Node   int
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: node %d: %s", e.Err.Error(), e.Node, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(node int, err error, format string, args ...interface{}) error {
	return &ValidationError{
		Node:   node,
		Reason: fmt.Sprintf(format, args...),
		Err:    err,
	}
}
