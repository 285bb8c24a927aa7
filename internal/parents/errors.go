package parents

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSeed marks a malformed propagation request.
var ErrInvalidSeed = errors.New("invalid seed")

// UnhandledParentKindError is returned when a node carries a parent kind the
// resolver does not know. It points at a connector or schema bug.
type UnhandledParentKindError struct {
	NodeID     string
	ParentKind ParentKind
}

func (e *UnhandledParentKindError) Error() string {
	return fmt.Sprintf("unhandled parent kind %q on node %s", e.ParentKind, e.NodeID)
}

// CyclicHierarchyError is returned when walking parent links comes back to
// a node already on the walk. Path lists the walk, ending with the repeat.
type CyclicHierarchyError struct {
	Path []string
}

func (e *CyclicHierarchyError) Error() string {
	return fmt.Sprintf("cyclic hierarchy: %s", strings.Join(e.Path, " -> "))
}

// LookupError operations.
const (
	OpFindNode     = "find synced node"
	OpListChildren = "list children"
)

// LookupError wraps a failure of the synced-node store or of child
// enumeration.
type LookupError struct {
	Op     string
	NodeID string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// WriteBackError wraps a failed index write.
type WriteBackError struct {
	NodeID string
	Err    error
}

func (e *WriteBackError) Error() string {
	return fmt.Sprintf("write ancestor chain %s: %v", e.NodeID, e.Err)
}

func (e *WriteBackError) Unwrap() error {
	return e.Err
}
