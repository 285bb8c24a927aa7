// Package parents maintains the denormalized ancestor chain ("parents"
// field) of every indexed document of a mirrored hierarchical source.
//
// A run expands a set of changed nodes to every leaf below them, resolves
// each leaf's chain by walking parent links through the synced-node store,
// and writes the chain back to the search index once per leaf.
package parents

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NodeKind tells containers (databases, collections) from leaves (pages).
// Only leaves are written to the index.
type NodeKind string

const (
	KindContainer NodeKind = "container"
	KindLeaf      NodeKind = "leaf"
)

// ParentKind is the kind of relation a node has to its parent.
type ParentKind string

const (
	ParentWorkspace ParentKind = "workspace"
	// ParentBlock covers block parents and other opaque relations that are
	// treated as roots.
	ParentBlock     ParentKind = "block"
	ParentContainer ParentKind = "container"
	ParentLeaf      ParentKind = "leaf"
)

// Node is a hierarchy node mirrored from the external source.
type Node struct {
	ID         string     `json:"nodeId"`
	Kind       NodeKind   `json:"nodeKind"`
	ParentKind ParentKind `json:"parentKind"`
	ParentID   string     `json:"parentId,omitempty"`
}

func (n Node) IsLeaf() bool {
	return n.Kind == KindLeaf
}

// Validate checks the caller-facing contract of a seed node.
func (n Node) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: empty node id", ErrInvalidSeed)
	}
	switch n.Kind {
	case KindContainer, KindLeaf:
	default:
		return fmt.Errorf("%w: node %s has unknown kind %q", ErrInvalidSeed, n.ID, n.Kind)
	}
	if (n.ParentKind == ParentContainer || n.ParentKind == ParentLeaf) && n.ParentID == "" {
		return fmt.Errorf("%w: node %s has parent kind %s but no parent id", ErrInvalidSeed, n.ID, n.ParentKind)
	}
	return nil
}

// Children are the locally known children of a node.
type Children struct {
	Containers []Node
	Leaves     []Node
}

// NodeFinder looks up previously synced nodes. found is false when the
// node is not (yet) mirrored.
type NodeFinder interface {
	FindSyncedNode(ctx context.Context, nodeID string) (node Node, found bool, err error)
}

// ChildLister enumerates the locally known children of a node.
type ChildLister interface {
	ListChildren(ctx context.Context, nodeID string) (Children, error)
}

// ChainWriter persists the ancestor chain of a leaf. leafID and the chain
// values are raw node ids; document id mapping belongs to the writer.
type ChainWriter interface {
	WriteAncestorChain(ctx context.Context, leafID string, chain []string) error
}

// Request is one propagation run. An empty CacheKey isolates the run's
// memoization; a stable one shares it across runs.
type Request struct {
	Seeds    []Node
	CacheKey string
}

// NodeError records the failure of a single node.
type NodeError struct {
	NodeID string
	Err    error
}

func (e NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e NodeError) Unwrap() error {
	return e.Err
}

// SubtreeSkipped reports whether the node's children could not be listed.
// The node itself may still have been written when it is a leaf.
func (e NodeError) SubtreeSkipped() bool {
	var lookup *LookupError
	return errors.As(e.Err, &lookup) && lookup.Op == OpListChildren
}

// Result reports a propagation run. Written counts leaves whose chain was
// written. An error entry either marks a leaf that was not written or, when
// SubtreeSkipped is true, a node whose descendants were not reached; a leaf
// whose own child listing failed is counted in Written and also reported
// with SubtreeSkipped.
type Result struct {
	Written int
	Errors  []NodeError
}
