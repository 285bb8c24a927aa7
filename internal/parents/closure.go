package parents

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const defaultExpandConcurrency = 4

// Expander discovers every leaf below a set of seed nodes.
type Expander struct {
	lister      ChildLister
	concurrency int
}

func NewExpander(lister ChildLister, concurrency int) *Expander {
	if concurrency <= 0 {
		concurrency = defaultExpandConcurrency
	}
	return &Expander{lister: lister, concurrency: concurrency}
}

// Closure is the result of an expansion: the distinct leaves reached, in
// discovery order, and the nodes whose children could not be listed.
type Closure struct {
	Leaves []Node
	Errors []NodeError
}

// Expand walks the hierarchy breadth-first from seeds. Every node is visited
// at most once, keyed by id, which also absorbs cycles in the source data.
// Children of one level are listed concurrently; the discovered set is only
// touched between levels. A failed child listing is recorded and the walk
// continues without that node's subtree. The returned error is only ever
// the context's.
func (e *Expander) Expand(ctx context.Context, seeds []Node) (Closure, error) {
	var closure Closure
	discovered := make(map[string]struct{}, len(seeds))
	frontier := make([]Node, 0, len(seeds))
	for _, seed := range seeds {
		if _, ok := discovered[seed.ID]; ok {
			continue
		}
		discovered[seed.ID] = struct{}{}
		frontier = append(frontier, seed)
	}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return closure, err
		}

		children := make([]Children, len(frontier))
		errs := make([]error, len(frontier))
		var g errgroup.Group
		g.SetLimit(e.concurrency)
		for i, node := range frontier {
			g.Go(func() error {
				children[i], errs[i] = e.lister.ListChildren(ctx, node.ID)
				return nil
			})
		}
		_ = g.Wait()

		var next []Node
		for i, node := range frontier {
			if node.IsLeaf() {
				closure.Leaves = append(closure.Leaves, node)
			}
			if errs[i] != nil {
				closure.Errors = append(closure.Errors, NodeError{
					NodeID: node.ID,
					Err:    &LookupError{Op: OpListChildren, NodeID: node.ID, Err: errs[i]},
				})
				continue
			}
			for _, group := range [][]Node{children[i].Leaves, children[i].Containers} {
				for _, child := range group {
					if _, ok := discovered[child.ID]; ok {
						continue
					}
					discovered[child.ID] = struct{}{}
					next = append(next, child)
				}
			}
		}
		frontier = next
	}
	return closure, nil
}
