package parents

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Resolver computes ancestor chains. One Resolver serves one propagation
// run: chains are memoized in cache under scope, and store lookups are
// de-duplicated for the Resolver's lifetime so a shared ancestor is fetched
// once however many leaves sit below it.
type Resolver struct {
	finder NodeFinder
	cache  Cache
	scope  string

	flight  singleflight.Group
	mu      sync.Mutex
	lookups map[string]lookupResult
}

type lookupResult struct {
	node  Node
	found bool
}

func NewResolver(finder NodeFinder, cache Cache, scope string) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Resolver{
		finder:  finder,
		cache:   cache,
		scope:   scope,
		lookups: make(map[string]lookupResult),
	}
}

// Resolve returns node's ancestor chain, self first and root last.
//
// Workspace and block parents end the chain, as does a parent that is not
// in the synced-node store. An unknown parent kind fails with
// *UnhandledParentKindError and a loop in parent links with
// *CyclicHierarchyError. Store failures are returned as *LookupError.
func (r *Resolver) Resolve(ctx context.Context, node Node) ([]string, error) {
	chain, _, err := r.resolve(ctx, node, nil)
	return chain, err
}

// resolve reports whether the chain was cut short by a parent missing from
// the store. Such chains are not cached: the parent may be synced before the
// next run sharing the scope, and the per-Resolver lookup memo already keeps
// the missing parent from being fetched twice within a run.
func (r *Resolver) resolve(ctx context.Context, node Node, path []string) ([]string, bool, error) {
	for _, id := range path {
		if id == node.ID {
			cycle := append(append([]string(nil), path...), node.ID)
			return nil, false, &CyclicHierarchyError{Path: cycle}
		}
	}
	if chain, ok := r.cached(ctx, node.ID); ok {
		return chain, false, nil
	}

	chain := []string{node.ID}
	truncated := false
	switch node.ParentKind {
	case ParentWorkspace, ParentBlock:
	case ParentContainer, ParentLeaf:
		if node.ParentID == "" {
			break
		}
		if parentChain, ok := r.cached(ctx, node.ParentID); ok {
			chain = append(chain, parentChain...)
			break
		}
		parent, found, err := r.lookup(ctx, node.ParentID)
		if err != nil {
			return nil, false, err
		}
		if !found {
			// Parent not synced yet or outside the synced scope.
			truncated = true
			break
		}
		parentChain, parentTruncated, err := r.resolve(ctx, parent, append(path, node.ID))
		if err != nil {
			return nil, false, err
		}
		chain = append(chain, parentChain...)
		truncated = parentTruncated
	default:
		return nil, false, &UnhandledParentKindError{NodeID: node.ID, ParentKind: node.ParentKind}
	}

	if truncated {
		return chain, true, nil
	}
	if err := r.cache.Set(ctx, r.scope, node.ID, chain); err != nil {
		log.Printf("parents: cache chain %s: %v", node.ID, err)
	}
	return chain, false, nil
}

// cached treats a failing cache as a miss.
func (r *Resolver) cached(ctx context.Context, nodeID string) ([]string, bool) {
	chain, ok, err := r.cache.Get(ctx, r.scope, nodeID)
	if err != nil {
		log.Printf("parents: read cached chain %s: %v", nodeID, err)
		return nil, false
	}
	return chain, ok
}

func (r *Resolver) lookup(ctx context.Context, nodeID string) (Node, bool, error) {
	if res, ok := r.memoizedLookup(nodeID); ok {
		return res.node, res.found, nil
	}
	v, err, _ := r.flight.Do(nodeID, func() (any, error) {
		if res, ok := r.memoizedLookup(nodeID); ok {
			return res, nil
		}
		node, found, err := r.finder.FindSyncedNode(ctx, nodeID)
		if err != nil {
			storeLookupsTotal.WithLabelValues("error").Inc()
			return nil, &LookupError{Op: OpFindNode, NodeID: nodeID, Err: err}
		}
		if found {
			storeLookupsTotal.WithLabelValues("found").Inc()
		} else {
			storeLookupsTotal.WithLabelValues("not_found").Inc()
		}
		res := lookupResult{node: node, found: found}
		r.mu.Lock()
		r.lookups[nodeID] = res
		r.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return Node{}, false, err
	}
	res := v.(lookupResult)
	return res.node, res.found, nil
}

func (r *Resolver) memoizedLookup(nodeID string) (lookupResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.lookups[nodeID]
	return res, ok
}
