package parents

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultWriteConcurrency = 8

// Options bounds the load a run puts on its adapters.
type Options struct {
	// ExpandConcurrency caps concurrent child listings. Default: 4
	ExpandConcurrency int
	// WriteConcurrency caps concurrent resolve+write of leaves. Default: 8
	WriteConcurrency int
}

// Propagator runs propagation: expand the seeds to their leaf closure,
// resolve each leaf's chain and write it back.
type Propagator struct {
	finder NodeFinder
	lister ChildLister
	writer ChainWriter
	shared Cache
	opts   Options
}

// NewPropagator builds a Propagator. shared backs runs that carry a cache
// key; runs without one always get a private in-memory cache. A nil shared
// cache falls back to an in-memory cache owned by the Propagator.
func NewPropagator(finder NodeFinder, lister ChildLister, writer ChainWriter, shared Cache, opts Options) *Propagator {
	if shared == nil {
		shared = NewMemoryCache()
	}
	if opts.WriteConcurrency <= 0 {
		opts.WriteConcurrency = defaultWriteConcurrency
	}
	return &Propagator{
		finder: finder,
		lister: lister,
		writer: writer,
		shared: shared,
		opts:   opts,
	}
}

// Propagate recomputes and writes the ancestor chain of every leaf at or
// below req.Seeds. Each leaf is resolved and written exactly once per call.
//
// Node failures never stop the run; they are reported in Result.Errors. The
// returned error is non-nil only for invalid seeds (ErrInvalidSeed) or when
// ctx is done, in which case Result still reports the writes that happened.
func (p *Propagator) Propagate(ctx context.Context, req Request) (Result, error) {
	for _, seed := range req.Seeds {
		if err := seed.Validate(); err != nil {
			return Result{}, err
		}
	}

	started := time.Now()
	defer func() {
		propagateDuration.Observe(time.Since(started).Seconds())
	}()

	cache, scope := p.shared, req.CacheKey
	if scope == "" {
		cache, scope = NewMemoryCache(), uuid.NewString()
	}
	resolver := NewResolver(p.finder, cache, scope)

	closure, err := NewExpander(p.lister, p.opts.ExpandConcurrency).Expand(ctx, req.Seeds)
	result := Result{Errors: closure.Errors}
	if err != nil {
		return finish(result), err
	}
	closureLeaves.Observe(float64(len(closure.Leaves)))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.opts.WriteConcurrency)
	for _, leaf := range closure.Leaves {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := p.propagateLeaf(ctx, resolver, leaf)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, NodeError{NodeID: leaf.ID, Err: err})
				return nil
			}
			result.Written++
			return nil
		})
	}
	_ = g.Wait()

	result = finish(result)
	if err := ctx.Err(); err != nil {
		log.Printf("parents: run %s cancelled after %d of %d leaves: %v", scope, result.Written, len(closure.Leaves), err)
		return result, err
	}
	log.Printf("parents: run %s wrote %d of %d leaves (%d errors) in %s",
		scope, result.Written, len(closure.Leaves), len(result.Errors), time.Since(started).Round(time.Millisecond))
	return result, nil
}

func (p *Propagator) propagateLeaf(ctx context.Context, resolver *Resolver, leaf Node) error {
	chain, err := resolver.Resolve(ctx, leaf)
	if err != nil {
		return err
	}
	if err := p.writer.WriteAncestorChain(ctx, leaf.ID, chain); err != nil {
		chainWritesTotal.WithLabelValues("error").Inc()
		return &WriteBackError{NodeID: leaf.ID, Err: err}
	}
	chainWritesTotal.WithLabelValues("ok").Inc()
	return nil
}

// PurgeCache drops every chain memoized under cacheKey in the shared cache.
func (p *Propagator) PurgeCache(ctx context.Context, cacheKey string) error {
	return p.shared.Purge(ctx, cacheKey)
}

func finish(result Result) Result {
	sort.SliceStable(result.Errors, func(i, j int) bool {
		return result.Errors[i].NodeID < result.Errors[j].NodeID
	})
	for _, nodeErr := range result.Errors {
		nodeErrorsTotal.WithLabelValues(errorType(nodeErr.Err)).Inc()
	}
	return result
}

func errorType(err error) string {
	var (
		unhandled *UnhandledParentKindError
		cyclic    *CyclicHierarchyError
		lookup    *LookupError
		writeBack *WriteBackError
	)
	switch {
	case errors.As(err, &unhandled):
		return "unhandled_parent_kind"
	case errors.As(err, &cyclic):
		return "cyclic_hierarchy"
	case errors.As(err, &lookup):
		return "lookup"
	case errors.As(err, &writeBack):
		return "write_back"
	default:
		return "other"
	}
}
