package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"lineage/internal/parents"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	return c, s
}

func TestNewRedisCache(t *testing.T) {
	c, s := setupTestRedis(t)
	defer s.Close()
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisCacheBadURL(t *testing.T) {
	if _, err := NewRedisCache("not a url", time.Minute); err == nil {
		t.Error("expected error for invalid url, got nil")
	}
}

func TestSetAndGetChain(t *testing.T) {
	c, s := setupTestRedis(t)
	defer c.Close()
	defer s.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "run-1", "A", []string{"A", "B", "C"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	chain, ok, err := c.Get(ctx, "run-1", "A")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected cached chain")
	}
	if len(chain) != 3 || chain[0] != "A" || chain[2] != "C" {
		t.Errorf("unexpected chain: %v", chain)
	}

	if _, ok, _ := c.Get(ctx, "run-2", "A"); ok {
		t.Error("expected scopes to be isolated")
	}
}

func TestGetMissingChain(t *testing.T) {
	c, s := setupTestRedis(t)
	defer c.Close()
	defer s.Close()

	_, ok, err := c.Get(context.Background(), "run-1", "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("expected miss for unknown node")
	}
}

func TestChainExpires(t *testing.T) {
	c, s := setupTestRedis(t)
	defer c.Close()
	defer s.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "run-1", "A", []string{"A"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, ok, _ := c.Get(ctx, "run-1", "A"); ok {
		t.Error("expected chain to expire")
	}
}

func TestPurgeScope(t *testing.T) {
	c, s := setupTestRedis(t)
	defer c.Close()
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < purgeBatch+10; i++ {
		if err := c.Set(ctx, "batch-1", fmt.Sprintf("n%d", i), []string{"x"}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := c.Set(ctx, "batch-10", "keep", []string{"keep"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := c.Purge(ctx, "batch-1"); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "batch-1", "n0"); ok {
		t.Error("expected purged chain to be gone")
	}
	if _, ok, _ := c.Get(ctx, "batch-10", "keep"); !ok {
		t.Error("expected other scope to survive purge")
	}
}

type countingFinder struct {
	nodes map[string]parents.Node
	finds int
}

func (f *countingFinder) FindSyncedNode(_ context.Context, nodeID string) (parents.Node, bool, error) {
	f.finds++
	node, ok := f.nodes[nodeID]
	return node, ok, nil
}

func TestResolverSharesChainsAcrossResolvers(t *testing.T) {
	c, s := setupTestRedis(t)
	defer c.Close()
	defer s.Close()
	ctx := context.Background()

	finder := &countingFinder{nodes: map[string]parents.Node{
		"db": {ID: "db", Kind: parents.KindContainer, ParentKind: parents.ParentWorkspace},
	}}
	page := parents.Node{ID: "page", Kind: parents.KindLeaf, ParentKind: parents.ParentContainer, ParentID: "db"}

	for i := 0; i < 3; i++ {
		chain, err := parents.NewResolver(finder, c, "nightly").Resolve(ctx, page)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if len(chain) != 2 || chain[0] != "page" || chain[1] != "db" {
			t.Fatalf("unexpected chain: %v", chain)
		}
	}
	if finder.finds != 1 {
		t.Errorf("expected one store lookup across resolvers, got %d", finder.finds)
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Errorf("unexpected escape: %s", got)
	}
}
