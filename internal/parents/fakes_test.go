package parents

import (
	"context"
	"sort"
	"sync"
)

type fakeSource struct {
	mu      sync.Mutex
	nodes   map[string]Node
	findErr map[string]error
	listErr map[string]error
	finds   map[string]int
	lists   map[string]int
}

func newFakeSource(nodes ...Node) *fakeSource {
	f := &fakeSource{
		nodes:   make(map[string]Node),
		findErr: make(map[string]error),
		listErr: make(map[string]error),
		finds:   make(map[string]int),
		lists:   make(map[string]int),
	}
	for _, node := range nodes {
		f.nodes[node.ID] = node
	}
	return f
}

func (f *fakeSource) FindSyncedNode(_ context.Context, nodeID string) (Node, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds[nodeID]++
	if err := f.findErr[nodeID]; err != nil {
		return Node{}, false, err
	}
	node, ok := f.nodes[nodeID]
	return node, ok, nil
}

func (f *fakeSource) ListChildren(_ context.Context, nodeID string) (Children, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[nodeID]++
	if err := f.listErr[nodeID]; err != nil {
		return Children{}, err
	}
	var children Children
	for _, node := range f.nodes {
		if node.ParentID != nodeID || (node.ParentKind != ParentContainer && node.ParentKind != ParentLeaf) {
			continue
		}
		if node.IsLeaf() {
			children.Leaves = append(children.Leaves, node)
		} else {
			children.Containers = append(children.Containers, node)
		}
	}
	sort.Slice(children.Leaves, func(i, j int) bool { return children.Leaves[i].ID < children.Leaves[j].ID })
	sort.Slice(children.Containers, func(i, j int) bool { return children.Containers[i].ID < children.Containers[j].ID })
	return children, nil
}

func (f *fakeSource) findCount(nodeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finds[nodeID]
}

func (f *fakeSource) totalFinds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.finds {
		total += n
	}
	return total
}

type fakeWriter struct {
	mu      sync.Mutex
	chains  map[string][]string
	writes  map[string]int
	failFor map[string]error
	onWrite func(leafID string)
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		chains:  make(map[string][]string),
		writes:  make(map[string]int),
		failFor: make(map[string]error),
	}
}

func (w *fakeWriter) WriteAncestorChain(_ context.Context, leafID string, chain []string) error {
	w.mu.Lock()
	w.writes[leafID]++
	err := w.failFor[leafID]
	if err == nil {
		w.chains[leafID] = append([]string(nil), chain...)
	}
	onWrite := w.onWrite
	w.mu.Unlock()
	if onWrite != nil {
		onWrite(leafID)
	}
	return err
}

func (w *fakeWriter) chain(leafID string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chains[leafID]
}

func (w *fakeWriter) writeCount(leafID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes[leafID]
}

func leaf(id string, parentKind ParentKind, parentID string) Node {
	return Node{ID: id, Kind: KindLeaf, ParentKind: parentKind, ParentID: parentID}
}

func container(id string, parentKind ParentKind, parentID string) Node {
	return Node{ID: id, Kind: KindContainer, ParentKind: parentKind, ParentID: parentID}
}

func equalChains(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
