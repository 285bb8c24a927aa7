package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const taskInfo = `{"taskUid":1,"indexUid":"lineage_documents","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2024-01-01T00:00:00Z"}`

type fakeMeiliServer struct {
	mu        sync.Mutex
	healthy   bool
	documents [][]ParentsRecord
	requests  []string
}

func (f *fakeMeiliServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/health" {
		if !f.healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"message":"down","code":"internal","type":"internal","link":""}`)
			return
		}
		_, _ = io.WriteString(w, `{"status":"available"}`)
		return
	}

	if r.Method == http.MethodPut && r.URL.Path == "/indexes/lineage_documents/documents" {
		var records []ParentsRecord
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &records); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.documents = append(f.documents, records)
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, taskInfo)
}

func (f *fakeMeiliServer) sawRequest(request string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == request {
			return true
		}
	}
	return false
}

func TestMeiliWritesPartialDocuments(t *testing.T) {
	fake := &fakeMeiliServer{healthy: true}
	server := httptest.NewServer(fake)
	defer server.Close()

	m := NewMeili(server.URL, "key", "")
	defer m.Close()
	if !m.Healthy() {
		t.Fatal("expected meili to be healthy")
	}
	if !fake.sawRequest("POST /indexes") {
		t.Error("expected index to be created")
	}

	record := ParentsRecord{ID: "notion-p1", NodeID: "p1", Parents: []string{"p1", "db"}}
	if err := m.WriteRecord(context.Background(), record); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.documents) != 1 || len(fake.documents[0]) != 1 {
		t.Fatalf("expected one document update, got %v", fake.documents)
	}
	got := fake.documents[0][0]
	if got.ID != "notion-p1" || len(got.Parents) != 2 || got.Parents[1] != "db" {
		t.Errorf("unexpected document: %+v", got)
	}
}

func TestMeiliUnhealthyRejectsWrites(t *testing.T) {
	fake := &fakeMeiliServer{healthy: false}
	server := httptest.NewServer(fake)
	defer server.Close()

	m := NewMeili(server.URL, "key", "")
	defer m.Close()
	if m.Healthy() {
		t.Fatal("expected meili to be unhealthy")
	}
	if err := m.WriteRecord(context.Background(), ParentsRecord{ID: "notion-p1"}); err == nil {
		t.Error("expected write to fail while unhealthy")
	}
}

func TestMeiliWriteRecordsEmpty(t *testing.T) {
	m := &Meili{done: make(chan struct{})}
	if err := m.WriteRecords(context.Background(), nil); err != nil {
		t.Errorf("expected no-op for empty batch, got %v", err)
	}
	m.Close()
	m.Close()
}

func TestMeiliRunsRecoveryHook(t *testing.T) {
	fake := &fakeMeiliServer{healthy: false}
	server := httptest.NewServer(fake)
	defer server.Close()

	m := newMeili(server.URL, "key", "", 10*time.Millisecond)
	defer m.Close()

	recovered := make(chan struct{}, 1)
	m.OnRecover(func() {
		select {
		case recovered <- struct{}{}:
		default:
		}
	})

	fake.mu.Lock()
	fake.healthy = true
	fake.mu.Unlock()

	select {
	case <-recovered:
	case <-time.After(2 * time.Second):
		t.Fatal("expected recovery hook to run")
	}
	if !m.Healthy() {
		t.Error("expected meili to be healthy after recovery")
	}
}
