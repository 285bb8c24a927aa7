package search

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const DefaultIndex = "lineage_documents"

// Meili writes ancestor chains into a Meilisearch index as partial document
// updates, leaving every other document attribute untouched.
type Meili struct {
	client  meili.ServiceManager
	index   string
	healthy atomic.Bool
	done    chan struct{}
	once    sync.Once

	// onRecover runs after the index comes back from an outage.
	onRecover atomic.Pointer[func()]
}

const healthCheckInterval = 10 * time.Second

// NewMeili creates a Meilisearch client and configures the index.
// An unreachable server is not an error; writes fail until it recovers.
func NewMeili(url, apiKey, index string) *Meili {
	return newMeili(url, apiKey, index, healthCheckInterval)
}

func newMeili(url, apiKey, index string, every time.Duration) *Meili {
	if index == "" {
		index = DefaultIndex
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		index:  index,
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop(every)
	return m
}

// OnRecover registers fn to run whenever the index recovers from an outage.
func (m *Meili) OnRecover(fn func()) {
	m.onRecover.Store(&fn)
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        m.index,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", m.index, err)
	}

	filterable := []interface{}{"parents", "nodeId"}
	if _, err := m.client.Index(m.index).UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", m.index, err)
	}
}

func (m *Meili) healthLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
				if fn := m.onRecover.Load(); fn != nil && *fn != nil {
					go (*fn)()
				}
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	m.once.Do(func() { close(m.done) })
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// WriteRecord enqueues a partial update of the record's document.
func (m *Meili) WriteRecord(ctx context.Context, record ParentsRecord) error {
	return m.WriteRecords(ctx, []ParentsRecord{record})
}

// WriteRecords bulk-updates records.
func (m *Meili) WriteRecords(ctx context.Context, records []ParentsRecord) error {
	if len(records) == 0 {
		return nil
	}
	if !m.healthy.Load() {
		return fmt.Errorf("meilisearch unhealthy")
	}
	if _, err := m.client.Index(m.index).UpdateDocumentsWithContext(ctx, records, nil); err != nil {
		m.healthy.Store(false)
		return fmt.Errorf("meilisearch update documents: %w", err)
	}
	return nil
}
