package search

import (
	"context"
	"errors"
	"fmt"
	"log"
)

const reindexBatch = 1000

// ErrNoChainStore is returned by writes of a Service built without stores.
var ErrNoChainStore = errors.New("no chain store configured")

// RecordStore is the durable copy of written chains.
type RecordStore interface {
	ChainStore
	LoadAllRecords(ctx context.Context) ([]ParentsRecord, error)
}

// IndexStore is the search index serving the parents filter.
type IndexStore interface {
	ChainStore
	WriteRecords(ctx context.Context, records []ParentsRecord) error
}

// Service writes ancestor chains: first to the durable record, then to the
// search index. While the index is down, writes only land in the record
// and ReindexAll replays them once it is back.
type Service struct {
	record RecordStore
	index  IndexStore
	prefix string
}

// NewService creates the chain writer. Either store may be nil; with both
// nil every write fails with ErrNoChainStore.
func NewService(record RecordStore, index IndexStore, prefix string) *Service {
	return &Service{record: record, index: index, prefix: prefix}
}

// WriteAncestorChain stores chain for the document of leafID.
func (s *Service) WriteAncestorChain(ctx context.Context, leafID string, chain []string) error {
	if s.record == nil && s.index == nil {
		return ErrNoChainStore
	}
	record := ParentsRecord{
		ID:      DocumentID(s.prefix, leafID),
		NodeID:  leafID,
		Parents: chain,
	}

	if s.record != nil {
		if err := s.record.WriteRecord(ctx, record); err != nil {
			return err
		}
	}
	if s.index == nil {
		return nil
	}
	if !s.index.Healthy() {
		if s.record != nil {
			// Replayed by ReindexAll on recovery.
			return nil
		}
		return fmt.Errorf("search index unavailable")
	}
	return s.index.WriteRecord(ctx, record)
}

// DocumentID maps a node id to its document id.
func (s *Service) DocumentID(nodeID string) string {
	return DocumentID(s.prefix, nodeID)
}

// NodeID maps a document id back to its node id.
func (s *Service) NodeID(documentID string) (string, bool) {
	return NodeIDFromDocument(s.prefix, documentID)
}

// ReindexAll pushes every recorded chain into the index.
func (s *Service) ReindexAll(ctx context.Context) error {
	if s.record == nil || s.index == nil || !s.index.Healthy() {
		return nil
	}
	records, err := s.record.LoadAllRecords(ctx)
	if err != nil {
		return fmt.Errorf("reindex load: %w", err)
	}
	for start := 0; start < len(records); start += reindexBatch {
		end := min(start+reindexBatch, len(records))
		if err := s.index.WriteRecords(ctx, records[start:end]); err != nil {
			return fmt.Errorf("reindex records: %w", err)
		}
	}
	log.Printf("search: reindexed %d documents", len(records))
	return nil
}
