package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PgChains keeps every written chain in postgres. It is the record the
// Meilisearch index is rebuilt from after an outage.
type PgChains struct {
	db *sql.DB
}

func NewPgChains(db *sql.DB) *PgChains {
	return &PgChains{db: db}
}

// Healthy always returns true; without Postgres the worker is down anyway.
func (p *PgChains) Healthy() bool {
	return true
}

func (p *PgChains) WriteRecord(ctx context.Context, record ParentsRecord) error {
	raw, err := json.Marshal(record.Parents)
	if err != nil {
		return fmt.Errorf("marshal parents: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO document_parents (document_id, node_id, parents, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (document_id) DO UPDATE SET
			node_id = EXCLUDED.node_id,
			parents = EXCLUDED.parents,
			updated_at = EXCLUDED.updated_at
	`, record.ID, record.NodeID, string(raw))
	if err != nil {
		return fmt.Errorf("write document parents: %w", err)
	}
	return nil
}

// Lookup returns the stored record of documentID.
func (p *PgChains) Lookup(ctx context.Context, documentID string) (ParentsRecord, bool, error) {
	var (
		record ParentsRecord
		raw    []byte
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT document_id, node_id, parents FROM document_parents WHERE document_id = $1
	`, documentID).Scan(&record.ID, &record.NodeID, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ParentsRecord{}, false, nil
	}
	if err != nil {
		return ParentsRecord{}, false, fmt.Errorf("lookup document parents: %w", err)
	}
	if err := json.Unmarshal(raw, &record.Parents); err != nil {
		return ParentsRecord{}, false, fmt.Errorf("unmarshal parents: %w", err)
	}
	return record, true, nil
}

// LoadAllRecords returns all stored records for full reindexing.
func (p *PgChains) LoadAllRecords(ctx context.Context) ([]ParentsRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT document_id, node_id, parents FROM document_parents ORDER BY document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load document parents: %w", err)
	}
	defer rows.Close()

	records := make([]ParentsRecord, 0)
	for rows.Next() {
		var (
			record ParentsRecord
			raw    []byte
		)
		if err := rows.Scan(&record.ID, &record.NodeID, &raw); err != nil {
			return nil, fmt.Errorf("scan document parents: %w", err)
		}
		if err := json.Unmarshal(raw, &record.Parents); err != nil {
			return nil, fmt.Errorf("unmarshal parents %s: %w", record.ID, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document parents: %w", err)
	}
	return records, nil
}
