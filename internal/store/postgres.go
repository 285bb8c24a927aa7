package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lineage/internal/parents"
)

// PostgresStore reads and records the synced nodes of one data source.
// It serves as both the synced-node store and the child enumeration source
// of a propagation run.
type PostgresStore struct {
	db         *sql.DB
	dataSource string
}

var (
	_ parents.NodeFinder  = (*PostgresStore)(nil)
	_ parents.ChildLister = (*PostgresStore)(nil)
)

func NewPostgresStore(db *sql.DB, dataSource string) *PostgresStore {
	return &PostgresStore{db: db, dataSource: dataSource}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) DataSource() string {
	return s.dataSource
}

const selectNode = `
	SELECT data_source, node_id, node_kind, parent_kind, parent_id, last_seen_at
	FROM synced_nodes
`

func (s *PostgresStore) FindSyncedNode(ctx context.Context, nodeID string) (parents.Node, bool, error) {
	row := s.db.QueryRowContext(ctx, selectNode+`WHERE data_source = $1 AND node_id = $2`, s.dataSource, nodeID)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return parents.Node{}, false, nil
	}
	if err != nil {
		return parents.Node{}, false, fmt.Errorf("find synced node: %w", err)
	}
	return node.Node(), true, nil
}

func (s *PostgresStore) ListChildren(ctx context.Context, nodeID string) (parents.Children, error) {
	rows, err := s.db.QueryContext(ctx, selectNode+`
		WHERE data_source = $1
			AND parent_id = $2
			AND parent_kind IN ('container', 'leaf')
		ORDER BY node_id
	`, s.dataSource, nodeID)
	if err != nil {
		return parents.Children{}, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var children parents.Children
	for rows.Next() {
		row, err := scanNode(rows)
		if err != nil {
			return parents.Children{}, fmt.Errorf("scan child: %w", err)
		}
		node := row.Node()
		if node.IsLeaf() {
			children.Leaves = append(children.Leaves, node)
		} else {
			children.Containers = append(children.Containers, node)
		}
	}
	if err := rows.Err(); err != nil {
		return parents.Children{}, fmt.Errorf("iterate children: %w", err)
	}
	return children, nil
}

// GetNodes loads the given nodes; ids that are not synced are skipped.
func (s *PostgresStore) GetNodes(ctx context.Context, nodeIDs []string) ([]parents.Node, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, selectNode+`
		WHERE data_source = $1 AND node_id = ANY($2)
		ORDER BY node_id
	`, s.dataSource, nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("get nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]parents.Node, 0, len(nodeIDs))
	for rows.Next() {
		row, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, row.Node())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}

// UpsertNode records a node as seen by the sync process.
func (s *PostgresStore) UpsertNode(ctx context.Context, node parents.Node) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO synced_nodes (data_source, node_id, node_kind, parent_kind, parent_id, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (data_source, node_id) DO UPDATE SET
			node_kind = EXCLUDED.node_kind,
			parent_kind = EXCLUDED.parent_kind,
			parent_id = EXCLUDED.parent_id,
			last_seen_at = EXCLUDED.last_seen_at
	`, s.dataSource, node.ID, string(node.Kind), string(node.ParentKind), nullableParent(node.ParentID))
	if err != nil {
		return fmt.Errorf("upsert synced node: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteNode(ctx context.Context, nodeID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM synced_nodes WHERE data_source = $1 AND node_id = $2`, s.dataSource, nodeID)
	if err != nil {
		return fmt.Errorf("delete synced node: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (SyncedNode, error) {
	var node SyncedNode
	err := row.Scan(&node.DataSource, &node.NodeID, &node.NodeKind, &node.ParentKind, &node.ParentID, &node.LastSeenAt)
	return node, err
}
