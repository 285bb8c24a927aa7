package store

import (
	"database/sql"
	"time"

	"lineage/internal/parents"
)

// SyncedNode is a row of synced_nodes: one mirrored node of a data source.
type SyncedNode struct {
	DataSource string
	NodeID     string
	NodeKind   string
	ParentKind string
	ParentID   sql.NullString
	LastSeenAt time.Time
}

func (n SyncedNode) Node() parents.Node {
	return parents.Node{
		ID:         n.NodeID,
		Kind:       parents.NodeKind(n.NodeKind),
		ParentKind: parents.ParentKind(n.ParentKind),
		ParentID:   n.ParentID.String,
	}
}

func nullableParent(parentID string) sql.NullString {
	return sql.NullString{String: parentID, Valid: parentID != ""}
}
