package search

import (
	"context"
	"strings"
)

// ParentsRecord is what the index stores for a document's ancestry. Parents
// holds raw node ids, self first.
type ParentsRecord struct {
	ID      string   `json:"id"`
	NodeID  string   `json:"nodeId"`
	Parents []string `json:"parents"`
}

// ChainStore persists ancestor chains of indexed documents.
type ChainStore interface {
	WriteRecord(ctx context.Context, record ParentsRecord) error
	Healthy() bool
}

// DocumentID maps a node id to the id of its indexed document.
func DocumentID(prefix, nodeID string) string {
	if prefix == "" {
		return nodeID
	}
	return prefix + "-" + nodeID
}

// NodeIDFromDocument is the inverse of DocumentID. ok is false when
// documentID does not carry prefix.
func NodeIDFromDocument(prefix, documentID string) (nodeID string, ok bool) {
	if prefix == "" {
		return documentID, documentID != ""
	}
	nodeID, ok = strings.CutPrefix(documentID, prefix+"-")
	return nodeID, ok && nodeID != ""
}
