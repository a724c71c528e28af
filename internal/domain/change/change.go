// Package change models change-feed events and the normalized documents they carry.
package change

import "time"

// OperationType is the kind of write a change event reports.
type OperationType string

const (
	// OpInsert is a new document.
	OpInsert OperationType = "insert"
	// OpUpdate is a partial update.
	OpUpdate OperationType = "update"
	// OpReplace is a full replacement.
	OpReplace OperationType = "replace"
	// OpDelete is a removal. Deletes are never indexed.
	OpDelete OperationType = "delete"
)

// IndexedOperations are the operation kinds a subscription asks the store for.
var IndexedOperations = []OperationType{OpInsert, OpUpdate, OpReplace}

// Indexable reports whether events of this kind carry a document worth indexing.
func (o OperationType) Indexable() bool {
	switch o {
	case OpInsert, OpUpdate, OpReplace:
		return true
	default:
		return false
	}
}

// Event is one change-feed notification with the full post-image of the document.
type Event struct {
	Collection  string
	Operation   OperationType
	DocumentID  string
	Document    Document
	ResumeToken []byte
	ClusterTime time.Time
}
