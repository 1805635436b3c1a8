// Package ingestion defines the request/response types and Kafka event schemas
// used by the document ingestion pipeline.
package ingestion

import "time"

// Op is the index operation a DocumentEvent asks for.
type Op string

const (
	OpIndex   Op = "index"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
)

// Document status values recorded in PostgreSQL.
const (
	StatusPending = "PENDING"
	StatusIndexed = "INDEXED"
	StatusRemoved = "REMOVED"
	StatusFailed  = "FAILED"
)

// DocumentRequest is the JSON body accepted by the ingestion HTTP endpoints.
type DocumentRequest struct {
	DocumentID string            `json:"document_id"`
	Fields     map[string]string `json:"fields"`
}

// DocumentResponse is returned to the caller once an event is accepted.
type DocumentResponse struct {
	DocumentID string `json:"document_id"`
	Op         Op     `json:"op"`
	Status     string `json:"status"`
}

// DocumentEvent is the Kafka message payload consumed by the indexer. Fields
// is empty for removals.
type DocumentEvent struct {
	Op         Op                `json:"op"`
	DocumentID string            `json:"document_id"`
	Fields     map[string]string `json:"fields,omitempty"`
	EmittedAt  time.Time         `json:"emitted_at"`
}
