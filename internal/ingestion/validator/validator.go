// Package validator provides input validation for ingestion requests. It
// checks document IDs and field contents against the configured index fields
// and returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/config"
)

const (
	maxDocumentIDLength = 255
	maxFieldLength      = 1048576
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

// Error lists the failures ordered by field name.
func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = fmt.Sprintf("%s:%s", field, e.Fields[field])
	}
	return strings.Join(parts, "; ")
}

// ValidateDocumentID checks that id is non-blank and short enough to key a
// Kafka message and a database row.
func ValidateDocumentID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return &ValidationError{Fields: map[string]string{"document_id": "document_id is required"}}
	case len(id) > maxDocumentIDLength:
		return &ValidationError{Fields: map[string]string{
			"document_id": fmt.Sprintf("document_id must be at most %d characters", maxDocumentIDLength),
		}}
	}
	return nil
}

// ValidateDocumentRequest checks the ID, rejects fields the index does not
// know, and requires every required field to be present and non-blank.
func ValidateDocumentRequest(req *ingestion.DocumentRequest, fields []config.FieldConfig) error {
	errs := make(map[string]string)
	if err := ValidateDocumentID(req.DocumentID); err != nil {
		for k, v := range err.(*ValidationError).Fields {
			errs[k] = v
		}
	}

	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[f.Name] = struct{}{}
		text, ok := req.Fields[f.Name]
		if f.Required && (!ok || strings.TrimSpace(text) == "") {
			errs[f.Name] = fmt.Sprintf("%s is required", f.Name)
		}
	}
	for name, text := range req.Fields {
		if _, ok := known[name]; !ok {
			errs[name] = "unknown field"
			continue
		}
		if len(text) > maxFieldLength {
			errs[name] = fmt.Sprintf("%s must be at most %d characters", name, maxFieldLength)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
