package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/config"
)

var fields = []config.FieldConfig{
	{Name: "title", Boost: 2, Required: true},
	{Name: "body", Boost: 1},
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
	return ve.Fields
}

func TestValidateDocumentRequest(t *testing.T) {
	ok := &ingestion.DocumentRequest{DocumentID: "doc-1", Fields: map[string]string{"title": "t"}}
	assert.NoError(t, ValidateDocumentRequest(ok, fields))

	bad := &ingestion.DocumentRequest{
		DocumentID: " ",
		Fields:     map[string]string{"title": "  ", "color": "red"},
	}
	errs := fieldErrors(t, ValidateDocumentRequest(bad, fields))
	assert.Contains(t, errs, "document_id")
	assert.Contains(t, errs, "title")
	assert.Equal(t, "unknown field", errs["color"])
	assert.NotContains(t, errs, "body")
}

func TestValidateDocumentRequestLimits(t *testing.T) {
	req := &ingestion.DocumentRequest{
		DocumentID: strings.Repeat("x", maxDocumentIDLength+1),
		Fields: map[string]string{
			"title": "t",
			"body":  strings.Repeat("b", maxFieldLength+1),
		},
	}
	errs := fieldErrors(t, ValidateDocumentRequest(req, fields))
	assert.Len(t, errs, 2)
	assert.Contains(t, errs, "document_id")
	assert.Contains(t, errs, "body")
}

func TestValidateDocumentID(t *testing.T) {
	assert.NoError(t, ValidateDocumentID("a"))
	assert.Error(t, ValidateDocumentID(""))
}

func TestValidationErrorOrdersFields(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"title":       "title is required",
		"color":       "unknown field",
		"document_id": "document_id is required",
		"body":        "too long",
	}}
	want := "body:too long; color:unknown field; document_id:document_id is required; title:title is required"
	for i := 0; i < 20; i++ {
		assert.Equal(t, want, err.Error())
	}
}
