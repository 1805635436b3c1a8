package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/config"
)

type fakePublisher struct {
	calls []string
	err   error
}

func (f *fakePublisher) record(op ingestion.Op, id string) (*ingestion.DocumentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, string(op)+":"+id)
	return &ingestion.DocumentResponse{DocumentID: id, Op: op, Status: ingestion.StatusPending}, nil
}

func (f *fakePublisher) Index(_ context.Context, req *ingestion.DocumentRequest) (*ingestion.DocumentResponse, error) {
	return f.record(ingestion.OpIndex, req.DocumentID)
}

func (f *fakePublisher) Replace(_ context.Context, req *ingestion.DocumentRequest) (*ingestion.DocumentResponse, error) {
	return f.record(ingestion.OpReplace, req.DocumentID)
}

func (f *fakePublisher) Remove(_ context.Context, docID string) (*ingestion.DocumentResponse, error) {
	return f.record(ingestion.OpRemove, docID)
}

func newMux(pub DocumentPublisher) *http.ServeMux {
	h := New(pub, config.DefaultIndexConfig().Fields)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.Index)
	mux.HandleFunc("PUT /api/v1/documents/{id}", h.Replace)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Remove)
	return mux
}

func do(t *testing.T, mux http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestDocumentEndpoints(t *testing.T) {
	pub := &fakePublisher{}
	mux := newMux(pub)

	rec, body := do(t, mux, http.MethodPost, "/api/v1/documents", `{"document_id":"a","fields":{"title":"t","body":"b"}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "PENDING", body["status"])

	rec, _ = do(t, mux, http.MethodPut, "/api/v1/documents/a", `{"fields":{"title":"new"}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec, body = do(t, mux, http.MethodDelete, "/api/v1/documents/a", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "remove", body["op"])

	assert.Equal(t, []string{"index:a", "replace:a", "remove:a"}, pub.calls)
}

func TestDocumentEndpointsRejectBadInput(t *testing.T) {
	pub := &fakePublisher{}
	mux := newMux(pub)

	rec, _ := do(t, mux, http.MethodPost, "/api/v1/documents", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := do(t, mux, http.MethodPost, "/api/v1/documents", `{"document_id":"a","fields":{"colour":"red"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation failed", body["error"])
	assert.Contains(t, body["fields"], "colour")
	assert.Empty(t, pub.calls)
}

func TestDocumentEndpointPublishFailure(t *testing.T) {
	mux := newMux(&fakePublisher{err: errors.New("broker down")})
	rec, _ := do(t, mux, http.MethodDelete, "/api/v1/documents/a", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
