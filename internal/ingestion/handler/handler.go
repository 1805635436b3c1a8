package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/trie-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/logger"
)

// DocumentPublisher turns accepted requests into document events.
type DocumentPublisher interface {
	Index(ctx context.Context, req *ingestion.DocumentRequest) (*ingestion.DocumentResponse, error)
	Replace(ctx context.Context, req *ingestion.DocumentRequest) (*ingestion.DocumentResponse, error)
	Remove(ctx context.Context, docID string) (*ingestion.DocumentResponse, error)
}

type Handler struct {
	publisher DocumentPublisher
	fields    []config.FieldConfig
	logger    *slog.Logger
}

func New(pub DocumentPublisher, fields []config.FieldConfig) *Handler {
	return &Handler{
		publisher: pub,
		fields:    fields,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Index handles POST /api/v1/documents.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	var req ingestion.DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !h.validate(w, validator.ValidateDocumentRequest(&req, h.fields)) {
		return
	}
	resp, err := h.publisher.Index(r.Context(), &req)
	h.respond(w, r, resp, err)
}

// Replace handles PUT /api/v1/documents/{id}.
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	var req ingestion.DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.DocumentID = r.PathValue("id")
	if !h.validate(w, validator.ValidateDocumentRequest(&req, h.fields)) {
		return
	}
	resp, err := h.publisher.Replace(r.Context(), &req)
	h.respond(w, r, resp, err)
}

// Remove handles DELETE /api/v1/documents/{id}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	if !h.validate(w, validator.ValidateDocumentID(docID)) {
		return
	}
	resp, err := h.publisher.Remove(r.Context(), docID)
	h.respond(w, r, resp, err)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) validate(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return false
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
	return false
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, resp *ingestion.DocumentResponse, err error) {
	log := logger.FromContext(r.Context())
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("document event accepted",
		"doc_id", resp.DocumentID,
		"op", resp.Op,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
