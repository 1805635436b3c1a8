// Package consumer reads document events from Kafka and applies them to the
// shard router: index, replace or remove.
package consumer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/trie-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/postgres"
)

// Index is the set of mutations the consumer applies, implemented by
// shard.Router.
type Index interface {
	IndexDocument(docID string, doc indexer.Document) error
	ReplaceDocument(docID string, doc indexer.Document) error
	RemoveDocument(docID string) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that applies each document
// event to idx. If db is non-nil, the document status is updated in
// PostgreSQL afterwards. m may be nil.
//
// Events that can never succeed (undecodable, unknown op, duplicate index,
// removal of an unknown document, invalid fields) are logged and committed.
// Any other failure is returned so the message is retried.
func HandleMessage(idx Index, db *sql.DB, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			countEvent(m, "unknown", "invalid")
			return nil
		}
		logger.Debug("processing document event",
			"doc_id", event.DocumentID,
			"op", event.Op,
		)

		status := ingestion.StatusIndexed
		switch event.Op {
		case ingestion.OpIndex:
			err = idx.IndexDocument(event.DocumentID, event.Fields)
		case ingestion.OpReplace:
			err = idx.ReplaceDocument(event.DocumentID, event.Fields)
		case ingestion.OpRemove:
			status = ingestion.StatusRemoved
			err = idx.RemoveDocument(event.DocumentID)
		default:
			logger.Error("unknown document event op",
				"op", event.Op,
				"doc_id", event.DocumentID,
			)
			countEvent(m, string(event.Op), "invalid")
			return nil
		}

		if err != nil {
			if permanent(err) {
				logger.Warn("document event rejected",
					"doc_id", event.DocumentID,
					"op", event.Op,
					"error", err,
				)
				updateDocStatus(ctx, db, event.DocumentID, ingestion.StatusFailed, logger)
				countEvent(m, string(event.Op), "rejected")
				return nil
			}
			updateDocStatus(ctx, db, event.DocumentID, ingestion.StatusFailed, logger)
			countEvent(m, string(event.Op), "error")
			return fmt.Errorf("applying %s for document %s: %w", event.Op, event.DocumentID, err)
		}

		updateDocStatus(ctx, db, event.DocumentID, status, logger)
		countEvent(m, string(event.Op), "ok")
		logger.Info("document event applied",
			"doc_id", event.DocumentID,
			"op", event.Op,
		)
		return nil
	}
}

func permanent(err error) bool {
	return errors.Is(err, apperrors.ErrDocumentExists) ||
		errors.Is(err, apperrors.ErrDocumentNotFound) ||
		errors.Is(err, apperrors.ErrFieldAccess) ||
		errors.Is(err, apperrors.ErrInvalidInput)
}

func countEvent(m *metrics.Metrics, op, status string) {
	if m != nil {
		m.IndexEventsTotal.WithLabelValues(op, status).Inc()
	}
}

// updateDocStatus records the outcome in PostgreSQL when db is non-nil.
func updateDocStatus(ctx context.Context, db *sql.DB, docID, status string, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := postgres.MarkStatus(ctx, db, docID, status); err != nil {
		logger.Error("failed to update document status",
			"doc_id", docID,
			"status", status,
			"error", err,
		)
	}
}
