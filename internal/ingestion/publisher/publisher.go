// Package publisher records document status in PostgreSQL and publishes
// document events to Kafka for downstream indexing. Events are keyed by
// document ID so every change to one document lands on the same partition
// and is applied in order.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/postgres"
)

// EventPublisher is the subset of the Kafka producer the Publisher needs.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher coordinates status bookkeeping and Kafka event production.
type Publisher struct {
	db       *postgres.Client
	producer EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Publisher. db may be nil, in which case no status is recorded.
func New(db *postgres.Client, producer EventPublisher) *Publisher {
	return &Publisher{
		db:       db,
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
		now:      time.Now,
	}
}

// Index publishes a request to add a new document.
func (p *Publisher) Index(ctx context.Context, req *ingestion.DocumentRequest) (*ingestion.DocumentResponse, error) {
	return p.publish(ctx, ingestion.OpIndex, req.DocumentID, req.Fields)
}

// Replace publishes a request to add or overwrite a document.
func (p *Publisher) Replace(ctx context.Context, req *ingestion.DocumentRequest) (*ingestion.DocumentResponse, error) {
	return p.publish(ctx, ingestion.OpReplace, req.DocumentID, req.Fields)
}

// Remove publishes a request to remove a document.
func (p *Publisher) Remove(ctx context.Context, docID string) (*ingestion.DocumentResponse, error) {
	return p.publish(ctx, ingestion.OpRemove, docID, nil)
}

func (p *Publisher) publish(ctx context.Context, op ingestion.Op, docID string, fields map[string]string) (*ingestion.DocumentResponse, error) {
	if p.db != nil {
		if err := p.db.RecordEvent(ctx, docID, string(op), ingestion.StatusPending); err != nil {
			return nil, fmt.Errorf("recording document %s: %w", docID, err)
		}
	}

	event := kafka.Event{
		Key:     docID,
		Headers: map[string]string{"op": string(op)},
		Value: ingestion.DocumentEvent{
			Op:         op,
			DocumentID: docID,
			Fields:     fields,
			EmittedAt:  p.now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish to kafka, document stuck in PENDING",
			"doc_id", docID,
			"op", op,
			"error", err,
		)
		return nil, fmt.Errorf("publishing %s event for %s: %w", op, docID, err)
	}
	return &ingestion.DocumentResponse{
		DocumentID: docID,
		Op:         op,
		Status:     ingestion.StatusPending,
	}, nil
}
