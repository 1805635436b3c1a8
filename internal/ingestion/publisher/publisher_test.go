package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/kafka"
)

type recordingProducer struct {
	events []kafka.Event
	err    error
}

func (r *recordingProducer) Publish(_ context.Context, event kafka.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func TestPublishKeysEventsByDocumentID(t *testing.T) {
	prod := &recordingProducer{}
	p := New(nil, prod)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	resp, err := p.Index(context.Background(), &ingestion.DocumentRequest{
		DocumentID: "doc-1",
		Fields:     map[string]string{"title": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, &ingestion.DocumentResponse{DocumentID: "doc-1", Op: ingestion.OpIndex, Status: ingestion.StatusPending}, resp)

	_, err = p.Replace(context.Background(), &ingestion.DocumentRequest{DocumentID: "doc-1", Fields: map[string]string{"title": "bye"}})
	require.NoError(t, err)
	_, err = p.Remove(context.Background(), "doc-1")
	require.NoError(t, err)

	require.Len(t, prod.events, 3)
	for _, e := range prod.events {
		assert.Equal(t, "doc-1", e.Key)
	}
	assert.Equal(t, ingestion.DocumentEvent{
		Op:         ingestion.OpIndex,
		DocumentID: "doc-1",
		Fields:     map[string]string{"title": "hello"},
		EmittedAt:  fixed,
	}, prod.events[0].Value)
	assert.Equal(t, ingestion.OpReplace, prod.events[1].Value.(ingestion.DocumentEvent).Op)
	removal := prod.events[2].Value.(ingestion.DocumentEvent)
	assert.Equal(t, ingestion.OpRemove, removal.Op)
	assert.Nil(t, removal.Fields)
}

func TestPublishFailureIsReturned(t *testing.T) {
	boom := errors.New("broker down")
	p := New(nil, &recordingProducer{err: boom})
	_, err := p.Remove(context.Background(), "doc-1")
	assert.ErrorIs(t, err, boom)
}
