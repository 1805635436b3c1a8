package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/trie-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/metrics"
)

// Document is a set of named text fields.
type Document map[string]string

// FieldStat describes one configured field and its length statistics.
type FieldStat struct {
	Name          string  `json:"name"`
	Boost         float64 `json:"boost"`
	TotalLength   int     `json:"total_length"`
	DocCount      int     `json:"doc_count"`
	AverageLength float64 `json:"average_length"`
}

// Stats is a point-in-time view of one engine.
type Stats struct {
	Documents       int         `json:"documents"`
	PendingRemovals int         `json:"pending_removals"`
	Terms           int         `json:"terms"`
	Nodes           int         `json:"nodes"`
	Fields          []FieldStat `json:"fields"`
	Generation      uint64      `json:"generation"`
	Version         string      `json:"version"`
	Snapshot        string      `json:"snapshot,omitempty"`
}

// Engine owns one MemoryIndex and its removed set and serialises access to
// them: mutations take the write lock, queries share the read lock.
type Engine struct {
	mu         sync.RWMutex
	idx        *index.MemoryIndex
	removed    index.RemovedSet
	generation uint64
	dirty      bool
	snapshot   string
	instance   string

	cfg       config.IndexConfig
	params    ranker.Params
	accessors []index.FieldAccessor[Document]
	tokenize  tokenizer.Func
	filter    tokenizer.Filter
	writer    *segment.Writer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	shardID   string
}

type Option func(*Engine)

// WithMetrics reports engine activity to m, labelled with shardID.
func WithMetrics(m *metrics.Metrics, shardID string) Option {
	return func(e *Engine) {
		e.metrics = m
		e.shardID = shardID
	}
}

// WithAnalyzer overrides the tokenizer and token filter.
func WithAnalyzer(tokenize tokenizer.Func, filter tokenizer.Filter) Option {
	return func(e *Engine) {
		e.tokenize = tokenize
		e.filter = filter
	}
}

// NewEngine creates an engine for the configured fields. When cfg.DataDir is
// set the newest readable snapshot in it is loaded.
func NewEngine(cfg config.IndexConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	params := ranker.Params{
		K1:           cfg.K1,
		B:            cfg.B,
		Boosts:       cfg.Boosts(),
		LiveAverages: cfg.LiveAverages,
	}
	idx, err := index.NewMemoryIndex(len(cfg.Fields))
	if err != nil {
		return nil, err
	}
	e := &Engine{
		idx:       idx,
		removed:   index.NewRemovedSet(),
		cfg:       cfg,
		params:    params,
		accessors: fieldAccessors(cfg.Fields),
		tokenize:  tokenizer.Split,
		filter:    tokenizer.Lower,
		logger:    slog.Default().With("component", "indexer"),
		instance:  uuid.NewString(),
	}
	if cfg.Stemming {
		e.filter = tokenizer.Normalize
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.shardID != "" {
		e.logger = e.logger.With("shard_id", e.shardID)
	}
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating index data directory: %w", err)
		}
		e.writer = segment.NewWriter(cfg.DataDir)
		if err := e.loadExistingSnapshot(); err != nil {
			return nil, fmt.Errorf("loading existing snapshot: %w", err)
		}
	}
	e.observe()
	return e, nil
}

func fieldAccessors(fields []config.FieldConfig) []index.FieldAccessor[Document] {
	accessors := make([]index.FieldAccessor[Document], len(fields))
	for i, f := range fields {
		name, required := f.Name, f.Required
		accessors[i] = func(doc Document) (string, error) {
			text, ok := doc[name]
			if !ok && required {
				return "", fmt.Errorf("missing required field %q", name)
			}
			return text, nil
		}
	}
	return accessors
}

// IndexDocument adds doc under docID. A key that is registered, including
// one pending removal, is rejected with ErrDocumentExists.
func (e *Engine) IndexDocument(docID string, doc Document) error {
	if docID == "" {
		return fmt.Errorf("%w: empty document ID", apperrors.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := index.AddDocument(e.idx, e.accessors, e.tokenize, e.filter, docID, doc); err != nil {
		return err
	}
	e.touch()
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}
	e.logger.Debug("document indexed", "doc_id", docID, "documents", e.idx.DocCount())
	return nil
}

// ReplaceDocument indexes doc under docID, first removing and vacuuming any
// document already registered under that key. The new document is checked
// before the old one is dropped.
func (e *Engine) ReplaceDocument(docID string, doc Document) error {
	if docID == "" {
		return fmt.Errorf("%w: empty document ID", apperrors.ErrInvalidInput)
	}
	for i, access := range e.accessors {
		if _, err := access(doc); err != nil {
			return fmt.Errorf("reading field %q of document %q: %w: %w",
				e.cfg.Fields[i].Name, docID, apperrors.ErrFieldAccess, err)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.idx.Document(docID); ok {
		e.idx.RemoveDocument(e.removed, docID)
		e.vacuumLocked()
	}
	if err := index.AddDocument(e.idx, e.accessors, e.tokenize, e.filter, docID, doc); err != nil {
		return err
	}
	e.touch()
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}
	return nil
}

// RemoveDocument marks docID as removed. Its postings stay in the trie until
// the next vacuum, which runs automatically once more than VacuumThreshold
// removals are pending.
func (e *Engine) RemoveDocument(docID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.idx.Document(docID); !ok || e.removed.Has(docID) {
		return fmt.Errorf("removing document %q: %w", docID, apperrors.ErrDocumentNotFound)
	}
	e.idx.RemoveDocument(e.removed, docID)
	e.touch()
	if e.metrics != nil {
		e.metrics.DocsRemovedTotal.Inc()
	}
	if e.cfg.VacuumThreshold > 0 && e.removed.Len() > e.cfg.VacuumThreshold {
		e.vacuumLocked()
	}
	return nil
}

// Vacuum physically purges every pending removal.
func (e *Engine) Vacuum() index.VacuumStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vacuumLocked()
}

func (e *Engine) vacuumLocked() index.VacuumStats {
	pending := e.removed.Len()
	if pending == 0 {
		return index.VacuumStats{}
	}
	start := time.Now()
	stats := e.idx.Vacuum(e.removed)
	e.touch()
	if e.metrics != nil {
		e.metrics.VacuumsTotal.Inc()
		e.metrics.PostingsPurgedTotal.Add(float64(stats.PostingsPurged))
	}
	e.logger.Info("vacuum complete",
		"pending", pending,
		"documents_purged", stats.DocumentsPurged,
		"postings_purged", stats.PostingsPurged,
		"nodes_pruned", stats.NodesPruned,
		"duration", time.Since(start),
	)
	return stats
}

// touch records a mutation. Callers hold the write lock.
func (e *Engine) touch() {
	e.generation++
	e.dirty = true
	e.observe()
}

func (e *Engine) observe() {
	if e.metrics == nil {
		return
	}
	e.metrics.ShardDocCount.WithLabelValues(e.shardID).Set(float64(e.idx.DocCount() - e.removed.Len()))
	e.metrics.PendingRemovals.WithLabelValues(e.shardID).Set(float64(e.removed.Len()))
}

// Search scores live documents against text and returns at most limit
// results (all of them when limit <= 0).
func (e *Engine) Search(ctx context.Context, text string, limit int) (*executor.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return executor.Execute(e.idx, e.params, e.tokenize, e.filter, e.removed, text, limit)
}

// Has reports whether docID is indexed and not pending removal.
func (e *Engine) Has(docID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.idx.Document(docID)
	return ok && !e.removed.Has(docID)
}

// Generation increases with every mutation and snapshot reload.
func (e *Engine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

// Version identifies the indexed content. A clean engine is named by the
// snapshot it matches, which stays stable across restarts and replicas
// reading the same data directory. Unsaved mutations make it specific to
// this process.
func (e *Engine) Version() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.versionLocked()
}

func (e *Engine) versionLocked() string {
	if !e.dirty {
		return e.snapshot
	}
	return fmt.Sprintf("%s+%s/%d", e.snapshot, e.instance, e.generation)
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fieldStats := e.idx.FieldStats()
	fields := make([]FieldStat, len(fieldStats))
	for i, fs := range fieldStats {
		fields[i] = FieldStat{
			Name:          e.cfg.Fields[i].Name,
			Boost:         e.cfg.Fields[i].Boost,
			TotalLength:   fs.TotalLength,
			DocCount:      fs.DocCount,
			AverageLength: fs.Average(),
		}
	}
	return Stats{
		Documents:       e.idx.DocCount() - e.removed.Len(),
		PendingRemovals: e.removed.Len(),
		Terms:           e.idx.TermCount(),
		Nodes:           e.idx.NodeCount(),
		Fields:          fields,
		Generation:      e.generation,
		Version:         e.versionLocked(),
		Snapshot:        e.snapshot,
	}
}

// Flush writes a snapshot when the index changed since the last one. It is a
// no-op for engines without a data directory.
func (e *Engine) Flush() error {
	if e.writer == nil {
		return nil
	}
	e.mu.RLock()
	if !e.dirty {
		e.mu.RUnlock()
		return nil
	}
	snap := segment.Snapshot{
		FieldCount: e.idx.FieldCount(),
		Terms:      e.idx.Terms(),
		Docs:       e.idx.Documents(),
		Removed:    e.removed.Keys(),
	}
	generation := e.generation
	e.mu.RUnlock()

	name, err := e.writer.Write(snap)
	if err != nil {
		e.countSnapshot("write", "error")
		return fmt.Errorf("writing snapshot: %w", err)
	}
	e.countSnapshot("write", "ok")

	e.mu.Lock()
	e.snapshot = name
	if e.generation == generation {
		e.dirty = false
	}
	e.mu.Unlock()

	pruned, err := segment.Prune(e.cfg.DataDir, e.cfg.KeepSnapshots)
	if err != nil {
		e.logger.Warn("pruning old snapshots failed", "error", err)
	}
	e.logger.Info("snapshot flushed",
		"snapshot", name,
		"terms", len(snap.Terms),
		"docs", len(snap.Docs),
		"pending_removals", len(snap.Removed),
		"pruned", pruned,
	)
	return nil
}

// ReloadLatest swaps in the newest snapshot in the data directory if it is
// not the one already loaded. It reports whether a reload happened.
func (e *Engine) ReloadLatest() (bool, error) {
	if e.cfg.DataDir == "" {
		return false, nil
	}
	name, err := segment.Latest(e.cfg.DataDir)
	if err != nil || name == "" {
		return false, err
	}
	e.mu.RLock()
	current := e.snapshot
	e.mu.RUnlock()
	if name == current {
		return false, nil
	}
	if err := e.load(name); err != nil {
		e.countSnapshot("load", "error")
		return false, err
	}
	e.countSnapshot("load", "ok")
	return true, nil
}

// StartReloadLoop calls ReloadLatest every ReloadInterval until ctx is
// cancelled.
func (e *Engine) StartReloadLoop(ctx context.Context) {
	if e.cfg.DataDir == "" || e.cfg.ReloadInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.ReloadInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.ReloadLatest(); err != nil {
					e.logger.Error("snapshot reload failed", "error", err)
				}
			}
		}
	}()
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
		return err
	}
	return nil
}

func (e *Engine) load(name string) error {
	reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
	if err != nil {
		return err
	}
	defer reader.Close()
	if reader.FieldCount() != len(e.cfg.Fields) {
		return fmt.Errorf("%w: snapshot %s has %d fields, engine has %d",
			apperrors.ErrCorruptSnapshot, name, reader.FieldCount(), len(e.cfg.Fields))
	}
	idx, removed, err := reader.Restore()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.idx = idx
	e.removed = removed
	e.snapshot = name
	e.dirty = false
	e.generation++
	e.observe()
	e.mu.Unlock()
	e.logger.Info("snapshot loaded",
		"snapshot", name,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"pending_removals", removed.Len(),
	)
	return nil
}

// loadExistingSnapshot restores the newest snapshot that opens cleanly,
// skipping corrupt ones.
func (e *Engine) loadExistingSnapshot() error {
	names, err := segment.List(e.cfg.DataDir)
	if err != nil {
		return err
	}
	for i := len(names) - 1; i >= 0; i-- {
		if err := e.load(names[i]); err != nil {
			e.countSnapshot("load", "error")
			e.logger.Error("failed to load snapshot, skipping",
				"snapshot", names[i],
				"error", err,
			)
			continue
		}
		e.countSnapshot("load", "ok")
		return nil
	}
	e.logger.Info("no snapshot to recover, starting empty", "data_dir", e.cfg.DataDir)
	return nil
}

func (e *Engine) countSnapshot(op, status string) {
	if e.metrics != nil {
		e.metrics.SnapshotsTotal.WithLabelValues(op, status).Inc()
	}
}
