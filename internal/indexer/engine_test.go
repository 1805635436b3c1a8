package indexer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/trie-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/metrics"
)

func testConfig(dataDir string) config.IndexConfig {
	cfg := config.DefaultIndexConfig()
	cfg.DataDir = dataDir
	cfg.Stemming = false
	cfg.Fields = []config.FieldConfig{
		{Name: "title", Boost: 2, Required: true},
		{Name: "body", Boost: 1},
	}
	return cfg
}

func newEngine(t *testing.T, cfg config.IndexConfig, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, opts...)
	require.NoError(t, err)
	return e
}

func ids(t *testing.T, e *Engine, text string) []string {
	t.Helper()
	res, err := e.Search(context.Background(), text, 0)
	require.NoError(t, err)
	out := make([]string, 0, len(res.Results))
	for _, r := range res.Results {
		out = append(out, r.DocID)
	}
	return out
}

func TestEngineIndexAndSearch(t *testing.T) {
	e := newEngine(t, testConfig(""))
	require.NoError(t, e.IndexDocument("go", Document{"title": "Go", "body": "a language for servers"}))
	require.NoError(t, e.IndexDocument("rust", Document{"title": "Rust", "body": "a language without a garbage collector"}))
	require.NoError(t, e.IndexDocument("tries", Document{"title": "Tries", "body": "go read about prefix trees"}))

	assert.Equal(t, []string{"go", "tries"}, ids(t, e, "go"))
	assert.ElementsMatch(t, []string{"go", "rust"}, ids(t, e, "lang"))
	assert.Empty(t, ids(t, e, "python"))

	res, err := e.Search(context.Background(), "language", 1)
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)
	assert.Equal(t, 2, res.TotalHits)
}

func TestEngineRequiredFieldAndDuplicates(t *testing.T) {
	e := newEngine(t, testConfig(""))

	err := e.IndexDocument("x", Document{"body": "no title here"})
	assert.ErrorIs(t, err, apperrors.ErrFieldAccess)
	assert.False(t, e.Has("x"))
	assert.Zero(t, e.Stats().Terms)

	require.NoError(t, e.IndexDocument("x", Document{"title": "only a title"}))
	assert.ErrorIs(t, e.IndexDocument("x", Document{"title": "again"}), apperrors.ErrDocumentExists)

	require.NoError(t, e.RemoveDocument("x"))
	assert.ErrorIs(t, e.IndexDocument("x", Document{"title": "again"}), apperrors.ErrDocumentExists,
		"a key pending removal cannot be reused before vacuum")
	e.Vacuum()
	require.NoError(t, e.IndexDocument("x", Document{"title": "again"}))

	assert.ErrorIs(t, e.IndexDocument("", Document{"title": "t"}), apperrors.ErrInvalidInput)
}

func TestEngineRemoveDocument(t *testing.T) {
	e := newEngine(t, testConfig(""))
	require.NoError(t, e.IndexDocument("1", Document{"title": "Lorem ipsum dolor"}))
	require.NoError(t, e.IndexDocument("2", Document{"title": "Lorem ipsum"}))

	assert.ErrorIs(t, e.RemoveDocument("missing"), apperrors.ErrDocumentNotFound)
	require.NoError(t, e.RemoveDocument("1"))
	assert.ErrorIs(t, e.RemoveDocument("1"), apperrors.ErrDocumentNotFound)

	assert.Equal(t, []string{"2"}, ids(t, e, "lorem"))
	assert.Empty(t, ids(t, e, "dolor"))

	stats := e.Stats()
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.PendingRemovals)

	vs := e.Vacuum()
	assert.Equal(t, 1, vs.DocumentsPurged)
	assert.Equal(t, 3, vs.PostingsPurged)
	stats = e.Stats()
	assert.Zero(t, stats.PendingRemovals)
	assert.Equal(t, 2, stats.Terms)
}

func TestEngineAutoVacuumAboveThreshold(t *testing.T) {
	e := newEngine(t, testConfig(""))
	for i := 0; i < 12; i++ {
		require.NoError(t, e.IndexDocument(fmt.Sprintf("doc-%02d", i), Document{"title": fmt.Sprintf("unique%02d shared", i)}))
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, e.RemoveDocument(fmt.Sprintf("doc-%02d", i)))
	}
	assert.Equal(t, 10, e.Stats().PendingRemovals, "ten pending removals do not trigger a vacuum")

	require.NoError(t, e.RemoveDocument("doc-10"))
	stats := e.Stats()
	assert.Zero(t, stats.PendingRemovals)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 2, stats.Terms)
	assert.Equal(t, []string{"doc-11"}, ids(t, e, "shared"))
}

func TestEngineReplaceDocument(t *testing.T) {
	e := newEngine(t, testConfig(""))
	require.NoError(t, e.IndexDocument("a", Document{"title": "old title"}))
	before := e.Generation()

	require.NoError(t, e.ReplaceDocument("a", Document{"title": "new title"}))
	assert.Greater(t, e.Generation(), before)
	assert.Empty(t, ids(t, e, "old"))
	assert.Equal(t, []string{"a"}, ids(t, e, "new"))

	err := e.ReplaceDocument("a", Document{"body": "missing title"})
	assert.ErrorIs(t, err, apperrors.ErrFieldAccess)
	assert.Equal(t, []string{"a"}, ids(t, e, "new"), "a rejected replacement keeps the old document")

	require.NoError(t, e.ReplaceDocument("fresh", Document{"title": "brand new"}))
	assert.True(t, e.Has("fresh"))
}

func TestEngineSearchHonoursContext(t *testing.T) {
	e := newEngine(t, testConfig(""))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Search(ctx, "anything", 10)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestEngineFlushAndReload(t *testing.T) {
	dir := t.TempDir()
	writer := newEngine(t, testConfig(dir))
	require.NoError(t, writer.IndexDocument("1", Document{"title": "snapshot one"}))
	require.NoError(t, writer.IndexDocument("2", Document{"title": "snapshot two"}))
	require.NoError(t, writer.RemoveDocument("2"))
	require.NoError(t, writer.Flush())

	names, err := segment.List(dir)
	require.NoError(t, err)
	require.Len(t, names, 1)
	require.NoError(t, writer.Flush())
	names, err = segment.List(dir)
	require.NoError(t, err)
	assert.Len(t, names, 1, "a clean engine does not write a new snapshot")

	reader := newEngine(t, testConfig(dir))
	assert.Equal(t, []string{"1"}, ids(t, reader, "snapshot"))
	assert.Equal(t, 1, reader.Stats().PendingRemovals)
	assert.Equal(t, names[0], reader.Stats().Snapshot)

	reloaded, err := reader.ReloadLatest()
	require.NoError(t, err)
	assert.False(t, reloaded)

	require.NoError(t, writer.IndexDocument("3", Document{"title": "snapshot three"}))
	require.NoError(t, writer.Flush())
	gen := reader.Generation()
	reloaded, err = reader.ReloadLatest()
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Greater(t, reader.Generation(), gen)
	assert.Equal(t, []string{"1", "3"}, ids(t, reader, "snapshot"))
}

func TestEngineSkipsIncompatibleSnapshot(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Fields = cfg.Fields[:1]
	one := newEngine(t, cfg)
	require.NoError(t, one.IndexDocument("1", Document{"title": "single field"}))
	require.NoError(t, one.Flush())

	two := newEngine(t, testConfig(dir))
	assert.Zero(t, two.Stats().Documents)
	_, err := two.ReloadLatest()
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
}

func TestEngineSkipsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	good := newEngine(t, testConfig(dir))
	require.NoError(t, good.IndexDocument("1", Document{"title": "kept"}))
	require.NoError(t, good.Flush())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snap_99999999999999999.tsnp"), []byte("garbage"), 0o644))

	e := newEngine(t, testConfig(dir))
	assert.Equal(t, []string{"1"}, ids(t, e, "kept"))
}

func TestEngineFallsBackFromCorruptPostings(t *testing.T) {
	dir := t.TempDir()
	writer := newEngine(t, testConfig(dir))
	require.NoError(t, writer.IndexDocument("1", Document{"title": "alpha"}))
	require.NoError(t, writer.Flush())
	older := writer.Stats().Snapshot
	require.NoError(t, writer.IndexDocument("2", Document{"title": "alpha beta"}))
	require.NoError(t, writer.Flush())

	newest := filepath.Join(dir, writer.Stats().Snapshot)
	data, err := os.ReadFile(newest)
	require.NoError(t, err)
	at := bytes.Index(data, []byte(`"f":[1`))
	require.NotEqual(t, -1, at)
	data[at+len(`"f":[`)] = '9'
	require.NoError(t, os.WriteFile(newest, data, 0o644))

	e := newEngine(t, testConfig(dir))
	assert.Equal(t, older, e.Stats().Snapshot)
	assert.Equal(t, []string{"1"}, ids(t, e, "alpha"))
}

func TestEngineMetrics(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	e := newEngine(t, testConfig(""), WithMetrics(m, "0"))
	require.NoError(t, e.IndexDocument("1", Document{"title": "one"}))
	require.NoError(t, e.IndexDocument("2", Document{"title": "two"}))
	require.NoError(t, e.RemoveDocument("1"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsRemovedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ShardDocCount.WithLabelValues("0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PendingRemovals.WithLabelValues("0")))

	e.Vacuum()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VacuumsTotal))
	assert.Zero(t, testutil.ToFloat64(m.PendingRemovals.WithLabelValues("0")))
}

func TestEngineConcurrentReadersAndWriters(t *testing.T) {
	e := newEngine(t, testConfig(""))
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				assert.NoError(t, e.IndexDocument(id, Document{"title": "concurrent doc", "body": id}))
				if i%3 == 0 {
					assert.NoError(t, e.RemoveDocument(id))
				}
			}
		}(w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := e.Search(context.Background(), "concurrent", 5)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	e.Vacuum()
	assert.Equal(t, 4*(50-17), e.Stats().Documents)
}

func TestEngineVersionFollowsContent(t *testing.T) {
	dir := t.TempDir()
	writer := newEngine(t, testConfig(dir))
	assert.Empty(t, writer.Version())

	require.NoError(t, writer.IndexDocument("1", Document{"title": "alpha"}))
	unsaved := writer.Version()
	assert.NotEmpty(t, unsaved)
	require.NoError(t, writer.Flush())
	saved := writer.Version()
	assert.NotEqual(t, unsaved, saved)
	assert.Equal(t, writer.Stats().Snapshot, saved)

	first := newEngine(t, testConfig(dir))
	second := newEngine(t, testConfig(dir))
	assert.Equal(t, saved, first.Version(), "engines over the same snapshot agree")
	assert.Equal(t, first.Version(), second.Version())
	assert.Equal(t, first.Generation(), second.Generation())

	require.NoError(t, writer.IndexDocument("2", Document{"title": "alpha again"}))
	require.NoError(t, writer.Flush())
	restarted := newEngine(t, testConfig(dir))
	assert.Equal(t, first.Generation(), restarted.Generation(), "generations restart from zero")
	assert.NotEqual(t, first.Version(), restarted.Version(), "a newer snapshot is a new version")

	require.NoError(t, first.IndexDocument("3", Document{"title": "local"}))
	require.NoError(t, second.IndexDocument("3", Document{"title": "local"}))
	assert.NotEqual(t, first.Version(), second.Version(), "unsaved mutations are process specific")
}
