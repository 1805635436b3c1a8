package segment

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/trie-search/pkg/errors"
)

type page struct{ title, body string }

var pageFields = []index.FieldAccessor[page]{
	func(p page) (string, error) { return p.title, nil },
	func(p page) (string, error) { return p.body, nil },
}

func buildIndex(t *testing.T) (*index.MemoryIndex, index.RemovedSet) {
	t.Helper()
	idx, err := index.NewMemoryIndex(2)
	require.NoError(t, err)
	pages := map[string]page{
		"a": {"trie basics", "a trie stores terms by prefix"},
		"b": {"bm25", "ranking terms by frequency"},
		"c": {"vacuum", "compaction removes dead postings"},
	}
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, index.AddDocument(idx, pageFields, tokenizer.Split, tokenizer.Lower, id, pages[id]))
	}
	removed := index.NewRemovedSet()
	idx.RemoveDocument(removed, "c")
	return idx, removed
}

func writeSnapshot(t *testing.T, dir string, idx *index.MemoryIndex, removed index.RemovedSet) string {
	t.Helper()
	name, err := NewWriter(dir).Write(Snapshot{
		FieldCount: idx.FieldCount(),
		Terms:      idx.Terms(),
		Docs:       idx.Documents(),
		Removed:    removed.Keys(),
	})
	require.NoError(t, err)
	return name
}

func TestWriteAndRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx, removed := buildIndex(t)
	name := writeSnapshot(t, dir, idx, removed)

	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 2, r.FieldCount())
	assert.Equal(t, uint32(3), r.DocCount())
	assert.Equal(t, idx.TermCount(), r.Terms())
	assert.Equal(t, []string{"c"}, r.PendingRemovals())

	restored, restoredRemoved, err := r.Restore()
	require.NoError(t, err)
	assert.Equal(t, idx.Terms(), restored.Terms())
	assert.Equal(t, idx.Documents(), restored.Documents())
	assert.Equal(t, idx.FieldStats(), restored.FieldStats())
	assert.True(t, restoredRemoved.Has("c"))
	assert.Equal(t, 1, restoredRemoved.Len())
}

func TestReaderSearch(t *testing.T) {
	dir := t.TempDir()
	idx, removed := buildIndex(t)
	name := writeSnapshot(t, dir, idx, removed)

	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	defer r.Close()

	postings, err := r.Search("trie")
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{{DocID: "a", TermFreq: []int{1, 1}}}, postings)

	postings, err = r.Search("terms")
	require.NoError(t, err)
	assert.Len(t, postings, 2)

	postings, err = r.Search("missing")
	require.NoError(t, err)
	assert.Nil(t, postings)
}

func TestEmptyIndexSnapshot(t *testing.T) {
	dir := t.TempDir()
	idx, err := index.NewMemoryIndex(1)
	require.NoError(t, err)
	name := writeSnapshot(t, dir, idx, nil)

	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	defer r.Close()
	restored, removed, err := r.Restore()
	require.NoError(t, err)
	assert.Zero(t, restored.DocCount())
	assert.Zero(t, removed.Len())
}

func TestCorruptSnapshotIsRejected(t *testing.T) {
	dir := t.TempDir()
	idx, removed := buildIndex(t)
	name := writeSnapshot(t, dir, idx, removed)
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-FooterSize-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenReader(path)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)

	bad := filepath.Join(dir, "snap_1.tsnp")
	require.NoError(t, os.WriteFile(bad, []byte("not a snapshot"), 0o644))
	_, err = OpenReader(bad)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
}

func TestCorruptPostingsAreRejected(t *testing.T) {
	dir := t.TempDir()
	idx, removed := buildIndex(t)
	name := writeSnapshot(t, dir, idx, removed)
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	at := bytes.Index(data, []byte(`"f":[1`))
	require.True(t, at >= HeaderSize, "postings follow the header")
	data[at+len(`"f":[`)] = '9'
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenReader(path)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
}

func TestOlderFormatIsRejected(t *testing.T) {
	dir := t.TempDir()
	idx, removed := buildIndex(t)
	name := writeSnapshot(t, dir, idx, removed)
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[4:8], FormatVersion-1)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenReader(path)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
}

func TestListLatestAndPrune(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"snap_300.tsnp", "snap_100.tsnp", "snap_2000.tsnp", "other.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	names, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"snap_100.tsnp", "snap_300.tsnp", "snap_2000.tsnp"}, names)

	latest, err := Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, "snap_2000.tsnp", latest)

	n, err := Prune(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	names, err = List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"snap_300.tsnp", "snap_2000.tsnp"}, names)

	latest, err = Latest(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, latest)
}
