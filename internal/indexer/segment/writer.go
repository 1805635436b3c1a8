package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/index"
)

// MagicBytes identifies a valid .tsnp snapshot file.
const (
	MagicBytes    uint32 = 0x54534E50
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 40
	FileExt              = ".tsnp"
)

// SnapshotHeader is the 64-byte header written at the start of every snapshot.
type SnapshotHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
	FieldCount uint32
	Removed    uint32
	CreatedAt  int64
}

// DictEntry maps a term to its postings offset, length, and document frequency
// in the snapshot file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Snapshot is the full state of one index: its terms, the registered
// documents and the keys still pending removal.
type Snapshot struct {
	FieldCount int
	Terms      []index.TermEntry
	Docs       []index.DocumentEntry
	Removed    []string
}

type meta struct {
	Docs    []index.DocumentEntry `json:"docs"`
	Removed []string              `json:"removed"`
}

// Writer serialises snapshots into new .tsnp files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes snapshots into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new snapshot file. It writes to a .tmp file
// first and renames on success. Terms must be sorted.
func (w *Writer) Write(snap Snapshot) (string, error) {
	if snap.FieldCount <= 0 {
		return "", fmt.Errorf("cannot write snapshot with %d fields", snap.FieldCount)
	}
	name := fmt.Sprintf("snap_%d%s", time.Now().UnixNano(), FileExt)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()

	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(snap.Terms)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(snap.Docs)))
	binary.LittleEndian.PutUint32(headerBytes[48:52], uint32(snap.FieldCount))
	binary.LittleEndian.PutUint32(headerBytes[52:56], uint32(len(snap.Removed)))
	binary.LittleEndian.PutUint64(headerBytes[56:64], uint64(time.Now().Unix()))
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	postingsSum := crc32.NewIEEE()
	dict := make([]DictEntry, 0, len(snap.Terms))
	for _, entry := range snap.Terms {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		postingsSum.Write(postingsData)
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(postingsData))
	}
	postingsSize := offset - postingsStart

	dictStart := offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	metaStart := dictStart + int64(len(dictData))
	removed := append([]string(nil), snap.Removed...)
	sort.Strings(removed)
	metaData, err := json.Marshal(meta{Docs: snap.Docs, Removed: removed})
	if err != nil {
		return "", fmt.Errorf("marshaling documents: %w", err)
	}
	if _, err := f.Write(metaData); err != nil {
		return "", fmt.Errorf("writing documents: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], crc32.ChecksumIEEE(metaData))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(metaStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(metaData)))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(postingsSize))
	binary.LittleEndian.PutUint32(footer[32:36], postingsSum.Sum32())
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return name, nil
}

// List returns the snapshot file names in dataDir, oldest first.
func List(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), FileExt) {
			names = append(names, entry.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return snapshotTime(names[i]) < snapshotTime(names[j])
	})
	return names, nil
}

// Latest returns the newest snapshot name in dataDir, or "" when there is none.
func Latest(dataDir string) (string, error) {
	names, err := List(dataDir)
	if err != nil || len(names) == 0 {
		return "", err
	}
	return names[len(names)-1], nil
}

// Prune deletes all but the newest keep snapshots and returns how many it removed.
func Prune(dataDir string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	names, err := List(dataDir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := 0; i < len(names)-keep; i++ {
		if err := os.Remove(filepath.Join(dataDir, names[i])); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing snapshot %s: %w", names[i], err)
		}
		removed++
	}
	return removed, nil
}

func snapshotTime(name string) int64 {
	var nanos int64
	if _, err := fmt.Sscanf(strings.TrimSuffix(name, FileExt), "snap_%d", &nanos); err != nil {
		return 0
	}
	return nanos
}
