package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/trie-search/pkg/errors"
)

type Reader struct {
	file     *os.File
	filePath string
	header   SnapshotHeader
	dict     []DictEntry
	meta     meta
	postBase int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	r, err := readSnapshot(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func readSnapshot(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat snapshot file: %w", err)
	}
	if info.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("%w: %s is %d bytes", apperrors.ErrCorruptSnapshot, path, info.Size())
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrCorruptSnapshot, magic)
	}
	header := SnapshotHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:  binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		FieldCount: binary.LittleEndian.Uint32(headerBytes[48:52]),
		Removed:    binary.LittleEndian.Uint32(headerBytes[52:56]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(headerBytes[56:64])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", apperrors.ErrCorruptSnapshot, header.Version)
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, info.Size()-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	dictSum := binary.LittleEndian.Uint32(footer[0:4])
	metaSum := binary.LittleEndian.Uint32(footer[4:8])
	metaOffset := int64(binary.LittleEndian.Uint64(footer[8:16]))
	metaSize := int64(binary.LittleEndian.Uint64(footer[16:24]))
	postSize := int64(binary.LittleEndian.Uint64(footer[24:32]))
	postSum := binary.LittleEndian.Uint32(footer[32:36])
	if header.DictSize < 0 || metaSize < 0 || header.PostSize < 0 ||
		header.DictOffset+header.DictSize > info.Size() || metaOffset+metaSize > info.Size() ||
		header.PostOffset+header.PostSize > info.Size() || postSize != header.PostSize {
		return nil, fmt.Errorf("%w: section offsets past end of file", apperrors.ErrCorruptSnapshot)
	}

	sum := crc32.NewIEEE()
	if _, err := io.Copy(sum, io.NewSectionReader(f, header.PostOffset, header.PostSize)); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	if sum.Sum32() != postSum {
		return nil, fmt.Errorf("%w: postings checksum mismatch", apperrors.ErrCorruptSnapshot)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	if crc32.ChecksumIEEE(dictBytes) != dictSum {
		return nil, fmt.Errorf("%w: dictionary checksum mismatch", apperrors.ErrCorruptSnapshot)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}

	metaBytes := make([]byte, metaSize)
	if _, err := f.ReadAt(metaBytes, metaOffset); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	if crc32.ChecksumIEEE(metaBytes) != metaSum {
		return nil, fmt.Errorf("%w: document checksum mismatch", apperrors.ErrCorruptSnapshot)
	}
	var m meta
	if err := json.Unmarshal(metaBytes, &m); err != nil {
		return nil, fmt.Errorf("parsing documents: %w", err)
	}

	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		meta:     m,
		postBase: header.PostOffset,
	}, nil
}

// Search returns the postings stored for an exact term.
func (r *Reader) Search(term string) (index.PostingList, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return nil, nil
	}
	return r.postings(r.dict[idx])
}

func (r *Reader) postings(entry DictEntry) (index.PostingList, error) {
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// Restore rebuilds the in-memory index and the pending removals.
func (r *Reader) Restore() (*index.MemoryIndex, index.RemovedSet, error) {
	terms := make([]index.TermEntry, 0, len(r.dict))
	for _, entry := range r.dict {
		postings, err := r.postings(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("term %q: %w", entry.Term, err)
		}
		terms = append(terms, index.TermEntry{Term: entry.Term, Postings: postings})
	}
	idx, err := index.Restore(int(r.header.FieldCount), r.meta.Docs, terms)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", apperrors.ErrCorruptSnapshot, err)
	}
	removed := index.NewRemovedSet()
	for _, key := range r.meta.Removed {
		removed.Add(key)
	}
	return idx, removed, nil
}

func (r *Reader) Name() string {
	return filepath.Base(r.filePath)
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) FieldCount() int {
	return int(r.header.FieldCount)
}

func (r *Reader) PendingRemovals() []string {
	return append([]string(nil), r.meta.Removed...)
}

func (r *Reader) Header() SnapshotHeader {
	return r.header
}

func (r *Reader) Close() error {
	return r.file.Close()
}
