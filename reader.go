// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package sar

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"
)

// Reader provides read-only random access to a parsed SAR container.
//
// The index is decoded once at open time and never mutated afterward, so
// concurrent lookups and entry reads need no locking beyond the underlying
// Source tolerating concurrent ReadAt calls.
type Reader struct {
	// src is the underlying range source used for payload reads.
	src Source
	// file is set when Reader owns an *os.File opened via Open.
	file *os.File
	// entries are kept in index order for deterministic iteration.
	entries []EntryInfo
	// byName maps entry path to its position in entries.
	byName map[string]int
	// mu guards closed state and close operation.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// Open opens a SAR container by path and decodes its index.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open SAR: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	r, err := NewReader(NewSource(f, fi.Size()))
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r.file = f
	return r, nil
}

// NewReaderFromReaderAt decodes a SAR container from an existing random-access
// handle with known size. Remote byte-range clients plug in here.
func NewReaderFromReaderAt(ra io.ReaderAt, size int64) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	return NewReader(NewSource(ra, size))
}

// NewReader decodes a SAR container from a range source.
//
// Opening costs exactly two bounded reads regardless of entry count:
// one for the fixed preamble, one for the index block.
func NewReader(src Source) (*Reader, error) {
	if src == nil {
		return nil, ErrNilReader
	}

	r := &Reader{src: src}
	if err := r.parse(src); err != nil {
		return nil, err
	}

	return r, nil
}

// parse reads and validates the container structure from the range source.
func (r *Reader) parse(src Source) error {
	size := src.Size()
	if size < preambleSize {
		return fmt.Errorf("%w: short preamble", ErrNotSarFile)
	}

	head := make([]byte, preambleSize)
	if _, err := src.ReadAt(head, 0); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: preamble", ErrTruncatedRead)
		}

		return fmt.Errorf("read preamble: %w", err)
	}

	pre, err := parsePreamble(head)
	if err != nil {
		return err
	}

	if pre.indexOffset < preambleSize ||
		pre.indexLength > uint64(size) ||
		pre.indexOffset > uint64(size)-pre.indexLength {
		return fmt.Errorf("%w: index span [%d, %d) outside container",
			ErrMalformedIndex, pre.indexOffset, pre.indexOffset+pre.indexLength)
	}
	if pre.indexLength > math.MaxInt {
		return fmt.Errorf("%w: index length %d", ErrSizeOverflow, pre.indexLength)
	}

	raw := make([]byte, pre.indexLength)
	if _, err := src.ReadAt(raw, int64(pre.indexOffset)); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: index block", ErrTruncatedRead)
		}

		return fmt.Errorf("read index: %w", err)
	}

	entries, err := decodeIndex(raw)
	if err != nil {
		return err
	}

	if err := validateEntryRanges(entries, pre.indexOffset); err != nil {
		return err
	}

	byName := make(map[string]int, len(entries))
	for i := range entries {
		if _, exists := byName[entries[i].Path]; exists {
			return fmt.Errorf("%w: duplicate entry path %q", ErrMalformedIndex, entries[i].Path)
		}

		byName[entries[i].Path] = i
	}

	r.entries = entries
	r.byName = byName
	return nil
}

// validateEntryRanges checks every payload span lies inside the data region
// and that no two spans overlap.
func validateEntryRanges(entries []EntryInfo, dataEnd uint64) error {
	for i := range entries {
		e := &entries[i]
		if e.Offset < preambleSize || e.Offset+e.Size > dataEnd {
			return fmt.Errorf("%w: entry %s span [%d, %d) outside data region",
				ErrMalformedIndex, e.Path, e.Offset, e.Offset+e.Size)
		}
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ea, eb := &entries[order[a]], &entries[order[b]]
		if ea.Offset != eb.Offset {
			return ea.Offset < eb.Offset
		}

		return ea.Size < eb.Size
	})

	var prevEnd uint64 = preambleSize
	for _, idx := range order {
		e := &entries[idx]
		if e.Size == 0 {
			continue
		}
		if e.Offset < prevEnd {
			return fmt.Errorf("%w: entry %s overlaps previous payload", ErrMalformedIndex, e.Path)
		}

		prevEnd = e.Offset + e.Size
	}

	return nil
}

// Names returns all entry paths in index order.
func (r *Reader) Names() []string {
	if r == nil {
		return nil
	}

	names := make([]string, len(r.entries))
	for i := range r.entries {
		names[i] = r.entries[i].Path
	}

	return names
}

// Entries returns a copy of decoded entries in index order.
func (r *Reader) Entries() []EntryInfo {
	if r == nil {
		return nil
	}

	entries := make([]EntryInfo, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Len returns the number of entries in the container.
func (r *Reader) Len() int {
	if r == nil {
		return 0
	}

	return len(r.entries)
}

// Entry resolves one entry descriptor by path.
func (r *Reader) Entry(name string) (EntryInfo, error) {
	if r == nil {
		return EntryInfo{}, ErrNilReader
	}

	idx, ok := r.byName[name]
	if !ok {
		return EntryInfo{}, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	return r.entries[idx], nil
}

// Close closes the underlying file if reader owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	if r.file != nil {
		return r.file.Close()
	}

	return nil
}

// isClosed reports whether Close was already called.
func (r *Reader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.closed
}
