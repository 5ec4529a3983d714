// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package sar

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

// containerMember describes one member for manual container construction.
type containerMember struct {
	name    string
	data    string
	kind    EntryKind
	mode    uint32
	modTime uint64
}

// buildContainer assembles raw container bytes without going through the packer,
// so tests can produce both valid and deliberately malformed layouts.
func buildContainer(t *testing.T, members []containerMember) []byte {
	t.Helper()

	var data bytes.Buffer
	entries := make([]EntryInfo, 0, len(members))
	offset := uint64(preambleSize)
	for _, m := range members {
		entries = append(entries, EntryInfo{
			Path:    m.name,
			Offset:  offset,
			Size:    uint64(len(m.data)),
			ModTime: m.modTime,
			Mode:    m.mode,
			Kind:    m.kind,
		})
		data.WriteString(m.data)
		offset += uint64(len(m.data))
	}

	indexBytes, err := encodeIndex(entries)
	if err != nil {
		t.Fatalf("encodeIndex: %v", err)
	}

	var out bytes.Buffer
	out.Write(encodePreamble(preamble{
		indexOffset: offset,
		indexLength: uint64(len(indexBytes)),
	}))
	out.Write(data.Bytes())
	out.Write(indexBytes)

	return out.Bytes()
}

// countingSource counts ReadAt calls and records the last requested length.
type countingSource struct {
	mu          sync.Mutex
	src         Source
	calls       int
	lastReadLen int
}

func (c *countingSource) ReadAt(p []byte, off int64) (int, error) {
	c.mu.Lock()
	c.calls++
	c.lastReadLen = len(p)
	c.mu.Unlock()

	return c.src.ReadAt(p, off)
}

func (c *countingSource) Size() int64 {
	return c.src.Size()
}

// shrunkSource reports its original size but refuses to serve bytes beyond
// cut, modeling a remote object that shrank after the index was fetched.
type shrunkSource struct {
	buf  []byte
	size int64
	cut  int64
}

func (s *shrunkSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= s.cut {
		return 0, io.EOF
	}

	n := copy(p, s.buf[off:s.cut])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (s *shrunkSource) Size() int64 {
	return s.size
}

func testMembers() []containerMember {
	return []containerMember{
		{name: "a.txt", data: "hello", kind: KindFile, mode: 0o644, modTime: 1700000000},
		{name: "b.txt", data: "world", kind: KindFile, mode: 0o600, modTime: 1700000001},
		{name: "empty", data: "", kind: KindFile, mode: 0o644},
	}
}

func TestNewReader_TwoReadsOnOpen(t *testing.T) {
	t.Parallel()

	raw := buildContainer(t, testMembers())
	counting := &countingSource{src: NewSource(bytes.NewReader(raw), int64(len(raw)))}

	r, err := NewReader(counting)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	if counting.calls != 2 {
		t.Fatalf("open issued %d range reads, want exactly 2", counting.calls)
	}
	if r.Len() != 3 {
		t.Fatalf("Len()=%d, want 3", r.Len())
	}
}

func TestReadEntry_SingleRangeRead(t *testing.T) {
	t.Parallel()

	raw := buildContainer(t, testMembers())
	counting := &countingSource{src: NewSource(bytes.NewReader(raw), int64(len(raw)))}

	r, err := NewReader(counting)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	counting.calls = 0
	got, err := r.ReadEntry("b.txt")
	if err != nil {
		t.Fatalf("ReadEntry: %v", err)
	}
	if string(got) != "world" {
		t.Fatalf("ReadEntry=%q, want %q", got, "world")
	}
	if counting.calls != 1 {
		t.Fatalf("extract issued %d range reads, want exactly 1", counting.calls)
	}
	if counting.lastReadLen != len("world") {
		t.Fatalf("range read length=%d, want %d", counting.lastReadLen, len("world"))
	}
}

func TestReader_NamesOrderAndLookup(t *testing.T) {
	t.Parallel()

	raw := buildContainer(t, testMembers())
	r, err := NewReaderFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("NewReaderFromReaderAt: %v", err)
	}

	wantNames := []string{"a.txt", "b.txt", "empty"}
	if got := r.Names(); !reflect.DeepEqual(got, wantNames) {
		t.Fatalf("Names()=%v, want %v", got, wantNames)
	}

	entry, err := r.Entry("a.txt")
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry.Offset != preambleSize || entry.Size != 5 {
		t.Fatalf("entry span [%d, %d), want [%d, %d)", entry.Offset, entry.Offset+entry.Size, preambleSize, preambleSize+5)
	}
	if entry.Mode != 0o644 || entry.ModTime != 1700000000 || entry.Kind != KindFile {
		t.Fatalf("entry metadata mismatch: %+v", entry)
	}

	if _, err := r.Entry("missing.txt"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	if _, err := r.OpenEntry("missing.txt"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestReader_OpenEntryLazyStream(t *testing.T) {
	t.Parallel()

	raw := buildContainer(t, testMembers())
	counting := &countingSource{src: NewSource(bytes.NewReader(raw), int64(len(raw)))}

	r, err := NewReader(counting)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	counting.calls = 0
	rc, err := r.OpenEntry("a.txt")
	if err != nil {
		t.Fatalf("OpenEntry: %v", err)
	}
	defer func() { _ = rc.Close() }()

	if counting.calls != 0 {
		t.Fatalf("OpenEntry issued %d reads before consumption, want 0", counting.calls)
	}

	buf := make([]byte, 5)
	if _, err := io.ReadFull(rc, buf); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("payload=%q, want %q", buf, "hello")
	}
	if counting.calls != 1 {
		t.Fatalf("stream consumption issued %d range reads, want 1", counting.calls)
	}
}

func TestReader_EmptyContainer(t *testing.T) {
	t.Parallel()

	raw := buildContainer(t, nil)
	r, err := NewReaderFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("NewReaderFromReaderAt: %v", err)
	}

	if r.Len() != 0 {
		t.Fatalf("Len()=%d, want 0", r.Len())
	}
	if names := r.Names(); len(names) != 0 {
		t.Fatalf("Names()=%v, want empty", names)
	}
}

func TestOpen_NotASarFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.sar")
	if err := os.WriteFile(path, []byte("definitely not a sar container"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if !errors.Is(err, ErrNotSarFile) {
		t.Fatalf("expected ErrNotSarFile, got %v", err)
	}
}

func TestOpen_ShortFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "short.sar")
	if err := os.WriteFile(path, []byte("SAR\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if !errors.Is(err, ErrNotSarFile) {
		t.Fatalf("expected ErrNotSarFile, got %v", err)
	}
}

func TestNewReader_CorruptedMagic(t *testing.T) {
	t.Parallel()

	raw := buildContainer(t, testMembers())
	raw[0] = 'X'

	_, err := NewReaderFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
	if !errors.Is(err, ErrNotSarFile) {
		t.Fatalf("expected ErrNotSarFile, got %v", err)
	}
}

func TestNewReader_IndexSpanInconsistent(t *testing.T) {
	t.Parallel()

	t.Run("span outside container", func(t *testing.T) {
		t.Parallel()

		raw := buildContainer(t, testMembers())
		binary.LittleEndian.PutUint64(raw[16:24], uint64(len(raw))+100)
		_, err := NewReaderFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
		if !errors.Is(err, ErrMalformedIndex) {
			t.Fatalf("expected ErrMalformedIndex, got %v", err)
		}
	})

	t.Run("length disagrees with block", func(t *testing.T) {
		t.Parallel()

		// Shift the declared index start into the data region so the decoded
		// block no longer lines up with its declared span.
		raw := buildContainer(t, testMembers())
		indexOffset := binary.LittleEndian.Uint64(raw[8:16])
		binary.LittleEndian.PutUint64(raw[8:16], indexOffset-2)
		binary.LittleEndian.PutUint64(raw[16:24], binary.LittleEndian.Uint64(raw[16:24])+2)
		_, err := NewReaderFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
		if !errors.Is(err, ErrMalformedIndex) {
			t.Fatalf("expected ErrMalformedIndex, got %v", err)
		}
	})
}

func TestNewReader_DuplicateNamesRejected(t *testing.T) {
	t.Parallel()

	raw := buildContainer(t, []containerMember{
		{name: "same.txt", data: "one", kind: KindFile},
		{name: "same.txt", data: "two", kind: KindFile},
	})

	_, err := NewReaderFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
	if !errors.Is(err, ErrMalformedIndex) {
		t.Fatalf("expected ErrMalformedIndex, got %v", err)
	}
}

func TestNewReader_OverlappingRangesRejected(t *testing.T) {
	t.Parallel()

	members := []containerMember{
		{name: "a.txt", data: "hello", kind: KindFile},
		{name: "b.txt", data: "world", kind: KindFile},
	}
	raw := buildContainer(t, members)

	// Rewrite b.txt's offset to point inside a.txt's payload.
	entries := []EntryInfo{
		{Path: "a.txt", Offset: preambleSize, Size: 5, Kind: KindFile},
		{Path: "b.txt", Offset: preambleSize + 2, Size: 5, Kind: KindFile},
	}
	indexBytes, err := encodeIndex(entries)
	if err != nil {
		t.Fatalf("encodeIndex: %v", err)
	}

	indexOffset := binary.LittleEndian.Uint64(raw[8:16])
	raw = append(raw[:indexOffset], indexBytes...)
	binary.LittleEndian.PutUint64(raw[16:24], uint64(len(indexBytes)))

	_, err = NewReaderFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
	if !errors.Is(err, ErrMalformedIndex) {
		t.Fatalf("expected ErrMalformedIndex, got %v", err)
	}
}

func TestNewReader_EntrySpanOutsideDataRegion(t *testing.T) {
	t.Parallel()

	raw := buildContainer(t, testMembers())
	indexOffset := binary.LittleEndian.Uint64(raw[8:16])

	entries := []EntryInfo{
		{Path: "a.txt", Offset: indexOffset, Size: 10, Kind: KindFile},
	}
	indexBytes, err := encodeIndex(entries)
	if err != nil {
		t.Fatalf("encodeIndex: %v", err)
	}

	raw = append(raw[:indexOffset], indexBytes...)
	binary.LittleEndian.PutUint64(raw[16:24], uint64(len(indexBytes)))

	_, err = NewReaderFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
	if !errors.Is(err, ErrMalformedIndex) {
		t.Fatalf("expected ErrMalformedIndex, got %v", err)
	}
}

func TestReadEntry_TruncatedSource(t *testing.T) {
	t.Parallel()

	raw := buildContainer(t, testMembers())
	src := &shrunkSource{
		buf:  raw,
		size: int64(len(raw)),
		// Keep preamble and index readable (the index trails the data), but
		// cut b.txt's payload short.
		cut: preambleSize + 7,
	}

	// The index itself is beyond the cut, so open against the intact bytes
	// and then swap sources through a fresh reader on the shrunk view.
	intact, err := NewReaderFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("NewReaderFromReaderAt: %v", err)
	}
	r := &Reader{src: src, entries: intact.entries, byName: intact.byName}

	if _, err := r.ReadEntry("b.txt"); !errors.Is(err, ErrTruncatedRead) {
		t.Fatalf("expected ErrTruncatedRead, got %v", err)
	}

	rc, err := r.OpenEntry("b.txt")
	if err != nil {
		t.Fatalf("OpenEntry: %v", err)
	}
	defer func() { _ = rc.Close() }()

	if _, err := io.ReadAll(rc); !errors.Is(err, ErrTruncatedRead) {
		t.Fatalf("expected ErrTruncatedRead from stream, got %v", err)
	}

	// A failed extract must not poison other members.
	got, err := r.ReadEntry("a.txt")
	if err != nil {
		t.Fatalf("ReadEntry after failure: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("ReadEntry=%q, want %q", got, "hello")
	}
}

func TestReader_ClosedRejectsReads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "ok.sar")
	raw := buildContainer(t, testMembers())
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got, err := r.ReadEntry("a.txt")
	if err != nil {
		t.Fatalf("ReadEntry: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("ReadEntry=%q, want %q", got, "hello")
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := r.ReadEntry("a.txt"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := r.OpenEntry("a.txt"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "list.sar")
	raw := buildContainer(t, testMembers())
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := List(path)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries)=%d, want 3", len(entries))
	}

	fromRA, err := ListFromReaderAt(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("ListFromReaderAt: %v", err)
	}
	if !reflect.DeepEqual(entries, fromRA) {
		t.Fatalf("List and ListFromReaderAt disagree:\n %+v\n %+v", entries, fromRA)
	}
}
