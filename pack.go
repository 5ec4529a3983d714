// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package sar

import (
	"archive/tar"
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	// packCopyBufferSize is per-pack temporary buffer used by streaming payload copy.
	packCopyBufferSize = 64 * 1024
)

var (
	// defaultPackWriterPool reuses default-sized bufio writers between pack calls.
	defaultPackWriterPool = sync.Pool{
		New: func() any {
			return bufio.NewWriterSize(io.Discard, DefaultWriteBuffer)
		},
	}
	// defaultPackCopyBufferPool reuses payload copy buffers between pack calls.
	defaultPackCopyBufferPool = sync.Pool{
		New: func() any {
			return new([packCopyBufferSize]byte)
		},
	}
)

// packItem describes one member to be written by the pack core.
type packItem struct {
	// open returns the payload stream; nil when the entry carries no payload.
	open func() (io.ReadCloser, error)
	// path is the destination path inside the container.
	path string
	// mtime is Unix timestamp carried from the source entry.
	mtime uint64
	// mode stores POSIX permission bits carried from the source entry.
	mode uint32
	// kind classifies the member.
	kind EntryKind
}

// PackTar converts a tar-formatted byte stream into a SAR container.
//
// The tar source is consumed in a single sequential pass; member payloads
// are written verbatim in consumption order, and the index block is
// appended after all data with the preamble patched last.
func PackTar(ctx context.Context, out io.WriteSeeker, tarStream io.Reader, opts PackOptions) (*PackResult, error) {
	if tarStream == nil {
		return nil, ErrNilReader
	}

	tr := tar.NewReader(tarStream)
	next := func() (*packItem, error) {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: next entry: %w", ErrTarRead, err)
		}

		return tarHeaderItem(hdr, tr), nil
	}

	return packCore(ctx, out, next, opts)
}

// PackTarFile converts tarPath into a SAR container at outPath.
// On failure the partial output file is removed.
func PackTarFile(ctx context.Context, outPath, tarPath string, opts PackOptions) (*PackResult, error) {
	in, err := os.Open(tarPath)
	if err != nil {
		return nil, fmt.Errorf("open tar file: %w", err)
	}
	defer func() { _ = in.Close() }()

	return packToFile(outPath, func(out io.WriteSeeker) (*PackResult, error) {
		return PackTar(ctx, out, in, opts)
	})
}

// PackFiles packs regular files under rootDir into a SAR container.
//
// Files are walked and packed in sorted path order; PackOptions.Filter
// selects members by pathrules include/exclude rules.
func PackFiles(ctx context.Context, out io.WriteSeeker, rootDir string, opts PackOptions) (*PackResult, error) {
	opts.applyDefaults()

	filter, err := newPackFilter(opts.Filter, opts.FilterMatcherOptions)
	if err != nil {
		return nil, err
	}

	items, err := collectFileItems(rootDir, filter)
	if err != nil {
		return nil, err
	}

	pos := 0
	next := func() (*packItem, error) {
		if pos >= len(items) {
			return nil, nil
		}

		item := items[pos]
		pos++
		return item, nil
	}

	return packCore(ctx, out, next, opts)
}

// PackFilesFile packs rootDir into a SAR container at outPath.
// On failure the partial output file is removed.
func PackFilesFile(ctx context.Context, outPath, rootDir string, opts PackOptions) (*PackResult, error) {
	return packToFile(outPath, func(out io.WriteSeeker) (*PackResult, error) {
		return PackFiles(ctx, out, rootDir, opts)
	})
}

// packToFile runs a pack flow against a fresh output file and removes it on failure.
func packToFile(outPath string, pack func(out io.WriteSeeker) (*PackResult, error)) (*PackResult, error) {
	f, err := os.OpenFile(outPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create SAR file: %w", err)
	}

	res, err := pack(f)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(outPath)
		return nil, err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(outPath)
		return nil, fmt.Errorf("sync SAR file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(outPath)
		return nil, fmt.Errorf("close SAR file: %w", err)
	}

	return res, nil
}

// tarHeaderItem maps one tar header to a pack item.
// Unsupported entry types are packed as KindOther without payload.
func tarHeaderItem(hdr *tar.Header, tr *tar.Reader) *packItem {
	item := &packItem{
		path:  hdr.Name,
		mtime: timeToUnix(hdr.ModTime.Unix()),
		mode:  uint32(hdr.Mode) & 0o7777, //nolint:gosec // masked to permission bits
	}

	switch hdr.Typeflag {
	case tar.TypeReg:
		item.kind = KindFile
		item.open = func() (io.ReadCloser, error) {
			return io.NopCloser(&tarPayloadReader{r: tr}), nil
		}
	case tar.TypeDir:
		item.kind = KindDir
		item.path = strings.TrimSuffix(item.path, "/")
	case tar.TypeSymlink:
		// The descriptor has no linkname field; the link target is the payload.
		item.kind = KindSymlink
		target := hdr.Linkname
		item.open = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(target)), nil
		}
	default:
		item.kind = KindOther
	}

	return item
}

// tarPayloadReader propagates tar payload corruption as ErrTarRead.
type tarPayloadReader struct {
	r io.Reader
}

// Read reads the next payload chunk from the current tar entry.
func (t *tarPayloadReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: entry payload: %w", ErrTarRead, err)
	}

	return n, err
}

// collectFileItems walks rootDir and returns pack items for selected regular files.
func collectFileItems(rootDir string, filter *packFilter) ([]*packItem, error) {
	items := make([]*packItem, 0, 64)

	err := filepath.WalkDir(rootDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(rootDir, p)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)
		if !filter.Match(rel, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		srcPath := p
		items = append(items, &packItem{
			path:  rel,
			kind:  KindFile,
			mode:  uint32(info.Mode().Perm()),
			mtime: timeToUnix(info.ModTime().Unix()),
			open: func() (io.ReadCloser, error) {
				return os.Open(srcPath)
			},
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", rootDir, err)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].path < items[j].path
	})

	return items, nil
}

// packCore is the shared single-pass writer core for all pack flows.
//
// It writes a zeroed preamble placeholder, streams every payload in item
// order with strictly increasing offsets, appends the encoded index block,
// and finally patches the preamble with the index location. A container is
// valid only once the preamble patch lands, so an aborted pack never leaves
// a decodable file behind.
func packCore(ctx context.Context, out io.WriteSeeker, next func() (*packItem, error), opts PackOptions) (*PackResult, error) {
	if out == nil {
		return nil, ErrNilWriter
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()

	w, releaseWriter := acquirePackWriter(out, opts.WriterBufferSize)
	defer releaseWriter()

	var placeholder [preambleSize]byte
	if _, err := w.Write(placeholder[:]); err != nil {
		return nil, fmt.Errorf("write preamble placeholder: %w", err)
	}

	copyBuf, releaseCopyBuffer := acquirePackCopyBuffer()
	defer releaseCopyBuffer()

	entries := make([]EntryInfo, 0, 64)
	seen := make(map[string]struct{}, 64)
	offset := uint64(preambleSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item, err := next()
		if err != nil {
			return nil, err
		}
		if item == nil {
			break
		}

		path, err := normalizeArchiveEntryPath(item.path)
		if err != nil {
			return nil, err
		}

		if _, exists := seen[path]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEntryPath, path)
		}
		seen[path] = struct{}{}

		var written int64
		if item.open != nil {
			written, err = writeItemPayload(w, item, offset, copyBuf)
			if err != nil {
				return nil, err
			}
		}

		entry := EntryInfo{
			Path:    path,
			Offset:  offset,
			Size:    uint64(written),
			ModTime: item.mtime,
			Mode:    item.mode,
			Kind:    item.kind,
		}
		entries = append(entries, entry)

		if opts.OnEntryDone != nil {
			opts.OnEntryDone(PackEntryProgress{
				Path:   path,
				Offset: entry.Offset,
				Size:   entry.Size,
				Kind:   entry.Kind,
			})
		}

		offset += uint64(written)
	}

	indexBytes, err := encodeIndex(entries)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(indexBytes); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush container: %w", err)
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to preamble: %w", err)
	}

	pre := encodePreamble(preamble{
		indexOffset: offset,
		indexLength: uint64(len(indexBytes)),
	})
	if _, err := out.Write(pre); err != nil {
		return nil, fmt.Errorf("patch preamble: %w", err)
	}

	return &PackResult{
		WrittenEntries: len(entries),
		DataSize:       int64(offset) - preambleSize,
		IndexSize:      int64(len(indexBytes)),
	}, nil
}

// writeItemPayload streams one item payload into the container.
func writeItemPayload(dst io.Writer, item *packItem, offset uint64, copyBuf []byte) (int64, error) {
	rc, err := item.open()
	if err != nil {
		return 0, fmt.Errorf("open input %s: %w", item.path, err)
	}

	limit := int64(math.MaxInt64) - int64(offset) //nolint:gosec // offset < MaxInt64 by pack invariant
	written, writeErr := copyPayloadBounded(dst, rc, limit, copyBuf)
	closeErr := rc.Close()
	if writeErr != nil {
		return 0, fmt.Errorf("stream input %s: %w", item.path, writeErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("close input %s: %w", item.path, closeErr)
	}

	return written, nil
}

// acquirePackWriter returns a buffered writer and release callback for pack flows.
func acquirePackWriter(out io.Writer, size int) (*bufio.Writer, func()) {
	if size == DefaultWriteBuffer {
		w := defaultPackWriterPool.Get().(*bufio.Writer) //nolint:forcetypeassert // pool contains only *bufio.Writer
		w.Reset(out)

		return w, func() {
			w.Reset(io.Discard)
			defaultPackWriterPool.Put(w)
		}
	}

	return bufio.NewWriterSize(out, size), func() {}
}

// acquirePackCopyBuffer returns reusable payload copy buffer and release callback.
func acquirePackCopyBuffer() ([]byte, func()) {
	arr := defaultPackCopyBufferPool.Get().(*[packCopyBufferSize]byte) //nolint:forcetypeassert // pool contains only fixed-size buffers
	buf := arr[:]

	return buf, func() {
		defaultPackCopyBufferPool.Put(arr)
	}
}

// copyPayloadBounded streams payload from src to dst and enforces strict size limit.
func copyPayloadBounded(dst io.Writer, src io.Reader, limit int64, buf []byte) (int64, error) {
	if dst == nil {
		return 0, ErrNilWriter
	}
	if src == nil {
		return 0, ErrNilReader
	}
	if limit < 0 {
		return 0, ErrSizeOverflow
	}
	if len(buf) == 0 {
		buf = make([]byte, 32*1024)
	}

	var written int64
	emptyReads := 0
	for written < limit {
		chunkSize := len(buf)
		remaining := limit - written
		if int64(chunkSize) > remaining {
			chunkSize = int(remaining)
		}

		n, readErr := src.Read(buf[:chunkSize])
		if n > 0 {
			emptyReads = 0
			nw, writeErr := dst.Write(buf[:n])
			written += int64(nw)

			if writeErr != nil {
				return written, writeErr
			}
			if nw != n {
				return written, io.ErrShortWrite
			}
		}
		if n == 0 && readErr == nil {
			emptyReads++
			if emptyReads > 100 {
				return written, io.ErrNoProgress
			}

			continue
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}

			return written, readErr
		}
	}

	// If we consumed exactly the limit, probe one extra byte to ensure source is not longer.
	if written == limit {
		var probe [1]byte
		n, err := src.Read(probe[:])
		if n > 0 {
			return written, ErrSizeOverflow
		}
		if err != nil && err != io.EOF {
			return written, err
		}
	}

	return written, nil
}

// timeToUnix converts Unix seconds to the unsigned on-disk form with clamping.
func timeToUnix(u int64) uint64 {
	if u < 0 {
		return 0
	}

	return uint64(u)
}
