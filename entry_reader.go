// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package sar

import (
	"fmt"
	"io"
	"math"
)

// entryStream is a lazy payload stream for one entry. No bytes are fetched
// until the caller reads; a source that runs out before the declared size
// surfaces ErrTruncatedRead.
type entryStream struct {
	sr   *io.SectionReader
	path string
	size int64
	read int64
}

// Read reads the next payload chunk.
func (es *entryStream) Read(p []byte) (int, error) {
	n, err := es.sr.Read(p)
	es.read += int64(n)

	if (err == io.EOF || err == io.ErrUnexpectedEOF) && es.read < es.size {
		return n, fmt.Errorf("%w: entry %s got %d of %d bytes",
			ErrTruncatedRead, es.path, es.read, es.size)
	}

	return n, err
}

// Close closes entryStream (no-op; the container handle stays open).
func (es *entryStream) Close() error {
	return nil
}

// openEntryByInfo opens a payload stream for already resolved entry metadata.
func (r *Reader) openEntryByInfo(info EntryInfo) (io.ReadCloser, error) {
	offset, err := checkedUint64ToInt64(info.Offset)
	if err != nil {
		return nil, fmt.Errorf("entry %s offset: %w", info.Path, err)
	}

	size, err := checkedUint64ToInt64(info.Size)
	if err != nil {
		return nil, fmt.Errorf("entry %s size: %w", info.Path, err)
	}

	return &entryStream{
		sr:   io.NewSectionReader(r.src, offset, size),
		path: info.Path,
		size: size,
	}, nil
}

// OpenEntry opens the named entry for reading.
//
// The returned stream is lazy; consuming it costs range reads bounded by
// the entry's payload span and nothing outside it.
func (r *Reader) OpenEntry(name string) (io.ReadCloser, error) {
	if r == nil || r.src == nil {
		return nil, ErrNilReader
	}
	if r.isClosed() {
		return nil, ErrClosed
	}

	info, err := r.Entry(name)
	if err != nil {
		return nil, err
	}

	return r.openEntryByInfo(info)
}

// ReadEntry reads the full payload of the named entry.
//
// It issues exactly one range read of exactly the entry's declared size.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	if r == nil || r.src == nil {
		return nil, ErrNilReader
	}
	if r.isClosed() {
		return nil, ErrClosed
	}

	info, err := r.Entry(name)
	if err != nil {
		return nil, err
	}

	offset, err := checkedUint64ToInt64(info.Offset)
	if err != nil {
		return nil, fmt.Errorf("entry %s offset: %w", name, err)
	}

	size, err := checkedUint64ToInt64(info.Size)
	if err != nil {
		return nil, fmt.Errorf("entry %s size: %w", name, err)
	}

	buf := make([]byte, size)
	n, err := r.src.ReadAt(buf, offset)
	if err != nil && !(err == io.EOF && int64(n) == size) {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: entry %s got %d of %d bytes",
				ErrTruncatedRead, name, n, size)
		}

		return nil, fmt.Errorf("read entry %s: %w", name, err)
	}

	return buf, nil
}

// checkedUint64ToInt64 converts uint64 to int64 with overflow check.
func checkedUint64ToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, ErrSizeOverflow
	}

	return int64(v), nil
}
