// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package sar

import (
	"io"
)

// Source provides random access to container bytes.
//
// It is the unit of I/O cost the format is designed around: opening a
// container issues exactly two ReadAt calls, extracting one entry issues
// one. Implementations exist for local files (via Open) and any
// io.ReaderAt with a known size, including remote byte-range clients.
// Implementations must tolerate concurrent ReadAt calls.
type Source interface {
	io.ReaderAt
	Size() int64
}

// readerAtSource adapts an io.ReaderAt with a known size to Source.
type readerAtSource struct {
	ra   io.ReaderAt
	size int64
}

// NewSource wraps an already-open random-access handle as a Source.
func NewSource(ra io.ReaderAt, size int64) Source {
	return &readerAtSource{ra: ra, size: size}
}

// ReadAt reads len(p) bytes at absolute offset off.
func (s *readerAtSource) ReadAt(p []byte, off int64) (int, error) {
	return s.ra.ReadAt(p, off)
}

// Size returns the total source length in bytes.
func (s *readerAtSource) Size() int64 {
	return s.size
}
