// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package sar

import "errors"

// Sentinel errors for SAR operations. Use errors.Is in callers.
var (
	// ErrNotSarFile means the preamble magic or format version is unrecognized.
	ErrNotSarFile = errors.New("not a SAR file: missing or bad preamble")
	// ErrMalformedIndex means the index block failed structural decode or validation.
	ErrMalformedIndex = errors.New("malformed index block")
	// ErrEntryNotFound means the named entry is absent from the index.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrTruncatedRead means the range source returned fewer bytes than declared.
	ErrTruncatedRead = errors.New("truncated read from range source")
	// ErrTarRead means the upstream tar stream is corrupt or unreadable.
	ErrTarRead = errors.New("tar stream read failed")
	// ErrDuplicateEntryPath means two packed entries resolve to the same path.
	ErrDuplicateEntryPath = errors.New("duplicate entry path")
	// ErrFileNameTooLong means the entry path exceeds the maximum length.
	ErrFileNameTooLong = errors.New("entry path exceeds maximum length")
	// ErrSizeOverflow means a size or offset exceeds the addressable range.
	ErrSizeOverflow = errors.New("size or offset exceeds addressable range")
	// ErrNilReader means the reader or range source is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrClosed means the reader or resource is already closed.
	ErrClosed = errors.New("reader or resource already closed")
	// ErrInvalidEntryPath means an input entry path is empty or invalid after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrInvalidExtractPath means an archive entry path is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrInvalidFilterPattern means one or more pack filter rules are invalid.
	ErrInvalidFilterPattern = errors.New("invalid filter rules")
)
