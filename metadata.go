// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package sar

import "io"

// List opens a SAR container and returns entry metadata without payload reads.
func List(path string) ([]EntryInfo, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	return r.Entries(), nil
}

// ListFromReaderAt returns entry metadata from a random-access source.
func ListFromReaderAt(ra io.ReaderAt, size int64) ([]EntryInfo, error) {
	r, err := NewReaderFromReaderAt(ra, size)
	if err != nil {
		return nil, err
	}

	return r.Entries(), nil
}
