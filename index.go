// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package sar

import (
	"encoding/binary"
	"fmt"
	"math"
)

// preamble is the fixed-size header at offset 0 that locates the index block.
type preamble struct {
	// indexOffset is the absolute offset of the index block.
	indexOffset uint64
	// indexLength is the index block length in bytes.
	indexLength uint64
}

// encodePreamble serializes the fixed 24-byte preamble.
func encodePreamble(p preamble) []byte {
	buf := make([]byte, preambleSize)
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], formatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], p.indexOffset)
	binary.LittleEndian.PutUint64(buf[16:24], p.indexLength)

	return buf
}

// parsePreamble validates the format marker and version and returns index location.
func parsePreamble(buf []byte) (preamble, error) {
	if len(buf) < preambleSize {
		return preamble{}, fmt.Errorf("%w: short preamble", ErrNotSarFile)
	}

	if string(buf[0:4]) != magic {
		return preamble{}, ErrNotSarFile
	}

	if version := binary.LittleEndian.Uint32(buf[4:8]); version != formatVersion {
		return preamble{}, fmt.Errorf("%w: unsupported version %d", ErrNotSarFile, version)
	}

	return preamble{
		indexOffset: binary.LittleEndian.Uint64(buf[8:16]),
		indexLength: binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

// encodeIndex serializes entry descriptors into the binary index block.
// Entry order is preserved; decodeIndex(encodeIndex(xs)) round-trips exactly.
func encodeIndex(entries []EntryInfo) ([]byte, error) {
	total := 8
	for i := range entries {
		if len(entries[i].Path) > maxNameLen {
			return nil, fmt.Errorf("%w: %q", ErrFileNameTooLong, entries[i].Path)
		}
		if entries[i].Path == "" {
			return nil, fmt.Errorf("%w: empty path", ErrInvalidEntryPath)
		}
		if entries[i].Size > math.MaxUint64-entries[i].Offset {
			return nil, fmt.Errorf("%w: entry %s offset+size overflows", ErrSizeOverflow, entries[i].Path)
		}

		total += entryFixedSize + len(entries[i].Path)
	}

	buf := make([]byte, 0, total)
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], uint64(len(entries)))
	buf = append(buf, scratch[:]...)

	for i := range entries {
		e := &entries[i]

		var fields [entryFixedSize]byte
		binary.LittleEndian.PutUint32(fields[0:4], uint32(len(e.Path)))
		fields[4] = byte(e.Kind)
		binary.LittleEndian.PutUint32(fields[5:9], e.Mode)
		binary.LittleEndian.PutUint64(fields[9:17], e.ModTime)
		binary.LittleEndian.PutUint64(fields[17:25], e.Offset)
		binary.LittleEndian.PutUint64(fields[25:33], e.Size)

		buf = append(buf, fields[:]...)
		buf = append(buf, e.Path...)
	}

	return buf, nil
}

// decodeIndex deserializes the binary index block back into entry descriptors.
func decodeIndex(buf []byte) ([]EntryInfo, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("%w: short count field", ErrMalformedIndex)
	}

	count := binary.LittleEndian.Uint64(buf[0:8])
	rest := buf[8:]

	// Every entry occupies at least the fixed record, so a lying count field
	// is rejected before any allocation sized from it.
	if count > uint64(len(rest)/entryFixedSize) {
		return nil, fmt.Errorf("%w: entry count %d exceeds block capacity", ErrMalformedIndex, count)
	}

	entries := make([]EntryInfo, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(rest) < entryFixedSize {
			return nil, fmt.Errorf("%w: truncated entry record %d", ErrMalformedIndex, i)
		}

		nameLen := binary.LittleEndian.Uint32(rest[0:4])
		kind := EntryKind(rest[4])
		mode := binary.LittleEndian.Uint32(rest[5:9])
		mtime := binary.LittleEndian.Uint64(rest[9:17])
		offset := binary.LittleEndian.Uint64(rest[17:25])
		size := binary.LittleEndian.Uint64(rest[25:33])
		rest = rest[entryFixedSize:]

		if nameLen == 0 || nameLen > maxNameLen {
			return nil, fmt.Errorf("%w: entry %d name length %d", ErrMalformedIndex, i, nameLen)
		}
		if uint64(len(rest)) < uint64(nameLen) {
			return nil, fmt.Errorf("%w: truncated entry name %d", ErrMalformedIndex, i)
		}
		if kind > KindOther {
			return nil, fmt.Errorf("%w: entry %d unknown kind %d", ErrMalformedIndex, i, kind)
		}
		if size > math.MaxUint64-offset {
			return nil, fmt.Errorf("%w: entry %d offset+size overflows", ErrMalformedIndex, i)
		}

		entries = append(entries, EntryInfo{
			Path:    string(rest[:nameLen]),
			Offset:  offset,
			Size:    size,
			ModTime: mtime,
			Mode:    mode,
			Kind:    kind,
		})
		rest = rest[nameLen:]
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d bytes left over", ErrMalformedIndex, len(rest))
	}

	return entries, nil
}
