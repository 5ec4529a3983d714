// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package sar

import (
	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	magic          = "SAR\n" // 4-byte format marker at offset 0
	formatVersion  = 1       // current container format version
	preambleSize   = 24      // magic + version u32 + index offset u64 + index length u64
	entryFixedSize = 33      // per-entry fixed fields before the name bytes
	maxNameLen     = 4096    // max entry path length in bytes
)

// Default packer tuning values.
const (
	DefaultWriteBuffer = 4 * 1024 * 1024
)

// EntryKind classifies a packed entry, mirroring the tar entry types
// relevant to extraction semantics.
type EntryKind uint8

// Entry kinds stored in the index.
const (
	// KindFile is a regular file whose payload is the file content.
	KindFile EntryKind = iota
	// KindDir is a directory; it carries no payload.
	KindDir
	// KindSymlink is a symbolic link; its payload is the link target.
	KindSymlink
	// KindOther is any tar entry type without extraction semantics here.
	KindOther
)

// String returns a short human-readable kind name.
func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// EntryInfo describes a single indexed SAR entry.
type EntryInfo struct {
	// Path is the entry path as stored in the index; unique per container.
	Path string `json:"path" yaml:"path"`
	// Offset is the absolute byte offset of entry payload in the container.
	Offset uint64 `json:"offset" yaml:"offset"`
	// Size is the payload size in bytes.
	Size uint64 `json:"size" yaml:"size"`
	// ModTime is the Unix timestamp carried from the source entry.
	ModTime uint64 `json:"mod_time,omitempty" yaml:"mod_time,omitempty"`
	// Mode stores POSIX permission bits carried from the source entry.
	Mode uint32 `json:"mode,omitempty" yaml:"mode,omitempty"`
	// Kind classifies the entry for extraction.
	Kind EntryKind `json:"kind" yaml:"kind"`
}

// PackEntryProgress contains one completed entry write event from pack flow.
type PackEntryProgress struct {
	// Path is the entry path written to the container.
	Path string `json:"path" yaml:"path"`
	// Offset is the payload offset in the resulting container.
	Offset uint64 `json:"offset" yaml:"offset"`
	// Size is the payload size written in bytes.
	Size uint64 `json:"size" yaml:"size"`
	// Kind classifies the written entry.
	Kind EntryKind `json:"kind" yaml:"kind"`
}

// PackOptions configures pack behavior.
type PackOptions struct {
	// OnEntryDone is called after one entry is fully written to the data region.
	OnEntryDone func(entry PackEntryProgress) `json:"-" yaml:"-"`
	// Filter defines ordered path rules for member selection in PackFiles.
	// An empty rule set packs everything.
	Filter []pathrules.Rule `json:"filter,omitempty" yaml:"filter,omitempty"`
	// FilterMatcherOptions control filter rule matching.
	FilterMatcherOptions pathrules.MatcherOptions `json:"filter_matcher_options,omitzero" yaml:"filter_matcher_options,omitzero"`
	// WriterBufferSize is buffered writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
}

// PackResult contains pack output statistics.
type PackResult struct {
	// WrittenEntries is number of entries written to the container.
	WrittenEntries int `json:"written_entries" yaml:"written_entries"`
	// DataSize is total payload bytes written to the data region.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// IndexSize is total index block bytes written.
	IndexSize int64 `json:"index_size" yaml:"index_size"`
}

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(entry EntryInfo, written int64, outputPath string) `json:"-" yaml:"-"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// Entries limits extraction to selected metadata list; nil means all entries.
	Entries []EntryInfo `json:"-" yaml:"-"`
	// MaxWorkers is number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
}

// ExtractFileMode controls output file open behavior during extraction.
type ExtractFileMode string

// Output file creation policies for extraction.
const (
	// ExtractFileModeAuto first tries create-only, then falls back to truncate for existing files.
	ExtractFileModeAuto ExtractFileMode = "auto"
	// ExtractFileModeOverwriteSmart rewrites files in place and truncates only when existing file is larger.
	ExtractFileModeOverwriteSmart ExtractFileMode = "overwrite_smart"
	// ExtractFileModeTruncate opens existing files with truncate and creates missing files.
	ExtractFileModeTruncate ExtractFileMode = "truncate"
	// ExtractFileModeCreateOnly creates files only when absent and fails on existing files.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
)

// applyDefaults fills zero-valued pack options with defaults.
func (opts *PackOptions) applyDefaults() {
	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriteBuffer
	}

	if opts.FilterMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.FilterMatcherOptions = pathrules.MatcherOptions{
			DefaultAction: pathrules.ActionInclude,
		}
	}

	if opts.FilterMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.FilterMatcherOptions.DefaultAction = pathrules.ActionInclude
	}
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.FileMode == "" {
		opts.FileMode = ExtractFileModeAuto
	}
}
