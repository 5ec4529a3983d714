// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

/*
Package sar provides pack, read, and extract operations for SAR
(streaming archive) containers. A SAR container concentrates all entry
metadata into one contiguous index block, so opening a container costs
exactly two range reads (preamble, then index) and reading any entry
costs exactly one more, regardless of entry count. That makes the format
a good fit for remote sources where each request is expensive but bytes
are cheap once located.

Container layout (all integers little-endian):

	{preamble 24B}{data region}{index block}
	preamble: "SAR\n" | version | index offset | index length

The format is write-once: packing appends data then seals the container
with the index, patching only the fixed preamble with final offsets.
Compression, in-place edits, and multi-volume spanning are out of scope.

# Reading

Open a container and list or read entries:

	r, err := sar.Open("data.sar")
	if err != nil {
	    return err
	}
	defer r.Close()
	for _, name := range r.Names() {
	    data, _ := r.ReadEntry(name)
	    // use data
	}

Any random-access source works, including remote byte-range clients:

	r, err := sar.NewReaderFromReaderAt(ra, size)

For metadata-only scans, use fast helpers without keeping a reader:

	entries, err := sar.List("data.sar")

# Extracting

Extract all entries to a directory (parallel workers):

	if err := r.Extract(ctx, "out/", sar.ExtractOptions{MaxWorkers: 4}); err != nil {
	    return err
	}

Path traversal protection is always on: absolute paths and ".." segments
in entry names fail extraction.

# Packing

Convert a tar stream in a single pass:

	res, err := sar.PackTarFile(ctx, "data.sar", "data.tar", sar.PackOptions{
	    OnEntryDone: func(entry sar.PackEntryProgress) {
	        // progress callback per written entry
	    },
	})

Or pack a directory tree, selecting members with pathrules filters:

	res, err := sar.PackFilesFile(ctx, "data.sar", "dataset/", sar.PackOptions{
	    Filter: []pathrules.Rule{
	        {Action: pathrules.ActionInclude, Pattern: "*.json"},
	    },
	    FilterMatcherOptions: pathrules.MatcherOptions{
	        DefaultAction: pathrules.ActionExclude,
	    },
	})
	_ = res.WrittenEntries

Duplicate entry paths are rejected at pack time, so the reader's
name-keyed lookup is always unambiguous.
*/
package sar
