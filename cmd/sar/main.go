// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/woozymasta/pathrules"
	"github.com/woozymasta/sar"
)

func create(cmd *command) {
	log.Println("creating archive", cmd.archivePath, "from", cmd.inputPath)

	if lowerExt(cmd.inputPath) == ".sar" {
		log.Fatalln("cannot pack a SAR file; did you mix up the input and output paths?")
	}

	opts := sar.PackOptions{
		Filter:               buildFilterRules(cmd),
		FilterMatcherOptions: buildFilterMatcherOptions(cmd),
		OnEntryDone: func(entry sar.PackEntryProgress) {
			log.Printf("packed %s (%d bytes)\n", entry.Path, entry.Size)
		},
	}

	var res *sar.PackResult
	var err error
	if lowerExt(cmd.inputPath) == ".tar" {
		res, err = sar.PackTarFile(context.Background(), cmd.archivePath, cmd.inputPath, opts)
	} else {
		res, err = sar.PackFilesFile(context.Background(), cmd.archivePath, cmd.inputPath, opts)
	}
	if err != nil {
		log.Fatalln("failed to create archive:", err)
	}

	log.Printf("done: %d entries, %d data bytes, %d index bytes\n",
		res.WrittenEntries, res.DataSize, res.IndexSize)
}

func list(cmd *command) {
	entries, err := sar.List(cmd.archivePath)
	if err != nil {
		log.Fatalln("failed to open archive:", err)
	}

	for _, e := range entries {
		mtime := time.Unix(int64(e.ModTime), 0).UTC().Format(time.RFC3339) //nolint:gosec // clamped at pack time
		fmt.Printf("%-7s %10d  %s  %s\n", e.Kind, e.Size, mtime, e.Path)
	}
	log.Printf("%d entries\n", len(entries))
}

func extract(cmd *command) {
	log.Println("extracting archive", cmd.archivePath, "to", cmd.extractPath)

	r, err := sar.Open(cmd.archivePath)
	if err != nil {
		log.Fatalln("failed to open archive:", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Println("failed to close archive:", err)
		}
	}()

	err = r.Extract(context.Background(), cmd.extractPath, sar.ExtractOptions{
		MaxWorkers: cmd.thread,
		OnEntryDone: func(entry sar.EntryInfo, written int64, outputPath string) {
			log.Printf("extracted %s (%d bytes)\n", entry.Path, written)
		},
	})
	if err != nil {
		log.Fatalln("failed to extract archive:", err)
	}
}

// buildFilterRules maps -o/-e extension flags to pathrules.
func buildFilterRules(cmd *command) []pathrules.Rule {
	rules := make([]pathrules.Rule, 0, len(cmd.only.values)+len(cmd.exclude.values))
	for _, ext := range cmd.only.values {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: "*" + ext})
	}
	for _, ext := range cmd.exclude.values {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: "*" + ext})
	}

	return rules
}

// buildFilterMatcherOptions selects the default action: an allow-list when
// -o is present, a deny-list otherwise.
func buildFilterMatcherOptions(cmd *command) pathrules.MatcherOptions {
	action := pathrules.ActionInclude
	if len(cmd.only.values) > 0 {
		action = pathrules.ActionExclude
	}

	return pathrules.MatcherOptions{DefaultAction: action}
}

func lowerExt(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}

	return strings.ToLower(path[idx:])
}

func main() {
	cmd := parseArgs()
	switch cmd.operation {
	case "create":
		create(cmd)
	case "list":
		list(cmd)
	case "extract":
		extract(cmd)
	}
}
