// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// extListArg accumulates repeated extension flags and normalizes leading dots.
type extListArg struct {
	values []string
}

func (arg *extListArg) String() string {
	return strings.Join(arg.values, ",")
}

func (arg *extListArg) Set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("empty extension")
	}
	if !strings.HasPrefix(s, ".") {
		s = "." + s
	}

	arg.values = append(arg.values, s)
	return nil
}

type command struct {
	operation   string
	archivePath string
	inputPath   string
	extractPath string
	thread      int
	only        extListArg
	exclude     extListArg
}

func parseArgs() *command {
	c := &command{}
	set := flag.NewFlagSet("sar", flag.ExitOnError)
	set.Var(&c.only, "o", "[creation] optional, repeatable, only pack files with this extension")
	set.Var(&c.exclude, "e", "[creation] optional, repeatable, exclude files with this extension")
	set.StringVar(&c.extractPath, "d", ".", "[extraction] optional, target path")
	set.IntVar(&c.thread, "t", 4, "[extraction] optional, worker number")
	_ = set.Parse(os.Args[1:])
	reportAndExit := func(errMsg string) {
		fmt.Println(errMsg)
		fmt.Println()
		set.Usage()
		os.Exit(2)
	}
	// Parse the operation.
	args := set.Args()
	switch len(args) {
	case 0:
		reportAndExit("Operation is missing: c/create, l/list or x/extract")
	case 1:
		reportAndExit("Archive file name is missing.")
	}
	c.archivePath = args[1]
	switch op := strings.ToLower(args[0]); op {
	case "c", "create":
		if len(args) < 3 {
			reportAndExit("Input path is missing for archive creation.")
		}
		if len(args) > 3 {
			reportAndExit("Too many arguments for archive creation.")
		}
		c.operation = "create"
		c.inputPath = args[2]
	case "l", "list":
		if len(args) > 2 {
			reportAndExit("Too many arguments for listing.")
		}
		c.operation = "list"
	case "x", "extract":
		if len(args) > 2 {
			reportAndExit("Too many arguments for extraction.")
		}
		c.operation = "extract"
	default:
		reportAndExit(fmt.Sprintf("Unknown operation '%s'.", op))
	}

	return c
}
