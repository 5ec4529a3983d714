// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package sar

import (
	"fmt"

	"github.com/woozymasta/pathrules"
)

// packFilter holds compiled member selection rules for directory packing.
type packFilter struct {
	matcher *pathrules.Matcher
}

// newPackFilter compiles member selection path rules.
// A nil filter (no rules) selects every walked file.
func newPackFilter(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*packFilter, error) {
	rules = normalizeFilterRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidFilterPattern, err)
	}

	return &packFilter{matcher: matcher}, nil
}

// normalizeFilterRules normalizes rule patterns and drops empty patterns.
func normalizeFilterRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// Match reports whether path is selected for packing.
func (f *packFilter) Match(path string, isDir bool) bool {
	if f == nil || f.matcher == nil {
		return true
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	return f.matcher.Included(candidate, isDir)
}
