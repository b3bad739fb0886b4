// SPDX-License-Identifier: MIT
// Copyright (c) 2026 g0mb4
// Source: github.com/g0mb4/qutils

package qutils

import (
	"fmt"

	"github.com/woozymasta/pathrules"
)

// entryMatcher holds compiled selection rules for build and extract.
type entryMatcher struct {
	matcher *pathrules.Matcher
}

// newEntryMatcher compiles selection rules. It returns nil when no rules are set.
func newEntryMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*entryMatcher, error) {
	rules = normalizeRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidRules, err)
	}

	return &entryMatcher{matcher: matcher}, nil
}

// normalizeRules normalizes rule patterns and drops empty patterns.
func normalizeRules(rules []pathrules.Rule) []pathrules.Rule {
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

// Match reports whether path is selected. A nil matcher selects everything.
func (m *entryMatcher) Match(p string) bool {
	if m == nil || m.matcher == nil {
		return true
	}

	candidate := NormalizePath(p)
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, false)
}

// defaultMatcherOptions fills unset matcher options. Rule sets that contain an
// include rule act as allow-lists; pure exclude sets keep everything else.
func defaultMatcherOptions(rules []pathrules.Rule, opts pathrules.MatcherOptions) pathrules.MatcherOptions {
	if opts == (pathrules.MatcherOptions{}) {
		opts.CaseInsensitive = true
	}

	if opts.DefaultAction == pathrules.ActionUnknown {
		opts.DefaultAction = pathrules.ActionInclude
		for _, rule := range rules {
			if rule.Action == pathrules.ActionInclude {
				opts.DefaultAction = pathrules.ActionExclude
				break
			}
		}
	}

	return opts
}

// SelectionRules builds ordered rules from include and exclude patterns.
// Includes come first so that excludes can carve exceptions out of them.
func SelectionRules(include, exclude []string) []pathrules.Rule {
	rules := make([]pathrules.Rule, 0, len(include)+len(exclude))
	for _, pattern := range include {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
	}
	for _, pattern := range exclude {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: pattern})
	}

	return rules
}
