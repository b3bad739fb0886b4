// SPDX-License-Identifier: MIT
// Copyright (c) 2026 g0mb4
// Source: github.com/g0mb4/qutils

package qutils

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath converts an archive/internal path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = normalizePathForMatching(raw)
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// normalizePathForMatching normalizes user/input paths for matcher use.
func normalizePathForMatching(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, `\`, `/`)
	p = strings.TrimPrefix(p, "./")
	return p
}

// splitEntryPath validates a slash-separated root-relative source path.
// Names are stored verbatim, so anything that would not read back as the same
// relative path (backslashes, empty or dot segments, a leading slash, NUL) is rejected.
func splitEntryPath(raw string) ([]string, error) {
	if raw == "" || strings.ContainsAny(raw, "\\\x00") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
	}

	parts := strings.Split(raw, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
		}
	}

	return parts, nil
}

// pakEntryName converts a root-relative source path to a stored PAK name.
func pakEntryName(raw string) (string, error) {
	if _, err := splitEntryPath(raw); err != nil {
		return "", err
	}
	if err := validateStoredName(FormatPAK, raw); err != nil {
		return "", err
	}

	return raw, nil
}

// wadEntryName converts a source path to a stored WAD2 name and type code.
// Only the base name is used; WAD2 names carry no directories.
func wadEntryName(raw string) (string, TypeCode, error) {
	parts, err := splitEntryPath(raw)
	if err != nil {
		return "", 0, err
	}

	return DecodeWADName(parts[len(parts)-1])
}
