// SPDX-License-Identifier: MIT
// Copyright (c) 2026 g0mb4
// Source: github.com/g0mb4/qutils

package qutils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// extractCopyBufferSize defines per-worker buffer size for file copy during extraction.
const extractCopyBufferSize = 64 * 1024

// extractWorkItem stores one selected entry with prepared output relative paths.
type extractWorkItem struct {
	relPath string
	relDir  string
	entry   EntryInfo
}

// OutputName returns the slash-separated relative file name an entry extracts to.
//
// PAK entries keep their directory structure unless flatten is set, in which case
// only the base name is used. WAD2 entries always use the escaped external name.
func OutputName(format Format, entry EntryInfo, flatten bool) (string, error) {
	if format == FormatWAD2 {
		return EncodeWADName(entry.Name, entry.Type, entry.Compressed), nil
	}

	normalized, err := normalizeExtractEntryPath(entry.Name)
	if err != nil {
		return "", fmt.Errorf("%w: entry %d %q", err, entry.Index, entry.Name)
	}
	if flatten {
		return path.Base(normalized), nil
	}

	return normalized, nil
}

// Extract writes selected entries to dstDir.
//
// With one worker (the default) entries are written in directory order and a later
// entry with the same output name overwrites an earlier one. With more workers the
// last entry per output name is kept, so the result on disk is the same. The first
// failure aborts the run unless ContinueOnError is set, in which case every
// failure is returned joined.
func (r *Reader) Extract(ctx context.Context, dstDir string, opts ExtractOptions) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()

	matcher, err := newEntryMatcher(opts.Rules, opts.RulesMatcherOptions)
	if err != nil {
		return err
	}

	entries := r.entries
	if opts.Entries != nil {
		entries = opts.Entries
	}
	if len(entries) == 0 {
		return nil
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return fmt.Errorf("%w: resolve output dir: %w", ErrIO, err)
	}
	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return fmt.Errorf("%w: create output dir: %w", ErrIO, err)
	}

	workItems, prepErrs := r.prepareExtractWorkItems(entries, matcher, opts.Flatten)
	if len(prepErrs) > 0 && !opts.ContinueOnError {
		return prepErrs[0]
	}
	if opts.MaxWorkers > 1 {
		workItems = dedupeExtractWorkItems(workItems)
	}

	if err := prepareExtractDirs(dstRootAbs, workItems); err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		errs = prepErrs
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxWorkers)

	for _, task := range workItems {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			copyBuf := make([]byte, extractCopyBufferSize)
			err := r.extractPreparedEntry(gctx, dstRootAbs, task, opts, copyBuf)
			if err == nil {
				return nil
			}
			if !opts.ContinueOnError {
				return err
			}

			opts.Logger.Warn("entry extraction failed", "name", task.entry.Name, "err", err)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return errors.Join(errs...)
}

// ExtractEntry writes one entry to dstDir under its flattened output name,
// overwriting any existing file, and returns the output path. dstDir is created
// when missing; an empty dstDir means the working directory.
func (r *Reader) ExtractEntry(entry EntryInfo, dstDir string) (string, error) {
	if err := r.ensureOpen(); err != nil {
		return "", err
	}

	name, err := OutputName(r.header.Format, entry, true)
	if err != nil {
		return "", err
	}

	if dstDir == "" {
		dstDir = "."
	}
	if err := os.MkdirAll(dstDir, 0o750); err != nil {
		return "", fmt.Errorf("%w: create output dir: %w", ErrIO, err)
	}

	outPath := filepath.Join(dstDir, filepath.FromSlash(name))
	task := extractWorkItem{entry: entry, relPath: filepath.FromSlash(name)}
	opts := ExtractOptions{FileMode: ExtractFileModeTruncate}
	opts.applyDefaults()

	if err := r.extractPreparedEntry(context.Background(), dstDir, task, opts, make([]byte, extractCopyBufferSize)); err != nil {
		return "", err
	}

	return outPath, nil
}

// prepareExtractWorkItems resolves output names and applies selection rules.
// Entries that cannot be extracted are reported as errors and left out.
func (r *Reader) prepareExtractWorkItems(entries []EntryInfo, matcher *entryMatcher, flatten bool) ([]extractWorkItem, []error) {
	workItems := make([]extractWorkItem, 0, len(entries))
	var errs []error

	for _, entry := range entries {
		name, err := OutputName(r.header.Format, entry, flatten)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !matcher.Match(name) {
			continue
		}
		if entry.Compressed {
			errs = append(errs, fmt.Errorf("%w: entry %d %q", ErrCompressedEntry, entry.Index, entry.Name))
			continue
		}

		relPath := filepath.FromSlash(name)
		relDir := filepath.Dir(relPath)
		if relDir == "." {
			relDir = ""
		}

		workItems = append(workItems, extractWorkItem{
			entry:   entry,
			relPath: relPath,
			relDir:  relDir,
		})
	}

	return workItems, errs
}

// dedupeExtractWorkItems keeps the last work item per output path, in original order.
func dedupeExtractWorkItems(workItems []extractWorkItem) []extractWorkItem {
	last := make(map[string]int, len(workItems))
	for i, task := range workItems {
		last[task.relPath] = i
	}
	if len(last) == len(workItems) {
		return workItems
	}

	out := make([]extractWorkItem, 0, len(last))
	for i, task := range workItems {
		if last[task.relPath] == i {
			out = append(out, task)
		}
	}

	return out
}

// prepareExtractDirs creates all unique parent directories needed by work items.
func prepareExtractDirs(dstRootAbs string, workItems []extractWorkItem) error {
	seen := make(map[string]struct{}, len(workItems))
	for _, task := range workItems {
		if task.relDir == "" {
			continue
		}

		dirPath := filepath.Join(dstRootAbs, task.relDir)
		if _, exists := seen[dirPath]; exists {
			continue
		}

		seen[dirPath] = struct{}{}
		if err := os.MkdirAll(dirPath, 0o750); err != nil {
			return fmt.Errorf("%w: create output directory %s: %w", ErrIO, dirPath, err)
		}
	}

	return nil
}

// extractPreparedEntry writes one prepared work item to destination root.
func (r *Reader) extractPreparedEntry(
	ctx context.Context,
	dstRootAbs string,
	task extractWorkItem,
	opts ExtractOptions,
	copyBuf []byte,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	outPath := filepath.Join(dstRootAbs, task.relPath)

	rc, err := r.OpenEntry(task.entry)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	file, err := openExtractFile(outPath, opts.FileMode)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrIO, outPath, err)
	}

	written, copyErr := copyExtractData(file, rc, copyBuf)
	closeErr := file.Close()
	if copyErr != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, outPath, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, outPath, closeErr)
	}
	if written != int64(task.entry.Size) {
		return fmt.Errorf("%w: entry %d %q wrote %d of %d bytes",
			ErrTruncated, task.entry.Index, task.entry.Name, written, task.entry.Size)
	}

	opts.Logger.Debug("entry extracted", "name", task.entry.Name, "path", outPath, "size", written)
	if opts.OnEntryDone != nil {
		opts.OnEntryDone(task.entry, written, outPath)
	}

	return nil
}

// openExtractFile opens output path according to selected extract file mode.
func openExtractFile(path string, mode ExtractFileMode) (*os.File, error) {
	switch mode {
	case ExtractFileModeAuto:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, nil
		}

		if !os.IsExist(err) {
			return nil, err
		}

		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	case ExtractFileModeTruncate:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	case ExtractFileModeCreateOnly:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	default:
		return nil, fmt.Errorf("unknown extract file mode %q", mode)
	}
}

// ParseExtractFileMode parses a file mode name; empty means ExtractFileModeAuto.
func ParseExtractFileMode(s string) (ExtractFileMode, error) {
	switch mode := ExtractFileMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "":
		return ExtractFileModeAuto, nil
	case ExtractFileModeAuto, ExtractFileModeTruncate, ExtractFileModeCreateOnly:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown extract file mode %q", s)
	}
}

// copyExtractData copies one entry stream to output file using fixed worker buffer.
func copyExtractData(dst *os.File, src io.Reader, buf []byte) (int64, error) {
	if len(buf) == 0 {
		return 0, io.ErrShortBuffer
	}

	var total int64
	for {
		readN, readErr := src.Read(buf)
		if readN > 0 {
			writeN, writeErr := dst.Write(buf[:readN])
			total += int64(writeN)

			if writeErr != nil {
				return total, writeErr
			}

			if writeN != readN {
				return total, io.ErrShortWrite
			}
		}

		if readErr == nil {
			continue
		}

		if readErr == io.EOF {
			return total, nil
		}

		return total, readErr
	}
}

// normalizeExtractEntryPath normalizes entry path and rejects absolute/traversal inputs.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	raw := entryPath
	if raw == "" {
		return "", ErrInvalidExtractPath
	}
	if strings.ContainsRune(raw, 0) {
		return "", ErrInvalidExtractPath
	}
	if strings.HasPrefix(raw, `/`) || strings.HasPrefix(raw, `\`) {
		return "", ErrInvalidExtractPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if hasWindowsAbsDrivePrefix(raw) {
		return "", ErrInvalidExtractPath
	}

	parts := strings.Split(raw, `/`)
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidExtractPath
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(cleanParts, `/`), nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with drive-root prefix like C:/.
func hasWindowsAbsDrivePrefix(path string) bool {
	if len(path) < 3 {
		return false
	}

	return isASCIIAlpha(path[0]) && path[1] == ':' && path[2] == '/'
}

// isASCIIAlpha reports whether byte is ASCII latin letter.
func isASCIIAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
