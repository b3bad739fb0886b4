// SPDX-License-Identifier: MIT
// Copyright (c) 2026 g0mb4
// Source: github.com/g0mb4/qutils

package qutils

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

var (
	// defaultBuildWriterPool reuses default-sized bufio writers between Build calls.
	defaultBuildWriterPool = sync.Pool{
		New: func() any {
			return bufio.NewWriterSize(io.Discard, DefaultWriteBuffer)
		},
	}
	// defaultCopyBufferPool reuses payload copy buffers between Build calls.
	defaultCopyBufferPool = sync.Pool{
		New: func() any {
			return new([copyBufferSize]byte)
		},
	}
)

const (
	// copyBufferSize is per-build temporary buffer used by streaming payload copy.
	copyBufferSize = 64 * 1024
)

// Build writes an archive to out from src.
//
// Payloads are written first, in source order, behind a placeholder header. The
// directory follows the last payload, and the header is rewritten at offset zero
// once the directory offset and entry count are known. A failure at any step
// leaves out incomplete; use BuildFile for an atomic result.
func Build(ctx context.Context, out io.WriteSeeker, src Source, opts BuildOptions) (*BuildResult, error) {
	startedAt := time.Now()

	if out == nil {
		return nil, ErrNilWriter
	}
	if src == nil {
		return nil, ErrNilReader
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()
	if !opts.Format.valid() {
		return nil, ErrUnknownFormat
	}

	matcher, err := newEntryMatcher(opts.Rules, opts.RulesMatcherOptions)
	if err != nil {
		return nil, err
	}

	w, releaseWriter := acquireBuildWriter(out, opts.WriterBufferSize)
	defer releaseWriter()

	copyBuf, releaseCopyBuffer := acquireCopyBuffer()
	defer releaseCopyBuffer()

	header := Header{Format: opts.Format}
	var headerBuf [headerSize]byte
	if err := putHeader(headerBuf[:], header); err != nil {
		return nil, err
	}
	if _, err := w.Write(headerBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: write placeholder header: %w", ErrIO, err)
	}

	entries := make([]EntryInfo, 0, min(opts.MaxEntries, 256))
	currentOffset := uint32(headerSize)
	skipped := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		in, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("next source entry: %w", err)
		}

		if !matcher.Match(in.Path) {
			skipped++
			opts.Logger.Debug("source entry skipped by rules", "path", in.Path)
			continue
		}

		if len(entries) >= opts.MaxEntries {
			return nil, fmt.Errorf("%w: limit %d reached at %s", ErrTooManyEntries, opts.MaxEntries, in.Path)
		}

		entry, err := newBuildEntry(opts.Format, in.Path)
		if err != nil {
			return nil, fmt.Errorf("entry %d %s: %w", len(entries), in.Path, err)
		}

		size, err := checkedDataSize(in.Path, in.Size, currentOffset)
		if err != nil {
			return nil, err
		}

		if err := writeSourcePayload(w, in, copyBuf); err != nil {
			return nil, fmt.Errorf("entry %d %s: %w", len(entries), in.Path, err)
		}

		entry.Index = len(entries)
		entry.Offset = currentOffset
		entry.Size = size
		entry.UncompressedSize = size
		entries = append(entries, entry)
		currentOffset += size

		opts.Logger.Debug("entry added", "name", entry.Name, "offset", entry.Offset, "size", entry.Size)
		if opts.OnEntryDone != nil {
			opts.OnEntryDone(entry)
		}
	}

	header.DirOffset = currentOffset
	header.EntryCount = uint32(len(entries)) //nolint:gosec // bounded by MaxEntries
	if end := int64(header.DirOffset) + header.DirSize(); end >= maxArchiveData {
		return nil, fmt.Errorf("%w: directory ends at %d", ErrSizeOverflow, end)
	}

	record := make([]byte, opts.Format.RecordSize())
	for i := range entries {
		clear(record)
		if err := putEntry(record, opts.Format, entries[i]); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		if _, err := w.Write(record); err != nil {
			return nil, fmt.Errorf("%w: write record %d: %w", ErrIO, i, err)
		}
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("%w: flush directory: %w", ErrIO, err)
	}

	if err := putHeader(headerBuf[:], header); err != nil {
		return nil, err
	}
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek to header: %w", ErrIO, err)
	}
	if _, err := out.Write(headerBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: write header: %w", ErrIO, err)
	}
	if _, err := out.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("%w: seek to end: %w", ErrIO, err)
	}

	return &BuildResult{
		Entries:        entries,
		Header:         header,
		DataSize:       int64(header.DirOffset) - headerSize,
		SkippedEntries: skipped,
		Duration:       time.Since(startedAt),
	}, nil
}

// BuildFile builds an archive at outPath atomically.
//
// The archive is written to a temporary sibling file and renamed over outPath only
// after the header is final. An advisory lock on "<outPath>.lock" keeps concurrent
// builders of the same path apart; the lock file is left in place after the build.
// Source entries backed by the output, lock, or temporary file are not packed.
func BuildFile(ctx context.Context, outPath string, src Source, opts BuildOptions) (*BuildResult, error) {
	if src == nil {
		return nil, ErrNilReader
	}

	lockPath := outPath + ".lock"
	fileLock := flock.New(lockPath)

	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %w", ErrIO, lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, outPath)
	}
	defer func() { _ = fileLock.Unlock() }()

	tmpPath := fmt.Sprintf("%s.%s.tmp", outPath, uuid.New().String()[:6])
	src, err = skipFiles(src, outPath, lockPath, tmpPath)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create temp archive: %w", ErrIO, err)
	}

	committed := false
	defer func() {
		if f != nil {
			_ = f.Close()
		}
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	res, err := Build(ctx, f, src, opts)
	if err != nil {
		return nil, err
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("%w: sync archive: %w", ErrIO, err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: close archive: %w", ErrIO, err)
	}
	f = nil

	if err := os.Rename(tmpPath, outPath); err != nil {
		return nil, fmt.Errorf("%w: rename archive into place: %w", ErrIO, err)
	}
	committed = true

	return res, nil
}

// newBuildEntry derives the stored name (and WAD2 type) from a source path.
func newBuildEntry(format Format, sourcePath string) (EntryInfo, error) {
	if format == FormatWAD2 {
		name, typ, err := wadEntryName(sourcePath)
		if err != nil {
			return EntryInfo{}, err
		}

		return EntryInfo{Name: name, Type: typ}, nil
	}

	name, err := pakEntryName(sourcePath)
	if err != nil {
		return EntryInfo{}, err
	}

	return EntryInfo{Name: name}, nil
}

// acquireBuildWriter returns a buffered writer and release callback for Build.
func acquireBuildWriter(out io.Writer, size int) (*bufio.Writer, func()) {
	if size == DefaultWriteBuffer {
		w := defaultBuildWriterPool.Get().(*bufio.Writer) //nolint:forcetypeassert // pool contains only *bufio.Writer
		w.Reset(out)

		return w, func() {
			w.Reset(io.Discard)
			defaultBuildWriterPool.Put(w)
		}
	}

	return bufio.NewWriterSize(out, size), func() {}
}

// acquireCopyBuffer returns reusable payload copy buffer and release callback.
func acquireCopyBuffer() ([]byte, func()) {
	arr := defaultCopyBufferPool.Get().(*[copyBufferSize]byte) //nolint:forcetypeassert // pool contains only fixed-size buffers
	buf := arr[:]

	return buf, func() {
		defaultCopyBufferPool.Put(arr)
	}
}

// writeSourcePayload opens one source entry and copies exactly its declared size.
func writeSourcePayload(dst io.Writer, in SourceEntry, copyBuf []byte) error {
	if in.Open == nil {
		return fmt.Errorf("%w: Open is nil", ErrNilReader)
	}

	rc, err := in.Open()
	if err != nil {
		return fmt.Errorf("%w: open input: %w", ErrIO, err)
	}

	written, copyErr := copyPayloadBounded(dst, rc, in.Size, copyBuf)
	closeErr := rc.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close input: %w", ErrIO, closeErr)
	}
	if written != in.Size {
		return fmt.Errorf("%w: declared %d bytes, read %d", ErrSourceSizeMismatch, in.Size, written)
	}

	return nil
}

// copyPayloadBounded streams payload from src to dst and enforces strict size limit.
func copyPayloadBounded(dst io.Writer, src io.Reader, limit int64, buf []byte) (int64, error) {
	if dst == nil {
		return 0, ErrNilWriter
	}
	if src == nil {
		return 0, ErrNilReader
	}
	if limit < 0 {
		return 0, fmt.Errorf("%w: negative size %d", ErrSourceSizeMismatch, limit)
	}
	if len(buf) == 0 {
		buf = make([]byte, 32*1024)
	}

	var written int64
	emptyReads := 0
	for written < limit {
		chunkSize := len(buf)
		remaining := limit - written
		if int64(chunkSize) > remaining {
			chunkSize = int(remaining)
		}

		n, readErr := src.Read(buf[:chunkSize])
		if n > 0 {
			emptyReads = 0
			nw, writeErr := dst.Write(buf[:n])
			written += int64(nw)

			if writeErr != nil {
				return written, fmt.Errorf("%w: write payload: %w", ErrIO, writeErr)
			}
			if nw != n {
				return written, fmt.Errorf("%w: write payload: %w", ErrIO, io.ErrShortWrite)
			}
		}
		if n == 0 && readErr == nil {
			emptyReads++
			if emptyReads > 100 {
				return written, fmt.Errorf("%w: read input: %w", ErrIO, io.ErrNoProgress)
			}

			continue
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}

			return written, fmt.Errorf("%w: read input: %w", ErrIO, readErr)
		}
	}

	// If we consumed exactly the limit, probe one extra byte to ensure source is not longer.
	if written == limit {
		var probe [1]byte
		n, err := src.Read(probe[:])
		if n > 0 {
			return written, fmt.Errorf("%w: input is longer than declared %d bytes", ErrSourceSizeMismatch, limit)
		}
		if err != nil && err != io.EOF {
			return written, fmt.Errorf("%w: read input: %w", ErrIO, err)
		}
	}

	return written, nil
}

// checkedDataSize validates entry size for uint32 fields and running offset.
func checkedDataSize(path string, size int64, currentOffset uint32) (uint32, error) {
	if size < 0 || size > int64(^uint32(0)) {
		return 0, fmt.Errorf("%w: entry %s size %d is out of uint32 range", ErrSizeOverflow, path, size)
	}

	maxEntrySize := int64(^uint32(0)) - int64(currentOffset)
	if size > maxEntrySize {
		return 0, fmt.Errorf("%w: entry %s size would exceed 4 GiB", ErrSizeOverflow, path)
	}

	return uint32(size), nil
}
