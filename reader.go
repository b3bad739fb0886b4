// SPDX-License-Identifier: MIT
// Copyright (c) 2026 g0mb4
// Source: github.com/g0mb4/qutils

package qutils

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

const (
	// readerDirBufferSize is a sequential read buffer for directory parsing.
	readerDirBufferSize = 64 * 1024
)

var (
	// dirReaderPool reuses buffered readers for sequential directory parsing.
	dirReaderPool = sync.Pool{
		New: func() any {
			return bufio.NewReaderSize(bytes.NewReader(nil), readerDirBufferSize)
		},
	}
)

// Reader provides read-only access to a parsed PAK or WAD2 archive.
// Payload reads use io.ReaderAt, so one Reader may serve concurrent reads.
type Reader struct {
	// ra is the underlying random-access reader used for payload reads.
	ra io.ReaderAt
	// file is set when Reader owns an *os.File opened via Open.
	file *os.File
	// logger receives debug events.
	logger *slog.Logger
	// entries stores parsed immutable entry metadata in directory order.
	entries []EntryInfo
	// header is the decoded fixed header.
	header Header
	// size is total source size in bytes.
	size int64
	// mu guards closed state and close operation.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// Open opens an archive by path, detects its format, and loads the directory.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ReaderOptions{})
}

// OpenWithOptions opens an archive by path using explicit reader options.
func OpenWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	f, size, err := openFileWithSize(path)
	if err != nil {
		return nil, err
	}

	r, err := NewReaderFromReaderAtWithOptions(f, size, opts)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	r.file = f
	return r, nil
}

// NewReaderFromReaderAt parses an archive from an existing ReaderAt and known size.
func NewReaderFromReaderAt(ra io.ReaderAt, size int64) (*Reader, error) {
	return NewReaderFromReaderAtWithOptions(ra, size, ReaderOptions{})
}

// NewReaderFromReaderAtWithOptions parses an archive from an existing ReaderAt and
// known size using explicit reader options.
func NewReaderFromReaderAtWithOptions(ra io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	opts.applyDefaults()

	r := &Reader{ra: ra, size: size, logger: opts.Logger}
	if err := r.parse(opts); err != nil {
		return nil, err
	}

	return r, nil
}

// Format returns the archive format.
func (r *Reader) Format() Format {
	return r.header.Format
}

// Header returns the decoded header.
func (r *Reader) Header() Header {
	return r.header
}

// Size returns the total archive size in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// Len returns the number of directory entries.
func (r *Reader) Len() int {
	if r == nil {
		return 0
	}

	return len(r.entries)
}

// Entries returns a copy of parsed entries in directory order.
func (r *Reader) Entries() []EntryInfo {
	if r == nil {
		return nil
	}

	entries := make([]EntryInfo, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Close closes the underlying file if reader owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	if r.file != nil {
		return r.file.Close()
	}

	return nil
}

// ensureOpen returns an error when the reader cannot serve payload reads.
func (r *Reader) ensureOpen() error {
	if r == nil || r.ra == nil {
		return ErrNilReader
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	return nil
}

// parse reads and validates header and directory.
func (r *Reader) parse(opts ReaderOptions) error {
	header, err := readHeaderAt(r.ra, r.size, opts.Format)
	if err != nil {
		return err
	}
	r.header = header

	// Capacity and bounds are checked before anything proportional to the count is allocated.
	if uint64(header.EntryCount) > uint64(opts.MaxEntries) {
		return fmt.Errorf("%w: %d entries, limit %d", ErrTooManyEntries, header.EntryCount, opts.MaxEntries)
	}

	dirEnd := int64(header.DirOffset) + header.DirSize()
	if dirEnd > r.size {
		return fmt.Errorf("%w: directory [%d, %d) runs past end of file at %d",
			ErrTruncatedDirectory, header.DirOffset, dirEnd, r.size)
	}

	if err := r.parseDirectoryBuffered(); err != nil {
		return err
	}

	r.logger.Debug("archive loaded",
		"format", header.Format.String(),
		"entries", len(r.entries),
		"dir_offset", header.DirOffset,
		"size", r.size,
	)

	return nil
}

// readHeaderAt reads and decodes the fixed header at offset zero.
func readHeaderAt(ra io.ReaderAt, size int64, format Format) (Header, error) {
	if size < headerSize {
		return Header{}, fmt.Errorf("%w: file has %d bytes", ErrShortHeader, size)
	}

	var raw [headerSize]byte
	if _, err := ra.ReadAt(raw[:], 0); err != nil {
		if err == io.EOF {
			return Header{}, ErrShortHeader
		}

		return Header{}, fmt.Errorf("%w: read header: %w", ErrIO, err)
	}

	return DecodeHeader(format, raw[:])
}

// parseDirectoryBuffered decodes all directory records with sequential buffered reads.
func (r *Reader) parseDirectoryBuffered() error {
	count := int(r.header.EntryCount)
	r.entries = make([]EntryInfo, 0, count)
	if count == 0 {
		return nil
	}

	recordSize := r.header.Format.RecordSize()
	sr := io.NewSectionReader(r.ra, int64(r.header.DirOffset), r.header.DirSize())
	br := dirReaderPool.Get().(*bufio.Reader) //nolint:forcetypeassert // pool contains only *bufio.Reader
	br.Reset(sr)
	defer func() {
		br.Reset(bytes.NewReader(nil))
		dirReaderPool.Put(br)
	}()

	record := make([]byte, recordSize)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(br, record); err != nil {
			return fmt.Errorf("%w: read record %d: %w", ErrTruncatedDirectory, i, err)
		}

		entry, err := DecodeEntry(r.header.Format, record)
		if err != nil {
			return fmt.Errorf("decode record %d: %w", i, err)
		}

		entry.Index = i
		r.entries = append(r.entries, entry)
	}

	return nil
}

// openFileWithSize opens a file and returns a handle plus current size.
func openFileWithSize(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: open archive: %w", ErrIO, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: stat: %w", ErrIO, err)
	}

	return f, fi.Size(), nil
}
