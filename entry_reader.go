// SPDX-License-Identifier: MIT
// Copyright (c) 2026 g0mb4
// Source: github.com/g0mb4/qutils

package qutils

import (
	"fmt"
	"io"
)

// nopCloser wraps a reader and provides a no-op close.
type nopCloser struct {
	io.Reader
}

// Close closes nopCloser (no-op).
func (nopCloser) Close() error {
	return nil
}

// FindIndex returns the directory position of the first entry whose stored name
// equals name (exact, case-sensitive), or -1.
func (r *Reader) FindIndex(name string) int {
	if r == nil {
		return -1
	}

	for i := range r.entries {
		if r.entries[i].Name == name {
			return i
		}
	}

	return -1
}

// Find returns the first entry whose stored name equals name.
// A miss is not an error; callers decide what it means.
func (r *Reader) Find(name string) (EntryInfo, bool) {
	idx := r.FindIndex(name)
	if idx < 0 {
		return EntryInfo{}, false
	}

	return r.entries[idx], true
}

// Lookup resolves a user-supplied name. The stored name is tried first; for WAD2
// archives the external (escaped) file name is tried next, so "!AEX1.TEX" finds
// the entry stored as "\xaeX1".
func (r *Reader) Lookup(name string) (EntryInfo, error) {
	if entry, ok := r.Find(name); ok {
		return entry, nil
	}

	if r != nil && r.header.Format == FormatWAD2 {
		for i := range r.entries {
			e := &r.entries[i]
			if EncodeWADName(e.Name, e.Type, e.Compressed) == name {
				return *e, nil
			}
		}
	}

	return EntryInfo{}, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
}

// ReadPayload reads exactly the stored bytes of entry.
// It fails with ErrTruncated when the archive holds fewer bytes than declared and
// never returns a short buffer.
func (r *Reader) ReadPayload(entry EntryInfo) ([]byte, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	if err := r.checkBounds(&entry); err != nil {
		return nil, err
	}

	buf := make([]byte, entry.Size)
	n, err := r.ra.ReadAt(buf, int64(entry.Offset))
	if n < len(buf) {
		if err == nil || err == io.EOF {
			return nil, fmt.Errorf("%w: entry %d %q read %d of %d bytes", ErrTruncated, entry.Index, entry.Name, n, len(buf))
		}

		return nil, fmt.Errorf("%w: read entry %d %q: %w", ErrIO, entry.Index, entry.Name, err)
	}

	return buf, nil
}

// OpenEntry opens entry content for streaming reads.
// Compressed WAD2 entries are rejected with ErrCompressedEntry.
func (r *Reader) OpenEntry(entry EntryInfo) (io.ReadCloser, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	if entry.Compressed {
		return nil, fmt.Errorf("%w: entry %d %q", ErrCompressedEntry, entry.Index, entry.Name)
	}
	if err := r.checkBounds(&entry); err != nil {
		return nil, err
	}

	return nopCloser{Reader: io.NewSectionReader(r.ra, int64(entry.Offset), int64(entry.Size))}, nil
}

// ReadEntry reads full content of the named entry.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	entry, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if entry.Compressed {
		return nil, fmt.Errorf("%w: entry %d %q", ErrCompressedEntry, entry.Index, entry.Name)
	}

	return r.ReadPayload(entry)
}

// WriteEntryTo streams entry content to w and returns the number of bytes written.
func (r *Reader) WriteEntryTo(w io.Writer, entry EntryInfo) (int64, error) {
	if w == nil {
		return 0, ErrNilWriter
	}

	rc, err := r.OpenEntry(entry)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	written, err := io.Copy(w, rc)
	if err != nil {
		return written, fmt.Errorf("%w: copy entry %d %q: %w", ErrIO, entry.Index, entry.Name, err)
	}
	if written != int64(entry.Size) {
		return written, fmt.Errorf("%w: entry %d %q copied %d of %d bytes", ErrTruncated, entry.Index, entry.Name, written, entry.Size)
	}

	return written, nil
}

// checkBounds verifies that the entry payload lies within the archive.
func (r *Reader) checkBounds(entry *EntryInfo) error {
	if end := entry.end(); end > r.size {
		available := r.size - int64(entry.Offset)
		if available < 0 {
			available = 0
		}

		return fmt.Errorf("%w: entry %d %q declares %d bytes at offset %d, %d available",
			ErrTruncated, entry.Index, entry.Name, entry.Size, entry.Offset, available)
	}

	return nil
}
