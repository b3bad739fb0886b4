// SPDX-License-Identifier: MIT
// Copyright (c) 2026 g0mb4
// Source: github.com/g0mb4/qutils

package qutils

import (
	"errors"
	"fmt"
)

// Error kinds. Every specific sentinel below wraps exactly one kind, so callers
// may match either the kind or the specific cause with errors.Is.
var (
	// ErrFormat means the archive structure is malformed.
	ErrFormat = errors.New("format error")
	// ErrCapacity means a configured entry limit was exceeded.
	ErrCapacity = errors.New("capacity error")
	// ErrIO means an open, seek, read, or write failed or came up short.
	ErrIO = errors.New("i/o error")
	// ErrNotFound means a name lookup missed.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported means the archive or input uses an unsupported feature.
	ErrUnsupported = errors.New("unsupported feature")
	// ErrEncoding means a name, path, or rule pattern cannot be represented as given.
	ErrEncoding = errors.New("encoding error")
)

// Sentinel errors for archive operations. Use errors.Is in callers.
var (
	// ErrBadMagic means the first 4 header bytes do not match the format tag.
	ErrBadMagic = fmt.Errorf("%w: bad magic", ErrFormat)
	// ErrShortHeader means the source is shorter than the fixed header.
	ErrShortHeader = fmt.Errorf("%w: short header", ErrFormat)
	// ErrTruncatedDirectory means the directory is not a whole number of records or runs past EOF.
	ErrTruncatedDirectory = fmt.Errorf("%w: truncated directory", ErrFormat)
	// ErrUnknownFormat means the requested archive format is not PAK or WAD2.
	ErrUnknownFormat = fmt.Errorf("%w: unknown archive format", ErrFormat)

	// ErrTooManyEntries means the entry count exceeds the configured maximum.
	ErrTooManyEntries = fmt.Errorf("%w: too many entries", ErrCapacity)
	// ErrSizeOverflow means an offset or size does not fit the 32-bit wire fields.
	ErrSizeOverflow = fmt.Errorf("%w: size exceeds 4 GiB archive limit", ErrCapacity)

	// ErrTruncated means fewer payload bytes are available than the entry declares.
	ErrTruncated = fmt.Errorf("%w: truncated payload", ErrIO)
	// ErrSourceSizeMismatch means a source entry produced a different byte count than it declared.
	ErrSourceSizeMismatch = fmt.Errorf("%w: source size mismatch", ErrIO)
	// ErrNilReader means the reader is nil.
	ErrNilReader = fmt.Errorf("%w: reader is nil", ErrIO)
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = fmt.Errorf("%w: writer is nil", ErrIO)
	// ErrClosed means the reader is already closed.
	ErrClosed = fmt.Errorf("%w: reader already closed", ErrIO)
	// ErrOutputLocked means another process holds the build lock for the output path.
	ErrOutputLocked = fmt.Errorf("%w: output is locked by another writer", ErrIO)

	// ErrEntryNotFound means the entry is not found.
	ErrEntryNotFound = fmt.Errorf("%w: entry", ErrNotFound)

	// ErrCompressedEntry means a compressed WAD2 entry was selected for extraction.
	ErrCompressedEntry = fmt.Errorf("%w: compressed entry", ErrUnsupported)
	// ErrCompressedInput means a build input is marked as compressed (trailing C extension).
	ErrCompressedInput = fmt.Errorf("%w: compressed input", ErrUnsupported)
	// ErrUnsupportedSource means the source walk met something other than a regular file or directory.
	ErrUnsupportedSource = fmt.Errorf("%w: source is not a regular file", ErrUnsupported)

	// ErrInvalidEscape means a "!" in an external name is not followed by two hex digits.
	ErrInvalidEscape = fmt.Errorf("%w: invalid hex escape", ErrEncoding)
	// ErrInvalidNameChar means an external name contains a byte that is neither safe nor escaped.
	ErrInvalidNameChar = fmt.Errorf("%w: invalid name character", ErrEncoding)
	// ErrEmptyName means an entry name is empty after decoding.
	ErrEmptyName = fmt.Errorf("%w: empty name", ErrEncoding)
	// ErrNameTooLong means a name does not fit its fixed-size field with a NUL terminator.
	ErrNameTooLong = fmt.Errorf("%w: name too long", ErrEncoding)
	// ErrUnknownExtension means an external WAD2 extension maps to no type code.
	ErrUnknownExtension = fmt.Errorf("%w: unknown extension", ErrEncoding)

	// ErrInvalidEntryPath means a source path cannot be stored verbatim as an entry name.
	ErrInvalidEntryPath = fmt.Errorf("%w: invalid entry path", ErrEncoding)
	// ErrInvalidExtractPath means archive entry path is invalid for extraction destination.
	ErrInvalidExtractPath = fmt.Errorf("%w: invalid extract path", ErrFormat)
	// ErrInvalidRules means one or more selection rules are invalid.
	ErrInvalidRules = fmt.Errorf("%w: invalid selection rules", ErrEncoding)
)
