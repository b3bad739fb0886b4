// SPDX-License-Identifier: MIT
// Copyright (c) 2026 g0mb4
// Source: github.com/g0mb4/qutils

package qutils

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	headerSize     = 12      // fixed header size for both formats
	pakRecordSize  = 64      // PAK directory record size
	wadRecordSize  = 32      // WAD2 directory record size
	pakNameSize    = 56      // PAK name field, NUL terminated
	wadNameSize    = 16      // WAD2 name field, NUL terminated
	maxArchiveData = 1 << 32 // addressable bytes with 32-bit offsets
)

// Default tuning values.
const (
	// DefaultMaxEntries is the soft directory capacity used by the reference tools.
	DefaultMaxEntries = 4096
	// DefaultWriteBuffer is the buffered writer size used by Build.
	DefaultWriteBuffer = 4 * 1024 * 1024
)

// Format identifies one of the supported container formats.
type Format uint8

// Supported formats.
const (
	// FormatUnknown selects magic-based detection when used in ReaderOptions.
	FormatUnknown Format = iota
	// FormatPAK is the flat "PACK" archive.
	FormatPAK
	// FormatWAD2 is the typed "WAD2" resource archive.
	FormatWAD2
)

var (
	pakMagic = [4]byte{'P', 'A', 'C', 'K'}
	wadMagic = [4]byte{'W', 'A', 'D', '2'}
)

// String returns a short lowercase format name.
func (f Format) String() string {
	switch f {
	case FormatPAK:
		return "pak"
	case FormatWAD2:
		return "wad2"
	default:
		return "unknown"
	}
}

// Magic returns the 4-byte header tag of the format.
func (f Format) Magic() [4]byte {
	switch f {
	case FormatPAK:
		return pakMagic
	case FormatWAD2:
		return wadMagic
	default:
		return [4]byte{}
	}
}

// RecordSize returns the directory record size in bytes, or zero for unknown formats.
func (f Format) RecordSize() int {
	switch f {
	case FormatPAK:
		return pakRecordSize
	case FormatWAD2:
		return wadRecordSize
	default:
		return 0
	}
}

// nameSize returns the fixed name field width.
func (f Format) nameSize() int {
	if f == FormatWAD2 {
		return wadNameSize
	}

	return pakNameSize
}

// valid reports whether f is PAK or WAD2.
func (f Format) valid() bool {
	return f == FormatPAK || f == FormatWAD2
}

// ParseFormat parses a user-supplied format name ("pak", "wad", "wad2").
// An empty string yields FormatUnknown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return FormatUnknown, nil
	case "pak", "pack":
		return FormatPAK, nil
	case "wad", "wad2":
		return FormatWAD2, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatFromPath guesses the format from an archive file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pak":
		return FormatPAK
	case ".wad":
		return FormatWAD2
	default:
		return FormatUnknown
	}
}

// detectFormat maps a header tag to its format.
func detectFormat(magic [4]byte) Format {
	switch magic {
	case pakMagic:
		return FormatPAK
	case wadMagic:
		return FormatWAD2
	default:
		return FormatUnknown
	}
}

// TypeCode classifies a WAD2 payload.
type TypeCode uint8

// Known WAD2 type codes. Any other value is legal and kept opaque.
const (
	TypePalette    TypeCode = 0x40
	TypeStatusBar  TypeCode = 0x42
	TypeMipTexture TypeCode = 0x44
	TypeConsolePic TypeCode = 0x45
)

// Extension returns the 3-character external extension for the type code.
func (t TypeCode) Extension() string {
	switch t {
	case TypePalette:
		return "PAL"
	case TypeStatusBar:
		return "STB"
	case TypeMipTexture:
		return "TEX"
	case TypeConsolePic:
		return "CON"
	default:
		return fmt.Sprintf("%02XH", uint8(t))
	}
}

// Header is the decoded fixed header of either format.
type Header struct {
	// Format is the archive format the header was decoded as.
	Format Format `json:"format" yaml:"format"`
	// DirOffset is the absolute byte offset of the directory.
	DirOffset uint32 `json:"dir_offset" yaml:"dir_offset"`
	// EntryCount is the number of directory records.
	// PAK stores it as a byte size; WAD2 stores the count itself.
	EntryCount uint32 `json:"entry_count" yaml:"entry_count"`
}

// DirSize returns the directory size in bytes.
func (h Header) DirSize() int64 {
	return int64(h.EntryCount) * int64(h.Format.RecordSize())
}

// EntryInfo describes one directory record.
type EntryInfo struct {
	// Name is the stored name up to the first NUL. WAD2 names may hold arbitrary bytes.
	Name string `json:"name" yaml:"name"`
	// Index is the zero-based position in the on-disk directory.
	Index int `json:"index" yaml:"index"`
	// Offset is the absolute payload offset.
	Offset uint32 `json:"offset" yaml:"offset"`
	// Size is the stored payload length (PAK size, WAD2 disk size).
	Size uint32 `json:"size" yaml:"size"`
	// UncompressedSize is the WAD2 logical size; equal to Size for PAK.
	UncompressedSize uint32 `json:"uncompressed_size" yaml:"uncompressed_size"`
	// Type is the WAD2 type code; zero for PAK.
	Type TypeCode `json:"type,omitempty" yaml:"type,omitempty"`
	// Compressed is the WAD2 compression flag.
	Compressed bool `json:"compressed,omitempty" yaml:"compressed,omitempty"`
}

// end returns the exclusive end offset of the payload.
func (e *EntryInfo) end() int64 {
	return int64(e.Offset) + int64(e.Size)
}

// ReaderOptions configures Open.
type ReaderOptions struct {
	// Logger receives debug events; nil disables logging.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Format forces a format; FormatUnknown detects it from the magic.
	Format Format `json:"format,omitempty" yaml:"format,omitempty"`
	// MaxEntries caps the directory size. Zero means DefaultMaxEntries.
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
}

// BuildOptions configures Build and BuildFile.
type BuildOptions struct {
	// OnEntryDone is called after one entry payload is fully written.
	OnEntryDone func(entry EntryInfo) `json:"-" yaml:"-"`
	// Logger receives debug events; nil disables logging.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Rules select source entries by relative path; empty means all entries.
	Rules []pathrules.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	// RulesMatcherOptions control rule matching.
	RulesMatcherOptions pathrules.MatcherOptions `json:"rules_matcher_options,omitzero" yaml:"rules_matcher_options,omitzero"`
	// Format is the output format. Required.
	Format Format `json:"format" yaml:"format"`
	// MaxEntries caps the directory size. Zero means DefaultMaxEntries.
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
	// WriterBufferSize is buffered writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
}

// BuildResult contains build output statistics.
type BuildResult struct {
	// Entries are the written directory records in on-disk order.
	Entries []EntryInfo `json:"entries" yaml:"entries"`
	// Header is the final header written at offset zero.
	Header Header `json:"header" yaml:"header"`
	// DataSize is total payload bytes written.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// SkippedEntries is the number of source entries rejected by Rules.
	SkippedEntries int `json:"skipped_entries,omitempty" yaml:"skipped_entries,omitempty"`
	// Duration is end-to-end build duration.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// ExtractOptions configures Extract.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(entry EntryInfo, written int64, outputPath string) `json:"-" yaml:"-"`
	// Logger receives debug events; nil disables logging.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Rules select entries by output name; empty means all entries.
	Rules []pathrules.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	// RulesMatcherOptions control rule matching.
	RulesMatcherOptions pathrules.MatcherOptions `json:"rules_matcher_options,omitzero" yaml:"rules_matcher_options,omitzero"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// Entries limits extraction to selected metadata list; nil means all parsed entries.
	Entries []EntryInfo `json:"-" yaml:"-"`
	// MaxWorkers is number of extraction workers. Zero means one (sequential, directory order).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// Flatten drops PAK directory structure and writes base names only.
	Flatten bool `json:"flatten,omitempty" yaml:"flatten,omitempty"`
	// ContinueOnError extracts remaining entries after a failure and returns all errors joined.
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`
}

// ExtractFileMode controls output file open behavior during extraction.
type ExtractFileMode string

// Output file creation policies for extraction.
const (
	// ExtractFileModeAuto first tries create-only, then falls back to truncate for existing files.
	ExtractFileModeAuto ExtractFileMode = "auto"
	// ExtractFileModeTruncate opens existing files with truncate and creates missing files.
	ExtractFileModeTruncate ExtractFileMode = "truncate"
	// ExtractFileModeCreateOnly creates files only when absent and fails on existing files.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
)

// applyDefaults fills zero-valued reader options with defaults.
func (opts *ReaderOptions) applyDefaults() {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}

	opts.Logger = loggerOrDiscard(opts.Logger)
}

// applyDefaults fills zero-valued build options with defaults.
func (opts *BuildOptions) applyDefaults() {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}

	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriteBuffer
	}

	opts.RulesMatcherOptions = defaultMatcherOptions(opts.Rules, opts.RulesMatcherOptions)
	opts.Logger = loggerOrDiscard(opts.Logger)
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}

	if opts.FileMode == "" {
		opts.FileMode = ExtractFileModeAuto
	}

	opts.RulesMatcherOptions = defaultMatcherOptions(opts.Rules, opts.RulesMatcherOptions)
	opts.Logger = loggerOrDiscard(opts.Logger)
}

// loggerOrDiscard returns l or a logger that drops every record.
func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}

	return slog.New(slog.DiscardHandler)
}
