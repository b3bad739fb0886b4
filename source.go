// SPDX-License-Identifier: MIT
// Copyright (c) 2026 g0mb4
// Source: github.com/g0mb4/qutils

package qutils

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
)

// SourceEntry describes one input to be packed into an archive entry.
type SourceEntry struct {
	// Open returns the raw content stream for this entry.
	Open func() (io.ReadCloser, error)
	// Path is the path relative to the source root. PAK stores it as the entry
	// name; WAD2 decodes its base name with DecodeWADName.
	Path string
	// FilePath is the file backing this entry on disk, empty for in-memory entries.
	FilePath string
	// Size is the exact content length in bytes.
	Size int64
}

// Source yields build inputs once, in the order they should appear in the directory.
type Source interface {
	// Next returns the next entry, or io.EOF when the sequence is exhausted.
	Next() (SourceEntry, error)
}

// sliceSource serves a fixed list of entries.
type sliceSource struct {
	entries []SourceEntry
	pos     int
}

// SliceSource returns a Source over entries in the given order.
func SliceSource(entries ...SourceEntry) Source {
	return &sliceSource{entries: entries}
}

// Next implements Source.
func (s *sliceSource) Next() (SourceEntry, error) {
	if s.pos >= len(s.entries) {
		return SourceEntry{}, io.EOF
	}

	entry := s.entries[s.pos]
	s.pos++
	return entry, nil
}

// BytesEntry returns a SourceEntry backed by an in-memory payload.
func BytesEntry(path string, data []byte) SourceEntry {
	return SourceEntry{
		Path: path,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// skipFilesSource drops entries backed by any of the listed absolute paths.
type skipFilesSource struct {
	src  Source
	skip map[string]struct{}
}

// skipFiles wraps src so that entries backed by paths are never yielded.
func skipFiles(src Source, paths ...string) (Source, error) {
	skip := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve %s: %w", ErrIO, p, err)
		}
		skip[abs] = struct{}{}
	}

	return &skipFilesSource{src: src, skip: skip}, nil
}

// Next implements Source.
func (s *skipFilesSource) Next() (SourceEntry, error) {
	for {
		entry, err := s.src.Next()
		if err != nil || entry.FilePath == "" {
			return entry, err
		}

		abs, err := filepath.Abs(entry.FilePath)
		if err != nil {
			return SourceEntry{}, fmt.Errorf("%w: resolve %s: %w", ErrIO, entry.FilePath, err)
		}
		if _, ok := s.skip[abs]; !ok {
			return entry, nil
		}
	}
}

// DirSource yields the regular files below a root directory in sorted walk order.
// The walk happens on the first call to Next; file contents are opened lazily by Build.
type DirSource struct {
	err    error
	root   string
	files  []dirFile
	pos    int
	walked bool
}

// dirFile is one regular file found by the walk.
type dirFile struct {
	osPath  string
	relPath string
	size    int64
}

// NewDirSource creates a Source over the files below root.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// Next implements Source.
func (s *DirSource) Next() (SourceEntry, error) {
	if !s.walked {
		s.walked = true
		s.err = s.walk()
	}
	if s.err != nil {
		return SourceEntry{}, s.err
	}
	if s.pos >= len(s.files) {
		return SourceEntry{}, io.EOF
	}

	file := s.files[s.pos]
	s.pos++

	return SourceEntry{
		Path:     file.relPath,
		FilePath: file.osPath,
		Size:     file.size,
		Open: func() (io.ReadCloser, error) {
			return os.Open(file.osPath)
		},
	}, nil
}

// walk collects regular files below root. Directories are descended into;
// anything else (symlinks, devices, sockets) stops the walk.
func (s *DirSource) walk() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("%w: stat source root: %w", ErrIO, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: source root %s is not a directory", ErrInvalidEntryPath, s.root)
	}

	return godirwalk.Walk(s.root, &godirwalk.Options{
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			if !de.IsRegular() {
				return fmt.Errorf("%w: %s", ErrUnsupportedSource, osPathname)
			}

			fi, err := os.Stat(osPathname)
			if err != nil {
				return fmt.Errorf("%w: stat %s: %w", ErrIO, osPathname, err)
			}

			rel, err := filepath.Rel(s.root, osPathname)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidEntryPath, osPathname, err)
			}

			s.files = append(s.files, dirFile{
				osPath:  osPathname,
				relPath: filepath.ToSlash(rel),
				size:    fi.Size(),
			})

			return nil
		},
		Unsorted: false,
	})
}
