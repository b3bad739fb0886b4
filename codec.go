// SPDX-License-Identifier: MIT
// Copyright (c) 2026 g0mb4
// Source: github.com/g0mb4/qutils

package qutils

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// DecodeHeader decodes the fixed 12-byte header.
// With FormatUnknown the format is detected from the magic; otherwise the magic
// must match the given format exactly.
func DecodeHeader(format Format, b []byte) (Header, error) {
	if format != FormatUnknown && !format.valid() {
		return Header{}, ErrUnknownFormat
	}
	if len(b) < headerSize {
		return Header{}, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(b))
	}

	var magic [4]byte
	copy(magic[:], b[:4])

	detected := detectFormat(magic)
	if detected == FormatUnknown || (format != FormatUnknown && format != detected) {
		return Header{}, fmt.Errorf("%w: %q", ErrBadMagic, magic[:])
	}

	h := Header{Format: detected}
	switch detected {
	case FormatPAK:
		h.DirOffset = binary.LittleEndian.Uint32(b[4:8])
		dirSize := binary.LittleEndian.Uint32(b[8:12])
		if dirSize%pakRecordSize != 0 {
			return Header{}, fmt.Errorf("%w: directory size %d is not a multiple of %d",
				ErrTruncatedDirectory, dirSize, pakRecordSize)
		}

		h.EntryCount = dirSize / pakRecordSize
	case FormatWAD2:
		h.EntryCount = binary.LittleEndian.Uint32(b[4:8])
		h.DirOffset = binary.LittleEndian.Uint32(b[8:12])
	}

	return h, nil
}

// EncodeHeader encodes h into its 12-byte wire form.
func EncodeHeader(h Header) ([]byte, error) {
	b := make([]byte, headerSize)
	if err := putHeader(b, h); err != nil {
		return nil, err
	}

	return b, nil
}

// putHeader writes h into b, which must hold at least headerSize bytes.
func putHeader(b []byte, h Header) error {
	if !h.Format.valid() {
		return ErrUnknownFormat
	}

	magic := h.Format.Magic()
	copy(b[0:4], magic[:])

	switch h.Format {
	case FormatPAK:
		dirSize := h.DirSize()
		if dirSize >= maxArchiveData {
			return fmt.Errorf("%w: directory size %d", ErrSizeOverflow, dirSize)
		}

		binary.LittleEndian.PutUint32(b[4:8], h.DirOffset)
		binary.LittleEndian.PutUint32(b[8:12], uint32(dirSize)) //nolint:gosec // bounded above
	case FormatWAD2:
		binary.LittleEndian.PutUint32(b[4:8], h.EntryCount)
		binary.LittleEndian.PutUint32(b[8:12], h.DirOffset)
	}

	return nil
}

// DecodeEntry decodes one directory record of the given format.
// The returned entry has a zero Index; callers that know the position set it.
func DecodeEntry(format Format, b []byte) (EntryInfo, error) {
	if !format.valid() {
		return EntryInfo{}, ErrUnknownFormat
	}
	if len(b) < format.RecordSize() {
		return EntryInfo{}, fmt.Errorf("%w: record has %d of %d bytes", ErrTruncatedDirectory, len(b), format.RecordSize())
	}

	if format == FormatPAK {
		size := binary.LittleEndian.Uint32(b[60:64])
		return EntryInfo{
			Name:             cString(b[0:pakNameSize]),
			Offset:           binary.LittleEndian.Uint32(b[56:60]),
			Size:             size,
			UncompressedSize: size,
		}, nil
	}

	// b[14:16] is padding.
	return EntryInfo{
		Offset:           binary.LittleEndian.Uint32(b[0:4]),
		Size:             binary.LittleEndian.Uint32(b[4:8]),
		UncompressedSize: binary.LittleEndian.Uint32(b[8:12]),
		Type:             TypeCode(b[12]),
		Compressed:       b[13] != 0,
		Name:             cString(b[16 : 16+wadNameSize]),
	}, nil
}

// EncodeEntry encodes one directory record of the given format.
func EncodeEntry(format Format, e EntryInfo) ([]byte, error) {
	if !format.valid() {
		return nil, ErrUnknownFormat
	}

	b := make([]byte, format.RecordSize())
	if err := putEntry(b, format, e); err != nil {
		return nil, err
	}

	return b, nil
}

// putEntry writes e into b, which must hold one full zeroed record.
func putEntry(b []byte, format Format, e EntryInfo) error {
	if err := validateStoredName(format, e.Name); err != nil {
		return err
	}

	if format == FormatPAK {
		copy(b[0:pakNameSize], e.Name)
		binary.LittleEndian.PutUint32(b[56:60], e.Offset)
		binary.LittleEndian.PutUint32(b[60:64], e.Size)
		return nil
	}

	binary.LittleEndian.PutUint32(b[0:4], e.Offset)
	binary.LittleEndian.PutUint32(b[4:8], e.Size)
	binary.LittleEndian.PutUint32(b[8:12], e.UncompressedSize)
	b[12] = byte(e.Type)
	if e.Compressed {
		b[13] = 1
	}
	copy(b[16:16+wadNameSize], e.Name)

	return nil
}

// validateStoredName checks that name fits the fixed field including its NUL terminator.
func validateStoredName(format Format, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) >= format.nameSize() {
		return fmt.Errorf("%w: %q is %d bytes, limit %d", ErrNameTooLong, name, len(name), format.nameSize()-1)
	}
	if idx := strings.IndexByte(name, 0); idx >= 0 {
		return fmt.Errorf("%w: NUL at byte %d of %q", ErrInvalidNameChar, idx, name)
	}

	return nil
}

// cString returns bytes before the first NUL, or all of b when there is none.
func cString(b []byte) string {
	if idx := bytes.IndexByte(b, 0); idx >= 0 {
		return string(b[:idx])
	}

	return string(b)
}
