// SPDX-License-Identifier: MIT
// Copyright (c) 2026 g0mb4
// Source: github.com/g0mb4/qutils

package qutils

import (
	"fmt"
	"strings"
)

// escapeMarker prefixes a two-digit hex escape in external WAD2 names.
const escapeMarker = '!'

const upperHex = "0123456789ABCDEF"

// EncodeWADName maps a stored WAD2 name, type code, and compression flag to a
// filesystem-safe file name.
//
// Bytes in [A-Za-z0-9_] are kept, every other byte becomes "!XX" with uppercase
// hex, and the name ends at the first NUL. The extension is derived from the type
// code (PAL, STB, TEX, CON, or "XXH" for other codes) with a trailing "C" for
// compressed entries.
func EncodeWADName(name string, typ TypeCode, compressed bool) string {
	var sb strings.Builder
	sb.Grow(len(name)*3 + 5)

	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == 0 {
			break
		}

		if isSafeNameByte(c) {
			sb.WriteByte(c)
			continue
		}

		sb.WriteByte(escapeMarker)
		sb.WriteByte(upperHex[c>>4])
		sb.WriteByte(upperHex[c&0x0f])
	}

	sb.WriteByte('.')
	sb.WriteString(typ.Extension())
	if compressed {
		sb.WriteByte('C')
	}

	return sb.String()
}

// DecodeWADName reverses EncodeWADName for build inputs.
// It returns the stored name and type code. Compressed inputs ("...C" extension)
// are rejected with ErrCompressedInput since no compressor exists.
func DecodeWADName(external string) (string, TypeCode, error) {
	dot := strings.IndexByte(external, '.')
	if dot < 0 {
		return "", 0, fmt.Errorf("%w: %q has no extension", ErrUnknownExtension, external)
	}

	base, ext := external[:dot], external[dot+1:]
	name := make([]byte, 0, wadNameSize)
	for i := 0; i < len(base); i++ {
		c := base[i]
		switch {
		case isSafeNameByte(c):
			name = append(name, c)
		case c == escapeMarker:
			if i+2 >= len(base) {
				return "", 0, fmt.Errorf("%w: %q ends inside an escape", ErrInvalidEscape, external)
			}

			hi, okHi := unhex(base[i+1])
			lo, okLo := unhex(base[i+2])
			if !okHi || !okLo {
				return "", 0, fmt.Errorf("%w: %q at byte %d", ErrInvalidEscape, external, i)
			}

			decoded := hi<<4 | lo
			if decoded == 0 {
				return "", 0, fmt.Errorf("%w: %q escapes a NUL byte", ErrInvalidEscape, external)
			}

			name = append(name, decoded)
			i += 2
		default:
			return "", 0, fmt.Errorf("%w: %q at byte %d", ErrInvalidNameChar, external, i)
		}

		if len(name) >= wadNameSize {
			return "", 0, fmt.Errorf("%w: %q decodes to more than %d bytes", ErrNameTooLong, external, wadNameSize-1)
		}
	}

	if len(name) == 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrEmptyName, external)
	}

	typ, err := parseWADExtension(ext)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", err, external)
	}

	return string(name), typ, nil
}

// parseWADExtension maps an external extension back to its type code.
// Matching is case-insensitive.
func parseWADExtension(ext string) (TypeCode, error) {
	ext = strings.ToUpper(ext)
	if len(ext) == 4 && ext[3] == 'C' {
		if _, err := parseWADExtension(ext[:3]); err != nil {
			return 0, err
		}

		return 0, ErrCompressedInput
	}

	if len(ext) != 3 {
		return 0, ErrUnknownExtension
	}

	switch ext {
	case "PAL":
		return TypePalette, nil
	case "STB":
		return TypeStatusBar, nil
	case "TEX":
		return TypeMipTexture, nil
	case "CON":
		return TypeConsolePic, nil
	}

	if ext[2] != 'H' {
		return 0, ErrUnknownExtension
	}

	hi, okHi := unhex(ext[0])
	lo, okLo := unhex(ext[1])
	if !okHi || !okLo {
		return 0, ErrUnknownExtension
	}

	return TypeCode(hi<<4 | lo), nil
}

// isSafeNameByte reports whether c is kept verbatim in external names.
func isSafeNameByte(c byte) bool {
	return isASCIIAlpha(c) || (c >= '0' && c <= '9') || c == '_'
}

// unhex decodes one hex digit of either case.
func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
