// SPDX-License-Identifier: MIT
// Copyright (c) 2026 g0mb4
// Source: github.com/g0mb4/qutils

/*
Package qutils reads, extracts, and builds Quake PAK and WAD2 archives.

Both formats share one shape: a 12-byte header, raw payloads, and a directory
of fixed-size records. PAK ("PACK") stores 64-byte records with 56-byte path
names. WAD2 stores 32-byte records with 16-byte names plus a type code and a
compression flag. All integers are unsigned 32-bit little-endian, so no archive
exceeds 4 GiB.

Directories larger than DefaultMaxEntries are rejected before anything
proportional to the entry count is allocated.

# Reading

Open detects the format from the header magic:

	r, err := qutils.Open("pak0.pak")
	if err != nil {
	    return err
	}
	defer r.Close()
	for _, e := range r.Entries() {
	    fmt.Println(e.Name, e.Size)
	}

Lookup is an exact, case-sensitive, first-match scan in directory order.
For WAD2 archives it also accepts the escaped external name:

	e, err := r.Lookup("!AEX1.TEX")
	if err != nil {
	    return err
	}
	data, err := r.ReadPayload(e)

For metadata-only scans:

	h, err := qutils.ReadHeader("gfx.wad")
	entries, err := qutils.ListEntries("gfx.wad")

# WAD2 names

Stored WAD2 names may hold any byte. EncodeWADName maps them to portable file
names: [A-Za-z0-9_] stays, every other byte becomes "!XX", and the extension is
derived from the type code (PAL, STB, TEX, CON, or two hex digits plus "H").
DecodeWADName is the strict inverse used when building.

# Extracting

	err := r.Extract(ctx, "out", qutils.ExtractOptions{
	    Rules:      qutils.SelectionRules([]string{"maps/*.bsp"}, nil),
	    MaxWorkers: 4,
	})

PAK names that are absolute or climb out with ".." fail with
ErrInvalidExtractPath. Compressed WAD2 entries fail with ErrCompressedEntry.

# Building

Build writes payloads first, then the directory, then rewrites the header:

	src := qutils.NewDirSource("id1")
	res, err := qutils.BuildFile(ctx, "pak0.pak", src, qutils.BuildOptions{
	    Format: qutils.FormatPAK,
	})

BuildFile writes to a temporary sibling file and renames it into place, so a
failed build never leaves a half-written archive at the target path.
*/
package qutils
