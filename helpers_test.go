package qutils

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// fixtureEntry is one payload for hand-built archives.
type fixtureEntry struct {
	name       string
	data       []byte
	typ        TypeCode
	compressed bool
}

// buildPAKBytes assembles a PAK image byte by byte: header, payloads, directory.
func buildPAKBytes(t testing.TB, entries ...fixtureEntry) []byte {
	t.Helper()

	var payload bytes.Buffer
	dir := make([]byte, 0, len(entries)*pakRecordSize)
	offset := uint32(headerSize)
	for _, e := range entries {
		rec := make([]byte, pakRecordSize)
		copy(rec[:pakNameSize], e.name)
		binary.LittleEndian.PutUint32(rec[56:60], offset)
		binary.LittleEndian.PutUint32(rec[60:64], uint32(len(e.data)))
		dir = append(dir, rec...)

		payload.Write(e.data)
		offset += uint32(len(e.data))
	}

	out := make([]byte, headerSize, int(offset)+len(dir))
	copy(out[0:4], "PACK")
	binary.LittleEndian.PutUint32(out[4:8], offset)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(dir)))
	out = append(out, payload.Bytes()...)

	return append(out, dir...)
}

// buildWADBytes assembles a WAD2 image byte by byte: header, payloads, directory.
func buildWADBytes(t testing.TB, entries ...fixtureEntry) []byte {
	t.Helper()

	var payload bytes.Buffer
	dir := make([]byte, 0, len(entries)*wadRecordSize)
	offset := uint32(headerSize)
	for _, e := range entries {
		rec := make([]byte, wadRecordSize)
		binary.LittleEndian.PutUint32(rec[0:4], offset)
		binary.LittleEndian.PutUint32(rec[4:8], uint32(len(e.data)))
		binary.LittleEndian.PutUint32(rec[8:12], uint32(len(e.data)))
		rec[12] = byte(e.typ)
		if e.compressed {
			rec[13] = 1
		}
		copy(rec[16:32], e.name)
		dir = append(dir, rec...)

		payload.Write(e.data)
		offset += uint32(len(e.data))
	}

	out := make([]byte, headerSize, int(offset)+len(dir))
	copy(out[0:4], "WAD2")
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(entries)))
	binary.LittleEndian.PutUint32(out[8:12], offset)
	out = append(out, payload.Bytes()...)

	return append(out, dir...)
}

// writeTempFile writes data to a file in a fresh temp dir and returns its path.
func writeTempFile(t testing.TB, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

// openBytes parses an in-memory archive image.
func openBytes(t testing.TB, data []byte) *Reader {
	t.Helper()

	r, err := NewReaderFromReaderAt(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReaderFromReaderAt: %v", err)
	}

	return r
}
