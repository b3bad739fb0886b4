package qutils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
)

// writeTree creates files below root from a relative-path map.
func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()

	for rel, data := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// readTree returns every regular file below root keyed by slash-separated relative path.
func readTree(t *testing.T, root string) map[string][]byte {
	t.Helper()

	out := make(map[string][]byte)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		out[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	return out
}

func assertSameTree(t *testing.T, got, want map[string][]byte) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("got %d files, want %d: %v", len(got), len(want), sortedKeys(got))
	}
	for name, data := range want {
		if !bytes.Equal(got[name], data) {
			t.Fatalf("file %q mismatch: got %d bytes, want %d", name, len(got[name]), len(data))
		}
	}
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format Format
		files  map[string][]byte
	}{
		{
			name:   "pak",
			format: FormatPAK,
			files: map[string][]byte{
				"sub/TEXTURE1.DAT":    bytes.Repeat([]byte{7}, 1024),
				"README.TXT":          []byte(strings.Repeat("x", 42)),
				"maps/e1m1.bsp":       []byte("map data"),
				"sound/ambience/wind": {},
				"progs/player.mdl":    bytes.Repeat([]byte("IDPO"), 300),
			},
		},
		{
			name:   "wad2",
			format: FormatWAD2,
			files: map[string][]byte{
				"PALETTE.PAL":   make([]byte, 768),
				"!AEX1.TEX":     {1, 2, 3},
				"!2Awater1.TEX": bytes.Repeat([]byte{9}, 64),
				"CONCHARS.CON":  {4},
				"sb_ammo.STB":   {5, 6},
				"UNKNOWN.7FH":   {8},
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			src := t.TempDir()
			writeTree(t, src, tc.files)

			archive := filepath.Join(t.TempDir(), "out.bin")
			res, err := BuildFile(context.Background(), archive, NewDirSource(src), BuildOptions{Format: tc.format})
			if err != nil {
				t.Fatalf("BuildFile: %v", err)
			}
			if len(res.Entries) != len(tc.files) {
				t.Fatalf("built %d entries, want %d", len(res.Entries), len(tc.files))
			}

			r, err := Open(archive)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer func() { _ = r.Close() }()

			var mu sync.Mutex
			done := 0
			dst := t.TempDir()
			err = r.Extract(context.Background(), dst, ExtractOptions{
				OnEntryDone: func(EntryInfo, int64, string) {
					mu.Lock()
					done++
					mu.Unlock()
				},
			})
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if done != len(tc.files) {
				t.Fatalf("OnEntryDone called %d times, want %d", done, len(tc.files))
			}

			assertSameTree(t, readTree(t, dst), tc.files)
		})
	}
}

func TestRoundTrip_NamesKeptVerbatim(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("file names with surrounding spaces are not portable to windows")
	}

	files := map[string][]byte{
		" lead.txt":         []byte("lead"),
		"trail.txt ":        []byte("trail"),
		"sub dir/ mid .txt": []byte("mid"),
	}
	src := t.TempDir()
	writeTree(t, src, files)

	archive := filepath.Join(t.TempDir(), "names.pak")
	res, err := BuildFile(context.Background(), archive, NewDirSource(src), BuildOptions{Format: FormatPAK})
	if err != nil {
		t.Fatalf("BuildFile: %v", err)
	}

	stored := make(map[string][]byte, len(res.Entries))
	for _, e := range res.Entries {
		stored[e.Name] = files[e.Name]
	}
	assertSameTree(t, stored, files)

	r, err := Open(archive)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	dst := t.TempDir()
	if err := r.Extract(context.Background(), dst, ExtractOptions{}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	assertSameTree(t, readTree(t, dst), files)
}

func TestBuild_BackslashFileNameRejected(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("backslash is a path separator on windows")
	}

	src := t.TempDir()
	writeTree(t, src, map[string][]byte{`back\slash.txt`: []byte("x")})

	archive := filepath.Join(t.TempDir(), "out.pak")
	_, err := BuildFile(context.Background(), archive, NewDirSource(src), BuildOptions{Format: FormatPAK})
	if !errors.Is(err, ErrInvalidEntryPath) {
		t.Fatalf("expected ErrInvalidEntryPath, got %v", err)
	}
	if _, statErr := os.Stat(archive); !os.IsNotExist(statErr) {
		t.Fatalf("failed build created archive: %v", statErr)
	}
}

func TestExtract_Workers(t *testing.T) {
	t.Parallel()

	files := make(map[string][]byte)
	fixtures := make([]fixtureEntry, 0, 40)
	for i := 0; i < 40; i++ {
		name := fmt.Sprintf("dir%d/file%02d", i%4, i)
		data := bytes.Repeat([]byte{byte(i)}, 100+i)
		files[name] = data
		fixtures = append(fixtures, fixtureEntry{name: name, data: data})
	}

	r := openBytes(t, buildPAKBytes(t, fixtures...))
	dst := t.TempDir()
	if err := r.Extract(context.Background(), dst, ExtractOptions{MaxWorkers: 8}); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	assertSameTree(t, readTree(t, dst), files)
}

func TestExtract_DuplicateNamesLastWins(t *testing.T) {
	t.Parallel()

	data := buildPAKBytes(t,
		fixtureEntry{name: "A", data: []byte("first")},
		fixtureEntry{name: "B", data: []byte("b")},
		fixtureEntry{name: "A", data: []byte("2")},
	)

	for _, workers := range []int{1, 4} {
		r := openBytes(t, data)
		dst := t.TempDir()
		if err := r.Extract(context.Background(), dst, ExtractOptions{MaxWorkers: workers}); err != nil {
			t.Fatalf("workers=%d: Extract: %v", workers, err)
		}

		got, err := os.ReadFile(filepath.Join(dst, "A"))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "2" {
			t.Fatalf("workers=%d: A=%q, want 2", workers, got)
		}
	}
}

func TestExtract_Flatten(t *testing.T) {
	t.Parallel()

	r := openBytes(t, buildPAKBytes(t,
		fixtureEntry{name: "maps/e1m1.bsp", data: []byte("m")},
		fixtureEntry{name: "progs/player.mdl", data: []byte("p")},
	))

	dst := t.TempDir()
	if err := r.Extract(context.Background(), dst, ExtractOptions{Flatten: true}); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	assertSameTree(t, readTree(t, dst), map[string][]byte{
		"e1m1.bsp":   []byte("m"),
		"player.mdl": []byte("p"),
	})
}

func TestExtract_Rules(t *testing.T) {
	t.Parallel()

	r := openBytes(t, buildPAKBytes(t,
		fixtureEntry{name: "maps/e1m1.bsp", data: []byte("m")},
		fixtureEntry{name: "maps/e1m1.lit", data: []byte("l")},
		fixtureEntry{name: "progs/player.mdl", data: []byte("p")},
	))

	dst := t.TempDir()
	err := r.Extract(context.Background(), dst, ExtractOptions{
		Rules: SelectionRules([]string{"maps/**"}, []string{"maps/*.lit"}),
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	assertSameTree(t, readTree(t, dst), map[string][]byte{
		"maps/e1m1.bsp": []byte("m"),
	})
}

func TestExtract_TraversalRejected(t *testing.T) {
	t.Parallel()

	data := buildPAKBytes(t,
		fixtureEntry{name: "good.txt", data: []byte("ok")},
		fixtureEntry{name: "../evil.txt", data: []byte("bad")},
		fixtureEntry{name: "/etc/abs", data: []byte("bad")},
		fixtureEntry{name: "later.txt", data: []byte("ok2")},
	)

	t.Run("abort", func(t *testing.T) {
		t.Parallel()

		r := openBytes(t, data)
		root := t.TempDir()
		dst := filepath.Join(root, "out")

		err := r.Extract(context.Background(), dst, ExtractOptions{})
		if !errors.Is(err, ErrInvalidExtractPath) {
			t.Fatalf("expected ErrInvalidExtractPath, got %v", err)
		}
		if !errors.Is(err, ErrFormat) {
			t.Fatalf("expected ErrFormat kind, got %v", err)
		}
		if _, statErr := os.Stat(filepath.Join(root, "evil.txt")); !os.IsNotExist(statErr) {
			t.Fatalf("traversal entry escaped output dir: %v", statErr)
		}
	})

	t.Run("continue", func(t *testing.T) {
		t.Parallel()

		r := openBytes(t, data)
		dst := t.TempDir()

		err := r.Extract(context.Background(), dst, ExtractOptions{ContinueOnError: true})
		if !errors.Is(err, ErrInvalidExtractPath) {
			t.Fatalf("expected ErrInvalidExtractPath, got %v", err)
		}
		if n := strings.Count(err.Error(), ErrInvalidExtractPath.Error()); n != 2 {
			t.Fatalf("joined error reports %d bad paths, want 2: %v", n, err)
		}

		assertSameTree(t, readTree(t, dst), map[string][]byte{
			"good.txt":  []byte("ok"),
			"later.txt": []byte("ok2"),
		})
	})
}

func TestExtract_CompressedEntry(t *testing.T) {
	t.Parallel()

	data := buildWADBytes(t,
		fixtureEntry{name: "PLAIN", data: []byte{1}, typ: TypeMipTexture},
		fixtureEntry{name: "PACKED", data: []byte{2}, typ: TypeMipTexture, compressed: true},
	)

	r := openBytes(t, data)
	if err := r.Extract(context.Background(), t.TempDir(), ExtractOptions{}); !errors.Is(err, ErrCompressedEntry) {
		t.Fatalf("expected ErrCompressedEntry, got %v", err)
	}

	dst := t.TempDir()
	err := r.Extract(context.Background(), dst, ExtractOptions{ContinueOnError: true})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	assertSameTree(t, readTree(t, dst), map[string][]byte{
		"PLAIN.TEX": {1},
	})
}

func TestExtract_FileModes(t *testing.T) {
	t.Parallel()

	data := buildPAKBytes(t, fixtureEntry{name: "a.txt", data: []byte("new")})

	t.Run("create only fails on existing", func(t *testing.T) {
		t.Parallel()

		dst := t.TempDir()
		writeTree(t, dst, map[string][]byte{"a.txt": []byte("old")})

		r := openBytes(t, data)
		err := r.Extract(context.Background(), dst, ExtractOptions{FileMode: ExtractFileModeCreateOnly})
		if !errors.Is(err, os.ErrExist) {
			t.Fatalf("expected os.ErrExist, got %v", err)
		}
	})

	for _, mode := range []ExtractFileMode{ExtractFileModeAuto, ExtractFileModeTruncate} {
		mode := mode
		t.Run(string(mode)+" overwrites longer file", func(t *testing.T) {
			t.Parallel()

			dst := t.TempDir()
			writeTree(t, dst, map[string][]byte{"a.txt": []byte("much longer old content")})

			r := openBytes(t, data)
			if err := r.Extract(context.Background(), dst, ExtractOptions{FileMode: mode}); err != nil {
				t.Fatalf("Extract: %v", err)
			}

			got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != "new" {
				t.Fatalf("a.txt=%q, want new", got)
			}
		})
	}
}

func TestExtract_ContextCanceled(t *testing.T) {
	t.Parallel()

	r := openBytes(t, buildPAKBytes(t, fixtureEntry{name: "a", data: []byte("1")}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Extract(ctx, t.TempDir(), ExtractOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExtractEntry(t *testing.T) {
	t.Parallel()

	r := openBytes(t, buildPAKBytes(t, fixtureEntry{name: "maps/e1m1.bsp", data: []byte("bsp")}))
	entry, _ := r.Find("maps/e1m1.bsp")

	dst := t.TempDir()
	out, err := r.ExtractEntry(entry, dst)
	if err != nil {
		t.Fatalf("ExtractEntry: %v", err)
	}
	if out != filepath.Join(dst, "e1m1.bsp") {
		t.Fatalf("out=%q", out)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "bsp" {
		t.Fatalf("content=%q", got)
	}
}

func TestExtractEntry_CreatesMissingDir(t *testing.T) {
	t.Parallel()

	r := openBytes(t, buildPAKBytes(t, fixtureEntry{name: "progs/player.mdl", data: []byte("IDPO")}))
	entry, _ := r.Find("progs/player.mdl")

	dst := filepath.Join(t.TempDir(), "new", "dir")
	out, err := r.ExtractEntry(entry, dst)
	if err != nil {
		t.Fatalf("ExtractEntry: %v", err)
	}
	assertSameTree(t, readTree(t, dst), map[string][]byte{"player.mdl": []byte("IDPO")})
	if out != filepath.Join(dst, "player.mdl") {
		t.Fatalf("out=%q", out)
	}
}

func TestOutputName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format  Format
		entry   EntryInfo
		flatten bool
		want    string
		wantErr error
	}{
		{format: FormatPAK, entry: EntryInfo{Name: "maps/e1m1.bsp"}, want: "maps/e1m1.bsp"},
		{format: FormatPAK, entry: EntryInfo{Name: "maps/e1m1.bsp"}, flatten: true, want: "e1m1.bsp"},
		{format: FormatPAK, entry: EntryInfo{Name: `maps\e1m2.bsp`}, want: "maps/e1m2.bsp"},
		{format: FormatPAK, entry: EntryInfo{Name: "./maps//e1m3.bsp"}, want: "maps/e1m3.bsp"},
		{format: FormatPAK, entry: EntryInfo{Name: "a/../../b"}, wantErr: ErrInvalidExtractPath},
		{format: FormatPAK, entry: EntryInfo{Name: "C:/windows"}, wantErr: ErrInvalidExtractPath},
		{format: FormatWAD2, entry: EntryInfo{Name: "\xaeX1", Type: TypeMipTexture}, want: "!AEX1.TEX"},
		{format: FormatWAD2, entry: EntryInfo{Name: "a/b", Type: TypePalette}, want: "a!2Fb.PAL"},
	}

	for _, tc := range tests {
		got, err := OutputName(tc.format, tc.entry, tc.flatten)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("OutputName(%q): expected %v, got %v", tc.entry.Name, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("OutputName(%q): %v", tc.entry.Name, err)
		}
		if got != tc.want {
			t.Fatalf("OutputName(%q)=%q, want %q", tc.entry.Name, got, tc.want)
		}
	}
}

func TestParseExtractFileMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]ExtractFileMode{
		"":            ExtractFileModeAuto,
		"AUTO":        ExtractFileModeAuto,
		"truncate":    ExtractFileModeTruncate,
		"create_only": ExtractFileModeCreateOnly,
	} {
		got, err := ParseExtractFileMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseExtractFileMode(%q)=(%q, %v), want %q", in, got, err, want)
		}
	}

	if _, err := ParseExtractFileMode("overwrite"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
