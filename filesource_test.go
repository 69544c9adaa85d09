package slidewin

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"reflect"
	"testing"

	"github.com/spf13/afero"
)

func writeLines(t *testing.T, fs afero.Fs, path string, n int) {
	t.Helper()
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		fmt.Fprintf(&buf, "%d\n", i)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestFileSourceScenarioNoLimit(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeLines(t, fs, "/data.txt", 40)

	src, err := NewFileSource[uint32](fs, "/data.txt", 10)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	for i := uint32(0); i <= 30; i++ {
		if src.Exhausted() {
			t.Fatalf("window %d: unexpectedly exhausted", i)
		}
		win, err := src.Current()
		if err != nil {
			t.Fatalf("window %d: %v", i, err)
		}
		want := []uint32{i, i + 1, i + 2, i + 3, i + 4, i + 5, i + 6, i + 7, i + 8, i + 9}
		if !reflect.DeepEqual(win, want) {
			t.Fatalf("window %d: got %v, want %v", i, win, want)
		}
		if err := src.Advance(); err != nil {
			t.Fatalf("window %d: advance: %v", i, err)
		}
	}
	if !src.Exhausted() {
		t.Fatal("expected exhausted after 31 windows")
	}
}

func TestFileSourceScenarioWithLimit(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeLines(t, fs, "/data.txt", 40)

	src, err := NewFileSource[uint32](fs, "/data.txt", 5, WithLimit(30))
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	for i := uint32(0); i <= 25; i++ {
		win, err := src.Current()
		if err != nil {
			t.Fatalf("window %d: %v", i, err)
		}
		want := []uint32{i, i + 1, i + 2, i + 3, i + 4}
		if !reflect.DeepEqual(win, want) {
			t.Fatalf("window %d: got %v, want %v", i, win, want)
		}
		src.Advance()
	}
	if !src.Exhausted() {
		t.Fatal("expected exhausted once the 30-element limit is reached")
	}
}

func TestFileSourceEagerMatchesDeferred(t *testing.T) {
	for _, policy := range []LaunchPolicy{Deferred, Eager} {
		fs := afero.NewMemMapFs()
		writeLines(t, fs, "/data.txt", 40)

		src, err := NewFileSource[uint32](fs, "/data.txt", 10, WithLaunchPolicy(policy))
		if err != nil {
			t.Fatalf("[%s] NewFileSource: %v", policy, err)
		}

		var windows [][]uint32
		for !src.Exhausted() {
			win, err := src.Current()
			if err != nil {
				t.Fatalf("[%s] Current: %v", policy, err)
			}
			windows = append(windows, append([]uint32(nil), win...))
			if err := src.Advance(); err != nil {
				t.Fatalf("[%s] Advance: %v", policy, err)
			}
		}
		src.Close()

		if len(windows) != 31 {
			t.Fatalf("[%s] got %d windows, want 31", policy, len(windows))
		}
		if !reflect.DeepEqual(windows[0], []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}) {
			t.Fatalf("[%s] first window: got %v", policy, windows[0])
		}
	}
}

func TestFileSourceMalformedLineEndsStreamEarly(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/data.txt", []byte("0\n1\n2\nnot-a-number\n4\n"), 0o644)

	src, err := NewFileSource[uint32](fs, "/data.txt", 2)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	win, err := src.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if !reflect.DeepEqual(win, []uint32{0, 1}) {
		t.Fatalf("got %v", win)
	}
	src.Advance()
	win, err = src.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if !reflect.DeepEqual(win, []uint32{1, 2}) {
		t.Fatalf("got %v", win)
	}
	src.Advance()
	if !src.Exhausted() {
		t.Fatal("expected exhaustion once the malformed line is hit (treated as early EOF)")
	}
}

func TestFileSourceGzipDecompression(t *testing.T) {
	fs := afero.NewMemMapFs()

	var raw bytes.Buffer
	gz := gzip.NewWriter(&raw)
	for i := 0; i < 20; i++ {
		fmt.Fprintf(gz, "%d\n", i)
	}
	gz.Close()

	if err := afero.WriteFile(fs, "/data.txt.gz", raw.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	src, err := NewFileSource[uint32](fs, "/data.txt.gz", 5)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	win, err := src.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if !reflect.DeepEqual(win, []uint32{0, 1, 2, 3, 4}) {
		t.Fatalf("got %v", win)
	}
}

func TestFileSourceConstructionFailsOnMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := NewFileSource[uint32](fs, "/does-not-exist.txt", 5)
	if err == nil {
		t.Fatal("expected construction to fail for a missing file")
	}
	var cerr *ConstructionFailedError
	if ce, ok := err.(*ConstructionFailedError); ok {
		cerr = ce
	}
	if cerr == nil {
		t.Fatalf("got %v (%T), want *ConstructionFailedError", err, err)
	}
}

func TestFileSourceFloat64Values(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/data.txt", []byte("1.5\n2.5\n3.5\n4.5\n"), 0o644)

	src, err := NewFileSource[float64](fs, "/data.txt", 2)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	win, err := src.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if !reflect.DeepEqual(win, []float64{1.5, 2.5}) {
		t.Fatalf("got %v", win)
	}
}
