package slidewin

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"
)

// rangeTestServer serves body, honoring HTTP range requests the way an S3
// presigned URL would: a plain GET reports Content-Length, a ranged GET
// answers 206 with the requested slice.
func rangeTestServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}

		var start, end int
		if _, err := fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end); err != nil {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		if end >= len(body) {
			end = len(body) - 1
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(body)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[start : end+1])
	}))
}

func linesBody(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		fmt.Fprintf(&buf, "%d\n", i)
	}
	return buf.Bytes()
}

func TestRemoteFileSourceSlidesThroughSequence(t *testing.T) {
	srv := rangeTestServer(t, linesBody(40))
	defer srv.Close()

	src, err := NewRemoteFileSource[uint32](srv.URL, 10, WithChunkSize(4), WithParallelism(3))
	if err != nil {
		t.Fatalf("NewRemoteFileSource: %v", err)
	}
	defer src.Close()

	for i := uint32(0); i <= 30; i++ {
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

func TestRemoteFileSourceGzipDecompression(t *testing.T) {
	var raw bytes.Buffer
	gz := gzip.NewWriter(&raw)
	gz.Write(linesBody(20))
	gz.Close()

	srv := rangeTestServer(t, raw.Bytes())
	defer srv.Close()

	src, err := NewRemoteFileSource[uint32](srv.URL+"/data.txt.gz", 5, WithChunkSize(8))
	if err != nil {
		t.Fatalf("NewRemoteFileSource: %v", err)
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

func TestRemoteFileSourceConstructionFailsOnMissingObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewRemoteFileSource[uint32](srv.URL, 5)
	if err == nil {
		t.Fatal("expected construction to fail for a 404 response")
	}
	if _, ok := err.(*ConstructionFailedError); !ok {
		t.Fatalf("got %v (%T), want *ConstructionFailedError", err, err)
	}
}
