package slidewin

import "reflect"
import "testing"

func TestSharedBufferSourceMatchesVectorSource(t *testing.T) {
	buf := seqUint32(30)
	src, err := NewSharedBufferSource(buf, 5)
	if err != nil {
		t.Fatalf("NewSharedBufferSource: %v", err)
	}

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
		t.Fatal("expected exhausted")
	}
}

func TestSharedBufferSourceDoesNotOwnBacking(t *testing.T) {
	buf := []uint32{10, 20, 30}
	src, _ := NewSharedBufferSource(buf, 2)
	win, _ := src.Current()
	buf[0] = 99
	if win[0] != 99 {
		t.Fatal("expected shared buffer source to read through to the caller's backing array")
	}
}
