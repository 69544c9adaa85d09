package slidewin

// sharedBufferSource presents a sliding window over a buffer owned by the
// caller. Unlike vectorSource it never copies or reallocates buf; the
// caller is responsible for keeping buf alive and unmodified-in-length for
// the lifetime of the source (the Go equivalent of the original's raw
// pointer + length pair — there is no pointer arithmetic to do here, but
// the ownership discipline is the same).
type sharedBufferSource[T any] struct {
	buf        []T
	windowSize uint32
	start      uint32
}

// NewSharedBufferSource wraps an externally owned, fixed-length buffer.
// The source must not outlive buf, and the caller must not shrink or
// reallocate buf while the source is in use.
func NewSharedBufferSource[T any](buf []T, windowSize uint32) (Window[T], error) {
	return &sharedBufferSource[T]{buf: buf, windowSize: windowSize}, nil
}

func (s *sharedBufferSource[T]) Current() ([]T, error) {
	if s.Exhausted() {
		return nil, ErrSourceExhausted
	}
	return s.buf[s.start : s.start+s.windowSize], nil
}

func (s *sharedBufferSource[T]) Advance() error {
	s.start++
	return nil
}

func (s *sharedBufferSource[T]) Exhausted() bool {
	if uint32(len(s.buf)) < s.windowSize {
		return true
	}
	return s.start > uint32(len(s.buf))-s.windowSize
}

func (s *sharedBufferSource[T]) WindowSize() uint32 { return s.windowSize }

func (s *sharedBufferSource[T]) Close() error { return nil }
