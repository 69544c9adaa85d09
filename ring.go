package slidewin

// ringSource presents an endlessly-wrapping window over a fixed vector: it
// never reports exhausted and advance never blocks. A window that would
// straddle the wrap boundary can't be expressed as a single contiguous
// slice into data, so a small patch buffer (the last windowSize-1 elements
// followed by the first windowSize-1) stands in for those positions.
//
// The boundary between "use data" and "use patch" and the patch's internal
// offset are derived from the invariant that window i must equal
// [(i+j) % N for j in 0..W), not from the original's inconsistent drafts:
// for m = start % N, positions m <= N-W read directly from data (the
// window [m, m+W) fits inside data without wrapping); positions m > N-W
// read from patch at offset m - (N-W+1).
type ringSource[T any] struct {
	data       []T
	patch      []T
	windowSize uint32
	start      uint32
}

// NewRingSource wraps values in an endless ring window of the given size.
// Fails with ErrWindowTooLargeForRing if windowSize exceeds len(values).
func NewRingSource[T any](values []T, windowSize uint32) (Window[T], error) {
	n := uint32(len(values))
	if windowSize == 0 || windowSize > n {
		return nil, ErrWindowTooLargeForRing
	}

	patch := make([]T, 0, 2*(windowSize-1))
	patch = append(patch, values[n-(windowSize-1):]...)
	patch = append(patch, values[:windowSize-1]...)

	return &ringSource[T]{data: values, patch: patch, windowSize: windowSize}, nil
}

func (s *ringSource[T]) Current() ([]T, error) {
	n := uint32(len(s.data))
	m := s.start % n

	if m <= n-s.windowSize {
		return s.data[m : m+s.windowSize], nil
	}

	offset := m - (n - s.windowSize + 1)
	return s.patch[offset : offset+s.windowSize], nil
}

func (s *ringSource[T]) Advance() error {
	s.start++
	return nil
}

func (s *ringSource[T]) Exhausted() bool { return false }

func (s *ringSource[T]) WindowSize() uint32 { return s.windowSize }

func (s *ringSource[T]) Close() error { return nil }
