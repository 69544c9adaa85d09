package slidewin

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultChunkSize   = 4 << 20 // 4 MiB
	defaultParallelism = 4
)

// RemoteOption configures NewRemoteFileSource.
type RemoteOption func(*remoteConfig)

type remoteConfig struct {
	engineConfig
	parallelism uint32
	chunkSize   uint64
}

func defaultRemoteConfig() remoteConfig {
	return remoteConfig{
		engineConfig: defaultEngineConfig(),
		parallelism:  defaultParallelism,
		chunkSize:    defaultChunkSize,
	}
}

// WithRemoteLaunchPolicy overrides the default (Deferred) launch policy.
func WithRemoteLaunchPolicy(p LaunchPolicy) RemoteOption { return func(c *remoteConfig) { c.policy = p } }

// WithRemoteLimit caps the number of elements ever read from the remote object.
func WithRemoteLimit(limit uint32) RemoteOption { return func(c *remoteConfig) { c.limit = limit } }

// WithRemoteLogger attaches a zerolog.Logger to the engine.
func WithRemoteLogger(log zerolog.Logger) RemoteOption { return func(c *remoteConfig) { c.logger = log } }

// WithParallelism overrides the number of concurrent range-request downloaders (default 4).
func WithParallelism(n uint32) RemoteOption { return func(c *remoteConfig) { c.parallelism = n } }

// WithChunkSize overrides the byte size of each downloaded range (default 4 MiB).
func WithChunkSize(n uint64) RemoteOption { return func(c *remoteConfig) { c.chunkSize = n } }

// chunk is one downloaded byte range, handed from a download goroutine to
// the reader in strictly increasing offset order.
type chunk struct {
	data []byte
	err  error
}

// rangeDownloader pulls a remote object in parallel fixed-size byte ranges
// over HTTP range requests. The source must be a URL that answers GET with
// a Range header with 206 Partial Content and supports overlapping range
// requests in parallel (an S3 presigned URL is the canonical example).
type rangeDownloader struct {
	url         string
	client      *http.Client
	chunkSize   uint64
	parallelism uint32
	fileSize    uint64

	slots   []chan chunk
	curSlot int

	// ctx is owned by the caller (the fetchEngine sharing this supply), not
	// by the downloader: canceling it is how Close aborts in-flight range
	// requests rather than waiting for them to finish on their own.
	ctx context.Context

	totalRead uint64
}

func newRangeDownloader(ctx context.Context, url string, chunkSize uint64, parallelism uint32) (*rangeDownloader, error) {
	client := &http.Client{}
	size, err := remoteContentLength(client, url)
	if err != nil {
		return nil, err
	}

	d := &rangeDownloader{
		url:         url,
		client:      client,
		chunkSize:   chunkSize,
		parallelism: parallelism,
		fileSize:    size,
		slots:       make([]chan chunk, parallelism),
		ctx:         ctx,
	}
	for i := range d.slots {
		d.slots[i] = make(chan chunk)
	}
	for i := uint32(0); i < parallelism; i++ {
		go d.downloadSlot(i)
	}
	return d, nil
}

func (d *rangeDownloader) slotEnd(start uint64) uint64 {
	end := start + d.chunkSize
	if end > d.fileSize {
		end = d.fileSize
	}
	return end
}

// downloadSlot owns one round-robin position in the slot ring, downloading
// successive non-overlapping ranges spaced chunkSize*parallelism apart and
// handing each one to the reader through its dedicated channel.
func (d *rangeDownloader) downloadSlot(slot uint32) {
	start := uint64(slot) * d.chunkSize
	end := d.slotEnd(start)

	for {
		data, err := d.fetchRange(start, end)
		select {
		case d.slots[slot] <- chunk{data: data, err: err}:
		case <-d.ctx.Done():
			return
		}
		if err != nil {
			return
		}
		start += d.chunkSize * uint64(d.parallelism)
		if start >= d.fileSize {
			return
		}
		end = d.slotEnd(start)
	}
}

func (d *rangeDownloader) fetchRange(start, end uint64) ([]byte, error) {
	req, err := http.NewRequestWithContext(d.ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build range request")
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "range request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("slidewin: unexpected HTTP status %d for range request", resp.StatusCode)
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read range body")
	}
	return buf, nil
}

// next returns the next chunk of the object in offset order, or io.EOF once
// the whole object has been delivered. It also races the shared context, so
// a canceled Close unblocks a caller waiting on a slot that downloadSlot
// abandoned without ever sending.
func (d *rangeDownloader) next() ([]byte, error) {
	select {
	case c, ok := <-d.slots[d.curSlot]:
		if !ok {
			return nil, io.EOF
		}
		if c.err != nil {
			return nil, c.err
		}
		d.totalRead += uint64(len(c.data))
		d.curSlot = (d.curSlot + 1) % int(d.parallelism)
		if d.totalRead >= d.fileSize {
			return c.data, io.EOF
		}
		return c.data, nil
	case <-d.ctx.Done():
		return nil, d.ctx.Err()
	}
}

func remoteContentLength(client *http.Client, url string) (uint64, error) {
	resp, err := client.Get(url)
	if err != nil {
		return 0, errors.Wrap(err, "GET for content length")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("slidewin: unexpected HTTP status %d", resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("slidewin: remote did not report Content-Length")
	}
	return uint64(resp.ContentLength), nil
}

// remoteByteReader adapts rangeDownloader's chunk-at-a-time delivery into a
// plain io.Reader that compress/gzip or zstd.NewReader can wrap directly.
type remoteByteReader struct {
	dl     *rangeDownloader
	buffer []byte
	eof    bool
}

func (r *remoteByteReader) Read(p []byte) (int, error) {
	if len(r.buffer) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		data, err := r.dl.next()
		if err != nil && err != io.EOF {
			return 0, err
		}
		if err == io.EOF {
			r.eof = true
		}
		r.buffer = data
	}
	n := copy(p, r.buffer)
	r.buffer = r.buffer[n:]
	return n, nil
}

// newRemoteReader opens the chunked range reader and wraps it in a
// decompressor chosen by the URL's file extension. ctx is the engine's
// shared context: the downloader's goroutines stop on their own once it's
// canceled, so the returned close function only needs to release the
// decompressor, not the downloader itself.
func newRemoteReader(ctx context.Context, url string, chunkSize uint64, parallelism uint32) (io.Reader, func() error, error) {
	dl, err := newRangeDownloader(ctx, url, chunkSize, parallelism)
	if err != nil {
		return nil, nil, err
	}
	base := io.Reader(&remoteByteReader{dl: dl})

	switch {
	case strings.HasSuffix(url, ".gz"):
		gz, err := gzip.NewReader(base)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open gzip reader")
		}
		return gz, func() error { return nil }, nil
	case strings.HasSuffix(url, ".zst"):
		zr, err := zstd.NewReader(base)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open zstd reader")
		}
		return zr, func() error { zr.Close(); return nil }, nil
	default:
		return base, func() error { return nil }, nil
	}
}

// remoteLineSupply reads one value of T per line from a remote, range-request
// served object, the same parsing policy as fileLineSupply.
type remoteLineSupply[T Numeric] struct {
	scanner  *bufio.Scanner
	closeFn  func() error
	consumed uint32
	limit    uint32
	done     bool
	log      zerolog.Logger
}

func newRemoteLineSupply[T Numeric](ctx context.Context, url string, cfg remoteConfig) (*remoteLineSupply[T], error) {
	r, closeFn, err := newRemoteReader(ctx, url, cfg.chunkSize, cfg.parallelism)
	if err != nil {
		return nil, &ConstructionFailedError{Cause: err}
	}
	return &remoteLineSupply[T]{
		scanner: bufio.NewScanner(r),
		closeFn: closeFn,
		limit:   cfg.limit,
		log:     cfg.logger,
	}, nil
}

// readUpTo's ctx parameter is unused directly: the downloader beneath the
// scanner already shares the engine's context, so scanner.Scan blocking on
// rangeDownloader.next unblocks via that same cancellation.
func (s *remoteLineSupply[T]) readUpTo(_ context.Context, n uint32) ([]T, error) {
	out := make([]T, 0, n)
	for !s.done && uint32(len(out)) < n {
		if s.consumed == s.limit {
			break
		}
		if !s.scanner.Scan() {
			s.done = true
			break
		}
		v, err := parseLine[T](s.scanner.Text())
		if err != nil {
			s.log.Debug().Err(err).Msg("line failed to parse, treating as early end of stream")
			s.done = true
			break
		}
		out = append(out, v)
		s.consumed++
	}
	if err := s.scanner.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func (s *remoteLineSupply[T]) close() error {
	return s.closeFn()
}

// remoteSource is the Window implementation backed by a remote range-request
// served object, wiring a remoteLineSupply into the shared fetchEngine.
type remoteSource[T Numeric] struct {
	engine *fetchEngine[T]
	supply *remoteLineSupply[T]
}

// NewRemoteFileSource streams line-delimited numeric data from url, which
// must serve HTTP range requests (an S3 presigned URL is the canonical
// case), downloading it in parallel fixed-size chunks rather than
// materializing the whole object. URLs ending in .gz or .zst are
// transparently decompressed. launchPolicy defaults to Deferred and limit
// defaults to unbounded; override either, plus the chunking parameters,
// with RemoteOption.
//
// The returned source's Close cancels a single context shared with the
// chunk downloader, so an eager in-flight fetch aborts its outstanding
// range requests instead of running to completion in the background.
func NewRemoteFileSource[T Numeric](url string, windowSize uint32, opts ...RemoteOption) (Window[T], error) {
	cfg := defaultRemoteConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	supply, err := newRemoteLineSupply[T](ctx, url, cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	engine := newFetchEngine[T](ctx, cancel, windowSize, cfg.engineConfig, supply.readUpTo, supply.readUpTo)
	return &remoteSource[T]{engine: engine, supply: supply}, nil
}

func (s *remoteSource[T]) Current() ([]T, error) { return s.engine.current() }
func (s *remoteSource[T]) Advance() error        { return s.engine.advance() }
func (s *remoteSource[T]) Exhausted() bool       { return s.engine.exhausted() }
func (s *remoteSource[T]) WindowSize() uint32    { return s.engine.windowSize }

func (s *remoteSource[T]) Close() error {
	s.engine.close()
	if err := s.supply.close(); err != nil {
		s.engine.log.Warn().Err(err).Msg("error closing remote supply during teardown")
	}
	return nil
}
