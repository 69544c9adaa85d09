package slidewin

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// FileOption configures NewFileSource. Any field no option sets keeps its
// default from defaultEngineConfig: Deferred, a limit of the maximum uint32
// (unbounded), and a no-op logger.
type FileOption func(*engineConfig)

// WithLaunchPolicy overrides the default (Deferred) launch policy.
func WithLaunchPolicy(p LaunchPolicy) FileOption {
	return func(c *engineConfig) { c.policy = p }
}

// WithLimit caps the number of elements ever read from the supply.
func WithLimit(limit uint32) FileOption {
	return func(c *engineConfig) { c.limit = limit }
}

// WithLogger attaches a zerolog.Logger the engine reports fold/schedule/
// error events to. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) FileOption {
	return func(c *engineConfig) { c.logger = log }
}

// fileLineSupply reads one value of T per line from an afero.File. A line
// that fails to parse ends the supply at that point — treated as an early
// EOF, not an error, per the parsing policy in spec §4.3.
type fileLineSupply[T Numeric] struct {
	file     afero.File
	closer   io.Closer // the compressed reader, if any, wrapping file
	scanner  *bufio.Scanner
	consumed uint32
	limit    uint32
	done     bool // set once a line fails to parse; the supply never resumes past it
	log      zerolog.Logger
}

func newFileLineSupply[T Numeric](fs afero.Fs, filename string, limit uint32, log zerolog.Logger) (*fileLineSupply[T], error) {
	f, err := fs.Open(filename)
	if err != nil {
		return nil, &ConstructionFailedError{Cause: errors.Wrapf(err, "open %s", filename)}
	}

	var r io.Reader = f
	var closer io.Closer
	if strings.HasSuffix(filename, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, &ConstructionFailedError{Cause: errors.Wrapf(err, "open gzip reader for %s", filename)}
		}
		r = gz
		closer = gz
	}

	return &fileLineSupply[T]{
		file:    f,
		closer:  closer,
		scanner: bufio.NewScanner(r),
		limit:   limit,
		log:     log,
	}, nil
}

func (s *fileLineSupply[T]) readUpTo(ctx context.Context, n uint32) ([]T, error) {
	out := make([]T, 0, n)
	for !s.done && uint32(len(out)) < n {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
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

func (s *fileLineSupply[T]) close() error {
	var err error
	if s.closer != nil {
		err = s.closer.Close()
	}
	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// fileSource is the Window implementation backed by a text file, wiring a
// fileLineSupply into the shared fetchEngine.
type fileSource[T Numeric] struct {
	engine *fetchEngine[T]
	supply *fileLineSupply[T]
}

// NewFileSource opens filename on fs (use afero.NewOsFs() in production,
// afero.NewMemMapFs() in tests) and returns a Window reading one value of T
// per line. Files ending in .gz are transparently decompressed with
// parallel gzip. launchPolicy defaults to Deferred and limit defaults to
// unbounded; override either with FileOption.
func NewFileSource[T Numeric](fs afero.Fs, filename string, windowSize uint32, opts ...FileOption) (Window[T], error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	supply, err := newFileLineSupply[T](fs, filename, cfg.limit, cfg.logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine := newFetchEngine[T](ctx, cancel, windowSize, cfg, supply.readUpTo, supply.readUpTo)
	return &fileSource[T]{engine: engine, supply: supply}, nil
}

func (s *fileSource[T]) Current() ([]T, error) { return s.engine.current() }
func (s *fileSource[T]) Advance() error        { return s.engine.advance() }
func (s *fileSource[T]) Exhausted() bool       { return s.engine.exhausted() }
func (s *fileSource[T]) WindowSize() uint32    { return s.engine.windowSize }

func (s *fileSource[T]) Close() error {
	s.engine.close()
	if err := s.supply.close(); err != nil {
		s.engine.log.Warn().Err(err).Msg("error closing file supply during teardown")
	}
	return nil
}
