package slidewin

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// SQLOption configures NewSQLSource. See FileOption for the defaulting
// convention shared by both async constructors.
type SQLOption func(*engineConfig)

// WithSQLLaunchPolicy overrides the default (Deferred) launch policy.
func WithSQLLaunchPolicy(p LaunchPolicy) SQLOption { return func(c *engineConfig) { c.policy = p } }

// WithSQLLimit caps the number of elements ever read from the query.
func WithSQLLimit(limit uint32) SQLOption { return func(c *engineConfig) { c.limit = limit } }

// WithSQLLogger attaches a zerolog.Logger to the engine.
func WithSQLLogger(log zerolog.Logger) SQLOption { return func(c *engineConfig) { c.logger = log } }

// sqlRowSupply runs query, which must contain exactly two positional
// parameters in the order (LIMIT, OFFSET), binding offset to the running
// consumed count. The caller is responsible for query safety: no escaping
// is performed here, matching the original's "CHECK YOUR INPUTS" contract.
type sqlRowSupply[T Numeric] struct {
	db       *gorm.DB
	query    string
	consumed uint32
	limit    uint32
	log      zerolog.Logger
}

func newSQLRowSupply[T Numeric](db *gorm.DB, query string, limit uint32, log zerolog.Logger) *sqlRowSupply[T] {
	return &sqlRowSupply[T]{db: db, query: query, limit: limit, log: log}
}

// validate prepares and immediately closes query with a zero-row fetch, the
// same synchronous check the original's constructor performs via
// sqlite3_prepare_v2 before ever starting to stream: a malformed query is
// reported at construction time, not as a misfiled fetch failure later.
func (s *sqlRowSupply[T]) validate(ctx context.Context) error {
	rows, err := s.db.WithContext(ctx).Raw(s.query, int64(0), int64(0)).Rows()
	if err != nil {
		return errors.Wrap(err, "prepare query")
	}
	return rows.Close()
}

func (s *sqlRowSupply[T]) readUpTo(ctx context.Context, n uint32) ([]T, error) {
	want := n
	if remaining := s.limit - s.consumed; want > remaining {
		want = remaining
	}
	if want == 0 {
		return nil, nil
	}

	rows, err := s.db.WithContext(ctx).Raw(s.query, int64(want), int64(s.consumed)).Rows()
	if err != nil {
		return nil, errors.Wrap(err, "query rows")
	}
	defer rows.Close()

	out := make([]T, 0, want)
	for uint32(len(out)) < want && rows.Next() {
		v, err := scanColumn[T](rows.Scan)
		if err != nil {
			return out, errors.Wrap(err, "scan column 0")
		}
		out = append(out, v)
		s.consumed++
	}
	if err := rows.Err(); err != nil {
		return out, errors.Wrap(err, "iterate rows")
	}

	return out, nil
}

// sqlSource is the Window implementation backed by a relational query,
// wiring a sqlRowSupply into the shared fetchEngine.
type sqlSource[T Numeric] struct {
	engine *fetchEngine[T]
	supply *sqlRowSupply[T]
}

// NewSQLSource executes query (exactly two positional parameters, bound in
// the order LIMIT, OFFSET) against db, which the caller owns and closes
// after the source is dropped. Each row contributes one element, read from
// column 0; each window holds windowSize consecutive elements.
// launchPolicy defaults to Deferred and limit defaults to unbounded.
// query is prepared synchronously before this returns; a malformed query
// fails construction with a *ConstructionFailedError rather than surfacing
// later as a misfiled fetch failure.
func NewSQLSource[T Numeric](db *gorm.DB, query string, windowSize uint32, opts ...SQLOption) (Window[T], error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	supply := newSQLRowSupply[T](db, query, cfg.limit, cfg.logger)
	if err := supply.validate(context.Background()); err != nil {
		return nil, &ConstructionFailedError{Cause: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine := newFetchEngine[T](ctx, cancel, windowSize, cfg, supply.readUpTo, supply.readUpTo)
	return &sqlSource[T]{engine: engine, supply: supply}, nil
}

func (s *sqlSource[T]) Current() ([]T, error) { return s.engine.current() }
func (s *sqlSource[T]) Advance() error        { return s.engine.advance() }
func (s *sqlSource[T]) Exhausted() bool       { return s.engine.exhausted() }
func (s *sqlSource[T]) WindowSize() uint32    { return s.engine.windowSize }

func (s *sqlSource[T]) Close() error {
	s.engine.close()
	return nil
}
