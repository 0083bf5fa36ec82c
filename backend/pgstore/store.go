// Package pgstore is a PostgreSQL write-back store for cached values.
//
// Values of one Store live in the cells table under the store's namespace, so
// several caches can share a schema. Call Migrator.Migrate once before use.
package pgstore

import (
	"context"
	"database/sql"
	goerrors "errors"
	"fmt"
	"log/slog"

	"github.com/agilira/go-errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/IvanBrykalov/cellcache/backend"
	"github.com/IvanBrykalov/cellcache/cache"
)

const DBName = "cellcache"

const LocalConnectionString = "user=postgres password=postgres dbname=cellcache sslmode=disable"

const (
	MainSchema    = "cellcache"
	TestingSchema = "cellcache_test"
)

const (
	ErrCodeRead  errors.ErrorCode = "PGSTORE_READ_FAILED"
	ErrCodeWrite errors.ErrorCode = "PGSTORE_WRITE_FAILED"
	ErrCodeSetup errors.ErrorCode = "PGSTORE_SETUP_FAILED"
)

// Open connects to PostgreSQL through lib/pq.
func Open(connectionString string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeSetup, "failed to connect to db")
	}
	return db, nil
}

// Options configures a Store. Codec is required.
type Options[K comparable, V any] struct {
	// Schema holds the cells table; empty => MainSchema.
	Schema string
	// Namespace separates stores sharing a schema.
	Namespace string

	Codec backend.Codec[V]
	// Fallback produces values for keys without a row. nil => Load fails.
	Fallback cache.Loader[K, V]
	// Name maps a key to its row key; nil => fmt.Sprint.
	Name func(K) string

	Logger *slog.Logger
}

type Store[K comparable, V any] struct {
	db  *sqlx.DB
	opt Options[K, V]
	log *slog.Logger
}

var (
	_ cache.Loader[string, []byte]  = (*Store[string, []byte])(nil)
	_ cache.Remover[string, []byte] = (*Store[string, []byte])(nil)
)

func New[K comparable, V any](db *sqlx.DB, opt Options[K, V]) (*Store[K, V], error) {
	if db == nil {
		return nil, errors.NewWithField(ErrCodeSetup, "db is required", "namespace", opt.Namespace)
	}
	if opt.Codec == nil {
		return nil, errors.NewWithField(ErrCodeSetup, "codec is required", "namespace", opt.Namespace)
	}
	if opt.Schema == "" {
		opt.Schema = MainSchema
	}
	if opt.Name == nil {
		opt.Name = backend.KeyString[K]
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store[K, V]{db: db, opt: opt, log: opt.Logger}, nil
}

// inTx runs fn in a transaction with the search path set to the store schema.
func (s *Store[K, V]) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	txx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer txx.Rollback()

	_, err = txx.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", pq.QuoteIdentifier(s.opt.Schema)))
	if err != nil {
		return fmt.Errorf("failed to set search path: %w", err)
	}
	if err := fn(txx); err != nil {
		return err
	}
	return txx.Commit()
}

// Load reads the stored value of k or, if there is no row, asks the fallback.
func (s *Store[K, V]) Load(ctx context.Context, k K) (V, error) {
	var zero V
	var data []byte
	err := s.inTx(ctx, func(txx *sqlx.Tx) error {
		return txx.GetContext(ctx, &data,
			`SELECT data FROM cells WHERE namespace = $1 AND cell_key = $2`,
			s.opt.Namespace, s.opt.Name(k))
	})
	switch {
	case goerrors.Is(err, sql.ErrNoRows):
		if s.opt.Fallback == nil {
			return zero, errors.NewWithContext(ErrCodeRead, "no stored value and no fallback", map[string]interface{}{"key": k})
		}
		return s.opt.Fallback.Load(ctx, k)
	case err != nil:
		return zero, errors.Wrap(err, ErrCodeRead, "cannot read value").WithContext("key", k).AsRetryable()
	}
	v, err := s.opt.Codec.Unmarshal(data)
	if err != nil {
		return zero, errors.Wrap(err, ErrCodeRead, "cannot decode value").WithContext("key", k)
	}
	return v, nil
}

// OnRemoval upserts v when it needs writing (see backend.NeedsWrite).
func (s *Store[K, V]) OnRemoval(ctx context.Context, k K, v V) error {
	if !backend.NeedsWrite(v) {
		return nil
	}
	data, err := s.opt.Codec.Marshal(v)
	if err != nil {
		return errors.Wrap(err, ErrCodeWrite, "cannot encode value").WithContext("key", k)
	}
	err = s.inTx(ctx, func(txx *sqlx.Tx) error {
		_, err := txx.ExecContext(ctx,
			`INSERT INTO cells
			(namespace, cell_key, data, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (namespace, cell_key)
			DO UPDATE SET
				data = EXCLUDED.data,
				updated_at = EXCLUDED.updated_at`,
			s.opt.Namespace, s.opt.Name(k), data)
		return err
	})
	if err != nil {
		return errors.Wrap(err, ErrCodeWrite, "cannot store value").WithContext("key", k).AsRetryable()
	}
	return nil
}

// Delete forgets the stored value of k.
func (s *Store[K, V]) Delete(ctx context.Context, k K) error {
	err := s.inTx(ctx, func(txx *sqlx.Tx) error {
		_, err := txx.ExecContext(ctx,
			`DELETE FROM cells WHERE namespace = $1 AND cell_key = $2`,
			s.opt.Namespace, s.opt.Name(k))
		return err
	})
	if err != nil {
		return errors.Wrap(err, ErrCodeWrite, "cannot delete value").WithContext("key", k)
	}
	return nil
}

// Count returns the number of rows in the store's namespace.
func (s *Store[K, V]) Count(ctx context.Context) (int, error) {
	var n int
	err := s.inTx(ctx, func(txx *sqlx.Tx) error {
		return txx.GetContext(ctx, &n, `SELECT COUNT(*) FROM cells WHERE namespace = $1`, s.opt.Namespace)
	})
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeRead, "cannot count values").WithContext("namespace", s.opt.Namespace)
	}
	return n, nil
}

// Purge deletes every row of the store's namespace.
func (s *Store[K, V]) Purge(ctx context.Context) error {
	err := s.inTx(ctx, func(txx *sqlx.Tx) error {
		res, err := txx.ExecContext(ctx, `DELETE FROM cells WHERE namespace = $1`, s.opt.Namespace)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil {
			s.log.DebugContext(ctx, "purged namespace", slog.String("namespace", s.opt.Namespace), slog.Int64("rows", n))
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, ErrCodeWrite, "cannot purge namespace").WithContext("namespace", s.opt.Namespace)
	}
	return nil
}
