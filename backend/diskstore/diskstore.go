// Package diskstore is a file-per-key write-back store for cached values.
//
// Use the Store as both Loader and Remover of a cache: evicted dirty values
// are written to disk and loaded back on the next miss; keys that were never
// written are produced by the fallback loader (for example an empty cell).
package diskstore

import (
	"context"
	goerrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agilira/go-errors"
	"github.com/google/uuid"

	"github.com/IvanBrykalov/cellcache/backend"
	"github.com/IvanBrykalov/cellcache/cache"
)

const (
	ErrCodeRead  errors.ErrorCode = "DISKSTORE_READ_FAILED"
	ErrCodeWrite errors.ErrorCode = "DISKSTORE_WRITE_FAILED"
	ErrCodeSetup errors.ErrorCode = "DISKSTORE_SETUP_FAILED"
)

// Options configures a Store. Codec is required.
type Options[K comparable, V any] struct {
	// Dir is the parent directory. Empty means os.TempDir().
	Dir string
	// Keep leaves the session directory in place on Close.
	Keep bool

	Codec backend.Codec[V]
	// Fallback produces values for keys without a file. nil => Load fails.
	Fallback cache.Loader[K, V]
	// Name maps a key to a file name; nil => fmt.Sprint.
	Name func(K) string

	Logger *slog.Logger
}

// Store persists values below a session directory named with a random UUID,
// so concurrent processes sharing Dir never see each other's files.
type Store[K comparable, V any] struct {
	dir string
	opt Options[K, V]
	log *slog.Logger
}

var (
	_ cache.Loader[string, []byte]  = (*Store[string, []byte])(nil)
	_ cache.Remover[string, []byte] = (*Store[string, []byte])(nil)
)

// New creates the session directory.
func New[K comparable, V any](opt Options[K, V]) (*Store[K, V], error) {
	if opt.Codec == nil {
		return nil, errors.NewWithField(ErrCodeSetup, "codec is required", "dir", opt.Dir)
	}
	if opt.Name == nil {
		opt.Name = backend.KeyString[K]
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	parent := opt.Dir
	if parent == "" {
		parent = os.TempDir()
	}
	dir := filepath.Join(parent, "cellcache-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, ErrCodeSetup, "cannot create session directory").WithContext("dir", dir)
	}
	opt.Logger.Debug("disk store session created", slog.String("dir", dir))
	return &Store[K, V]{dir: dir, opt: opt, log: opt.Logger}, nil
}

// Dir returns the session directory.
func (s *Store[K, V]) Dir() string { return s.dir }

func (s *Store[K, V]) path(k K) string { return filepath.Join(s.dir, s.opt.Name(k)) }

// Load reads the stored value of k or, if none was written, asks the fallback.
func (s *Store[K, V]) Load(ctx context.Context, k K) (V, error) {
	var zero V
	b, err := os.ReadFile(s.path(k))
	switch {
	case goerrors.Is(err, fs.ErrNotExist):
		if s.opt.Fallback == nil {
			return zero, errors.NewWithContext(ErrCodeRead, "no stored value and no fallback", map[string]interface{}{"key": k})
		}
		return s.opt.Fallback.Load(ctx, k)
	case err != nil:
		return zero, errors.Wrap(err, ErrCodeRead, "cannot read value").WithContext("key", k).AsRetryable()
	}
	v, err := s.opt.Codec.Unmarshal(b)
	if err != nil {
		return zero, errors.Wrap(err, ErrCodeRead, "cannot decode value").WithContext("key", k)
	}
	return v, nil
}

// OnRemoval writes v when it needs writing (see backend.NeedsWrite).
// The file is replaced atomically.
func (s *Store[K, V]) OnRemoval(ctx context.Context, k K, v V) error {
	if !backend.NeedsWrite(v) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := s.opt.Codec.Marshal(v)
	if err != nil {
		return errors.Wrap(err, ErrCodeWrite, "cannot encode value").WithContext("key", k)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, ErrCodeWrite, "cannot create temp file").WithContext("key", k).AsRetryable()
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, ErrCodeWrite, "cannot write value").WithContext("key", k).AsRetryable()
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, ErrCodeWrite, "cannot write value").WithContext("key", k).AsRetryable()
	}
	if err := os.Rename(tmp.Name(), s.path(k)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, ErrCodeWrite, "cannot publish value").WithContext("key", k).AsRetryable()
	}
	return nil
}

// Delete forgets the stored value of k.
func (s *Store[K, V]) Delete(k K) error {
	err := os.Remove(s.path(k))
	if err != nil && !goerrors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, ErrCodeWrite, "cannot delete value").WithContext("key", k)
	}
	return nil
}

// Close removes the session directory unless Options.Keep is set.
func (s *Store[K, V]) Close() error {
	if s.opt.Keep {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		s.log.Warn("cannot remove disk store session", slog.String("dir", s.dir), slog.String("error", err.Error()))
		return err
	}
	return nil
}
