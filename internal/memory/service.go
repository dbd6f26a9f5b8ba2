// Package memory is the scope-aware entry point used by the command layer.
// Every operation takes a raw scope identifier, resolves it to a database
// through the configured provider, and runs one repository call against it.
package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"memstore/internal/config"
	memerrors "memstore/internal/errors"
	"memstore/internal/paths"
	"memstore/internal/slogutil"
	"memstore/internal/storage"
)

// Options override collaborators for embedding and tests. Zero values are
// derived from the config.
type Options struct {
	Fs     afero.Fs
	Clock  func() time.Time
	Schema *storage.Schema
	IDs    storage.IDGenerator
}

// Service exposes the memory store operations.
type Service struct {
	dataDir  string
	provider storage.Provider
	ids      storage.IDGenerator
	fs       afero.Fs
	logger   *slog.Logger
}

// New builds a service for cfg. The connection strategy is resolved once
// here; "auto" becomes pooled or ephemeral depending on the host OS.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	ids := opts.IDs
	if ids == nil {
		var err error
		ids, err = storage.NewIDGenerator(cfg.IDs.Strategy, opts.Clock)
		if err != nil {
			return nil, err
		}
	}

	strategy := cfg.ResolvedStrategy()
	provider, err := storage.NewProvider(strategy, cfg.DataDir, cfg.Connection.MaxOpenScopes, storage.Options{
		BusyTimeout: time.Duration(cfg.Connection.BusyTimeoutMs) * time.Millisecond,
		MaxConns:    cfg.Connection.MaxConnsPerScope,
		Schema:      opts.Schema,
		Fs:          opts.Fs,
		Logger:      logger,
		Clock:       opts.Clock,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Memory service ready", "data_dir", cfg.DataDir, "strategy", strategy)

	return &Service{
		dataDir:  cfg.DataDir,
		provider: provider,
		ids:      ids,
		fs:       opts.Fs,
		logger:   logger,
	}, nil
}

// DataDir returns the directory holding the scope databases.
func (s *Service) DataDir() string { return s.dataDir }

// Strategy returns the resolved connection strategy.
func (s *Service) Strategy() string { return s.provider.Strategy() }

// withScope runs fn against the database for a raw scope identifier. The
// handle is released when fn returns.
func (s *Service) withScope(ctx context.Context, scope string, fn func(db *storage.DB) error) error {
	handle, err := s.provider.Acquire(ctx, paths.NormalizeScope(scope))
	if err != nil {
		return err
	}
	defer handle.Release()
	return fn(handle.DB())
}

// Init opens (creating and migrating if needed) the scope database.
func (s *Service) Init(ctx context.Context, scope string) error {
	return s.withScope(ctx, scope, func(*storage.DB) error { return nil })
}

// CreateMemory inserts a memory and returns its id.
func (s *Service) CreateMemory(ctx context.Context, scope string, in storage.MemoryCreateInput) (string, error) {
	var id string
	err := s.withScope(ctx, scope, func(db *storage.DB) error {
		var err error
		id, err = storage.NewMemoryRepository(db, s.ids).Create(ctx, in)
		return err
	})
	return id, err
}

// UpdateMemory applies the supplied fields to an existing memory.
func (s *Service) UpdateMemory(ctx context.Context, scope string, in storage.MemoryUpdateInput) error {
	return s.withScope(ctx, scope, func(db *storage.DB) error {
		return storage.NewMemoryRepository(db, s.ids).Update(ctx, in)
	})
}

// DeleteMemory removes a memory by id.
func (s *Service) DeleteMemory(ctx context.Context, scope, id string) error {
	return s.withScope(ctx, scope, func(db *storage.DB) error {
		return storage.NewMemoryRepository(db, s.ids).Delete(ctx, id)
	})
}

// QueryMemories returns the memories matching q, most relevant first.
func (s *Service) QueryMemories(ctx context.Context, scope string, q storage.MemoryQuery) ([]storage.MemoryRecord, error) {
	var out []storage.MemoryRecord
	err := s.withScope(ctx, scope, func(db *storage.DB) error {
		var err error
		out, err = storage.NewMemoryRepository(db, s.ids).Query(ctx, q)
		return err
	})
	return out, err
}

// BatchCreateMemories inserts all inputs atomically and returns the count.
func (s *Service) BatchCreateMemories(ctx context.Context, scope string, inputs []storage.MemoryCreateInput) (int, error) {
	var n int
	err := s.withScope(ctx, scope, func(db *storage.DB) error {
		var err error
		n, err = storage.NewMemoryRepository(db, s.ids).BatchCreate(ctx, inputs)
		return err
	})
	return n, err
}

// BatchDeleteMemories deletes all ids atomically and returns how many rows
// were removed.
func (s *Service) BatchDeleteMemories(ctx context.Context, scope string, ids []string) (int, error) {
	var n int
	err := s.withScope(ctx, scope, func(db *storage.DB) error {
		var err error
		n, err = storage.NewMemoryRepository(db, s.ids).BatchDelete(ctx, ids)
		return err
	})
	return n, err
}

// SaveTemplate inserts or replaces a template.
func (s *Service) SaveTemplate(ctx context.Context, scope string, in storage.TemplateInput) error {
	return s.withScope(ctx, scope, func(db *storage.DB) error {
		return storage.NewTemplateRepository(db).Save(ctx, in)
	})
}

// QueryTemplates returns the templates matching q, most recently updated first.
func (s *Service) QueryTemplates(ctx context.Context, scope string, q storage.TemplateQuery) ([]storage.TemplateRecord, error) {
	var out []storage.TemplateRecord
	err := s.withScope(ctx, scope, func(db *storage.DB) error {
		var err error
		out, err = storage.NewTemplateRepository(db).Query(ctx, q)
		return err
	})
	return out, err
}

// DeleteTemplate removes a template by id.
func (s *Service) DeleteTemplate(ctx context.Context, scope, id string) error {
	return s.withScope(ctx, scope, func(db *storage.DB) error {
		return storage.NewTemplateRepository(db).Delete(ctx, id)
	})
}

// CloseAll closes every cached scope database. Call it before touching the
// data directory with raw file operations. The service stays usable.
func (s *Service) CloseAll() error {
	if err := s.provider.CloseAll(); err != nil {
		return memerrors.Wrap(memerrors.IOError, "close scope databases", err)
	}
	s.logger.Debug("Closed all scope databases")
	return nil
}

// Snapshot writes a consistent copy of the scope database to dest.
func (s *Service) Snapshot(ctx context.Context, scope, dest string, compress bool) (storage.SnapshotResult, error) {
	var res storage.SnapshotResult
	err := s.withScope(ctx, scope, func(db *storage.DB) error {
		var err error
		res, err = db.Snapshot(ctx, dest, compress)
		return err
	})
	return res, err
}

// ListScopes returns every scope database present in the data directory.
func (s *Service) ListScopes(_ context.Context) ([]storage.ScopeFile, error) {
	return storage.ListScopeFiles(s.fs, s.dataDir)
}

// ScopeExists reports whether a database file exists for the raw scope.
func (s *Service) ScopeExists(scope string) (bool, error) {
	_, path := paths.ResolveScope(s.dataDir, scope)
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, memerrors.New(memerrors.IOError, "check scope database", err)
	}
	return ok, nil
}
