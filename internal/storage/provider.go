package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"memstore/internal/config"
	"memstore/internal/paths"
)

// Provider hands out ready-to-use scope databases. Implementations differ
// only in how long a database stays open, never in behavior.
type Provider interface {
	// Acquire returns an open, schema-current database for a normalized
	// scope key. The caller must Release the handle when done.
	Acquire(ctx context.Context, scopeKey string) (*Handle, error)
	// CloseAll closes every cached database. It blocks until every
	// borrowed handle has been released and every in-flight open has
	// finished, and must not be called while holding a handle. The
	// provider stays usable afterwards.
	CloseAll() error
	// Strategy names the lifetime policy ("pooled" or "ephemeral").
	Strategy() string
}

// Handle is a borrowed database. It must not be used after Release.
type Handle struct {
	db      *DB
	release func()
	once    sync.Once
}

// DB returns the borrowed database.
func (h *Handle) DB() *DB { return h.db }

// Path returns the database file path.
func (h *Handle) Path() string { return h.db.Path() }

// Release returns the handle to its provider. It is safe to call twice.
func (h *Handle) Release() {
	h.once.Do(h.release)
}

// NewProvider builds the provider for a resolved strategy name
// (config.StrategyPooled or config.StrategyEphemeral).
func NewProvider(strategy, baseDir string, maxOpenScopes int, opts Options) (Provider, error) {
	switch strategy {
	case config.StrategyPooled:
		return NewPooledProvider(baseDir, maxOpenScopes, opts)
	case config.StrategyEphemeral:
		return NewEphemeralProvider(baseDir, opts), nil
	default:
		return nil, fmt.Errorf("unknown connection strategy %q", strategy)
	}
}

// PooledProvider keeps one open database per scope key, bounded by an LRU.
// An evicted database is closed once its last borrower releases it.
type PooledProvider struct {
	baseDir string
	opts    Options
	logger  *slog.Logger

	mu        sync.Mutex
	idle      *sync.Cond // signalled when borrowed or opening drops, or closing ends
	cache     *lru.Cache
	opening   map[string]*pendingOpen
	borrowed  int
	closing   bool
	closeErrs []error
}

type pooledEntry struct {
	db      *DB
	refs    int
	evicted bool
}

type pendingOpen struct {
	done chan struct{}
	err  error
}

// NewPooledProvider creates a pooled provider holding at most maxOpen
// scope databases open at once.
func NewPooledProvider(baseDir string, maxOpen int, opts Options) (*PooledProvider, error) {
	opts = opts.withDefaults()
	if maxOpen <= 0 {
		maxOpen = 64
	}

	p := &PooledProvider{
		baseDir: baseDir,
		opts:    opts,
		logger:  opts.Logger,
		opening: make(map[string]*pendingOpen),
	}
	p.idle = sync.NewCond(&p.mu)

	cache, err := lru.NewWithEvict(maxOpen, p.onEvict)
	if err != nil {
		return nil, err
	}
	p.cache = cache
	return p, nil
}

// onEvict runs with p.mu held, from inside cache.Add, Remove or Purge.
func (p *PooledProvider) onEvict(key, value interface{}) {
	entry := value.(*pooledEntry)
	entry.evicted = true
	pooledHandles.Dec()
	pooledEvictionsTotal.Inc()

	p.logger.Debug("Evicted pooled scope database", "scope", key, "refs", entry.refs)
	if entry.refs == 0 {
		p.closeEntry(key, entry)
	}
}

func (p *PooledProvider) closeEntry(key interface{}, entry *pooledEntry) {
	if err := entry.db.Close(); err != nil {
		p.logger.Warn("failed to close evicted scope database", "scope", key, "error", err.Error())
		p.closeErrs = append(p.closeErrs, err)
	}
}

// Strategy implements Provider.
func (p *PooledProvider) Strategy() string { return config.StrategyPooled }

// Acquire implements Provider. Concurrent first acquisitions of one key
// share a single open; different keys open independently. Acquire waits
// while a CloseAll is in progress.
func (p *PooledProvider) Acquire(ctx context.Context, scopeKey string) (*Handle, error) {
	for {
		p.mu.Lock()
		for p.closing {
			p.idle.Wait()
		}
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return nil, err
		}
		if v, ok := p.cache.Get(scopeKey); ok {
			entry := v.(*pooledEntry)
			entry.refs++
			p.borrowed++
			p.mu.Unlock()
			return p.handle(scopeKey, entry), nil
		}

		if pending, ok := p.opening[scopeKey]; ok {
			p.mu.Unlock()
			select {
			case <-pending.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if pending.err != nil {
				return nil, pending.err
			}
			continue
		}

		pending := &pendingOpen{done: make(chan struct{})}
		p.opening[scopeKey] = pending
		p.mu.Unlock()

		db, err := Open(ctx, paths.DBPath(p.baseDir, scopeKey), p.opts)

		p.mu.Lock()
		delete(p.opening, scopeKey)
		if err != nil {
			pending.err = err
			close(pending.done)
			p.idle.Broadcast()
			p.mu.Unlock()
			return nil, err
		}

		entry := &pooledEntry{db: db, refs: 1}
		p.cache.Add(scopeKey, entry)
		p.borrowed++
		pooledHandles.Inc()
		scopeOpensTotal.WithLabelValues(config.StrategyPooled).Inc()
		close(pending.done)
		p.idle.Broadcast()
		p.mu.Unlock()

		p.logger.Debug("Opened pooled scope database", "scope", scopeKey, "path", db.Path())
		return p.handle(scopeKey, entry), nil
	}
}

func (p *PooledProvider) handle(key string, entry *pooledEntry) *Handle {
	return &Handle{
		db: entry.db,
		release: func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			entry.refs--
			p.borrowed--
			if entry.evicted && entry.refs == 0 {
				p.closeEntry(key, entry)
			}
			if p.borrowed == 0 {
				p.idle.Broadcast()
			}
		},
	}
}

// Len returns the number of cached scope databases.
func (p *PooledProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Len()
}

// CloseAll implements Provider. New acquisitions are held back while it
// waits for borrowers to drain; concurrent CloseAll calls run one at a time.
func (p *PooledProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.closing {
		p.idle.Wait()
	}
	p.closing = true
	defer func() {
		p.closing = false
		p.idle.Broadcast()
	}()

	for p.borrowed > 0 || len(p.opening) > 0 {
		p.idle.Wait()
	}

	p.closeErrs = nil
	p.cache.Purge()

	errs := p.closeErrs
	p.closeErrs = nil
	if len(errs) > 0 {
		return fmt.Errorf("close scope databases: %d failed, first: %w", len(errs), errs[0])
	}
	return nil
}

// EphemeralProvider opens and fully initializes a database on every
// Acquire and closes it on Release. Nothing is held between calls.
type EphemeralProvider struct {
	baseDir string
	opts    Options
}

// NewEphemeralProvider creates an ephemeral provider.
func NewEphemeralProvider(baseDir string, opts Options) *EphemeralProvider {
	opts = opts.withDefaults()
	opts.MaxConns = 1
	return &EphemeralProvider{baseDir: baseDir, opts: opts}
}

// Strategy implements Provider.
func (p *EphemeralProvider) Strategy() string { return config.StrategyEphemeral }

// Acquire implements Provider.
func (p *EphemeralProvider) Acquire(ctx context.Context, scopeKey string) (*Handle, error) {
	db, err := Open(ctx, paths.DBPath(p.baseDir, scopeKey), p.opts)
	if err != nil {
		return nil, err
	}
	scopeOpensTotal.WithLabelValues(config.StrategyEphemeral).Inc()

	return &Handle{
		db: db,
		release: func() {
			if err := db.Close(); err != nil {
				p.opts.Logger.Warn("failed to close scope database", "path", db.Path(), "error", err.Error())
			}
		},
	}, nil
}

// CloseAll implements Provider. Ephemeral databases never outlive a call.
func (p *EphemeralProvider) CloseAll() error { return nil }
