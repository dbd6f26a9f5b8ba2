package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"memstore/internal/config"
	"memstore/internal/paths"
)

func TestNewProviderStrategies(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	p, err := NewProvider(config.StrategyPooled, dir, 4, testOptions())
	require.NoError(t, err)
	require.Equal(t, config.StrategyPooled, p.Strategy())

	p, err = NewProvider(config.StrategyEphemeral, dir, 4, testOptions())
	require.NoError(t, err)
	require.Equal(t, config.StrategyEphemeral, p.Strategy())

	_, err = NewProvider("bogus", dir, 4, testOptions())
	require.Error(t, err)
}

func TestPooledProviderReusesHandle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	p, err := NewPooledProvider(dir, 4, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.CloseAll() })

	h1, err := p.Acquire(ctx, "persona")
	require.NoError(t, err)
	h2, err := p.Acquire(ctx, "persona")
	require.NoError(t, err)

	require.Same(t, h1.DB(), h2.DB())
	require.Equal(t, paths.DBPath(dir, "persona"), h1.Path())
	require.Equal(t, 1, p.Len())

	h1.Release()
	h1.Release()
	h2.Release()

	// Released handles stay cached and usable.
	h3, err := p.Acquire(ctx, "persona")
	require.NoError(t, err)
	defer h3.Release()
	require.Same(t, h1.DB(), h3.DB())
	require.NoError(t, h3.DB().Conn().PingContext(ctx))
}

func TestPooledProviderIsolatesScopes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := NewPooledProvider(t.TempDir(), 4, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.CloseAll() })

	create := func(scope, id string) {
		h, err := p.Acquire(ctx, scope)
		require.NoError(t, err)
		defer h.Release()
		_, err = NewMemoryRepository(h.DB(), nil).Create(ctx, MemoryCreateInput{
			ID: id, TemplateID: "t", TableID: "x", RowData: json.RawMessage(`{}`),
		})
		require.NoError(t, err)
	}
	count := func(scope string) int {
		h, err := p.Acquire(ctx, scope)
		require.NoError(t, err)
		defer h.Release()
		n, err := NewMemoryRepository(h.DB(), nil).Count(ctx)
		require.NoError(t, err)
		return n
	}

	create("", "default-1")
	create("alpha", "alpha-1")
	create("alpha", "alpha-2")

	require.Equal(t, 1, count(""))
	require.Equal(t, 2, count("alpha"))
	require.Equal(t, 0, count("beta"))
}

func TestPooledProviderEvictionWaitsForRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := NewPooledProvider(t.TempDir(), 1, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.CloseAll() })

	first, err := p.Acquire(ctx, "first")
	require.NoError(t, err)

	second, err := p.Acquire(ctx, "second")
	require.NoError(t, err)
	defer second.Release()
	require.Equal(t, 1, p.Len())

	// Evicted but still borrowed: must remain open.
	require.NoError(t, first.DB().Conn().PingContext(ctx))

	first.Release()
	require.Error(t, first.DB().Conn().PingContext(ctx), "evicted database must be closed after its last release")

	again, err := p.Acquire(ctx, "first")
	require.NoError(t, err)
	defer again.Release()
	require.NotSame(t, first.DB(), again.DB())
	require.NoError(t, again.DB().Conn().PingContext(ctx))
}

func (p *PooledProvider) isClosing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closing
}

func TestPooledProviderCloseAllWaitsForBorrowers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := NewPooledProvider(t.TempDir(), 4, testOptions())
	require.NoError(t, err)

	idle, err := p.Acquire(ctx, "idle")
	require.NoError(t, err)
	idle.Release()

	busy, err := p.Acquire(ctx, "busy")
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- p.CloseAll() }()
	require.Eventually(t, p.isClosing, time.Second, time.Millisecond)

	acquired := make(chan *Handle, 1)
	go func() {
		h, err := p.Acquire(ctx, "idle")
		if err != nil {
			close(acquired)
			return
		}
		acquired <- h
	}()

	select {
	case err := <-closed:
		t.Fatalf("CloseAll returned (%v) while a handle was still borrowed", err)
	case <-acquired:
		t.Fatal("Acquire succeeded while CloseAll was draining")
	case <-time.After(50 * time.Millisecond):
	}

	// The borrower finishes its write before letting go.
	_, err = NewMemoryRepository(busy.DB(), nil).Create(ctx, MemoryCreateInput{
		ID: "last", TemplateID: "t", TableID: "x", RowData: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	busy.Release()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("CloseAll did not return after the last release")
	}
	require.Error(t, busy.DB().Conn().PingContext(ctx))
	require.Error(t, idle.DB().Conn().PingContext(ctx))

	var h *Handle
	select {
	case h = <-acquired:
		require.NotNil(t, h)
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire stayed blocked after CloseAll returned")
	}
	require.NotSame(t, idle.DB(), h.DB())
	require.NoError(t, h.DB().Conn().PingContext(ctx))
	h.Release()

	require.NoError(t, p.CloseAll())
	require.NoError(t, p.CloseAll())
	require.Zero(t, p.Len())
}

func TestPooledProviderConcurrentFirstAcquireOpensOnce(t *testing.T) {
	ctx := context.Background()

	p, err := NewPooledProvider(t.TempDir(), 4, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.CloseAll() })

	before := testutil.ToFloat64(scopeOpensTotal.WithLabelValues(config.StrategyPooled))

	const workers = 16
	handles := make([]*Handle, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := p.Acquire(ctx, "shared")
			if err == nil {
				handles[i] = h
			}
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		require.NotNil(t, h)
		require.Same(t, handles[0].DB(), h.DB())
		h.Release()
	}
	require.Equal(t, before+1, testutil.ToFloat64(scopeOpensTotal.WithLabelValues(config.StrategyPooled)))
}

func TestPooledProviderConcurrentScopes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := NewPooledProvider(t.TempDir(), 8, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.CloseAll() })

	seed, err := p.Acquire(ctx, "reader")
	require.NoError(t, err)
	_, err = NewMemoryRepository(seed.DB(), nil).Create(ctx, MemoryCreateInput{
		ID: "seed", TemplateID: "t", TableID: "x", RowData: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	seed.Release()

	const batch = 200
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		h, err := p.Acquire(gctx, "writer")
		if err != nil {
			return err
		}
		defer h.Release()
		inputs := make([]MemoryCreateInput, batch)
		for i := range inputs {
			inputs[i] = MemoryCreateInput{
				ID: fmt.Sprintf("w-%03d", i), TemplateID: "t", TableID: "x", RowData: json.RawMessage(`{}`),
			}
		}
		n, err := NewMemoryRepository(h.DB(), nil).BatchCreate(gctx, inputs)
		if err != nil {
			return err
		}
		if n != batch {
			return fmt.Errorf("inserted %d, want %d", n, batch)
		}
		return nil
	})

	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 20; j++ {
				h, err := p.Acquire(gctx, "reader")
				if err != nil {
					return err
				}
				got, err := NewMemoryRepository(h.DB(), nil).Query(gctx, MemoryQuery{})
				h.Release()
				if err != nil {
					return err
				}
				if len(got) != 1 {
					return fmt.Errorf("reader scope saw %d rows", len(got))
				}
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())

	h, err := p.Acquire(ctx, "writer")
	require.NoError(t, err)
	defer h.Release()
	n, err := NewMemoryRepository(h.DB(), nil).Count(ctx)
	require.NoError(t, err)
	require.Equal(t, batch, n)
}

func TestPooledProviderOpenFailureIsNotCached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	opts := testOptions()
	opts.Schema = &Schema{Version: 0}
	p, err := NewPooledProvider(t.TempDir(), 4, opts)
	require.NoError(t, err)

	_, err = p.Acquire(ctx, "x")
	require.Error(t, err)
	require.Zero(t, p.Len())

	_, err = p.Acquire(ctx, "x")
	require.Error(t, err)
}

func TestEphemeralProviderClosesOnRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	p := NewEphemeralProvider(dir, testOptions())

	h, err := p.Acquire(ctx, "mobile")
	require.NoError(t, err)
	_, err = NewMemoryRepository(h.DB(), nil).Create(ctx, MemoryCreateInput{
		ID: "m", TemplateID: "t", TableID: "x", RowData: json.RawMessage(`{"k":1}`),
	})
	require.NoError(t, err)
	db := h.DB()
	h.Release()
	require.Error(t, db.Conn().PingContext(ctx))

	h2, err := p.Acquire(ctx, "mobile")
	require.NoError(t, err)
	defer h2.Release()
	require.NotSame(t, db, h2.DB())

	got, err := NewMemoryRepository(h2.DB(), nil).Query(ctx, MemoryQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.JSONEq(t, `{"k":1}`, string(got[0].RowData))

	require.NoError(t, p.CloseAll())
}
