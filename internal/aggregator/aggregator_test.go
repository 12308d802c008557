package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TanssiDashboard/internal/models"
	"TanssiDashboard/internal/store"
)

type fakeResolver struct {
	mu      sync.Mutex
	targets []models.ChainTarget
	err     error
	calls   int
}

func (r *fakeResolver) Resolve(ctx context.Context, network string) ([]models.ChainTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return append([]models.ChainTarget(nil), r.targets...), nil
}

func (r *fakeResolver) set(targets []models.ChainTarget, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets, r.err = targets, err
}

func (r *fakeResolver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeProber struct {
	mu       sync.Mutex
	failing  map[int]error
	gate     chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (p *fakeProber) Probe(ctx context.Context, target models.ChainTarget) (*models.ChainStatus, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		m := p.maxSeen.Load()
		if n <= m || p.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	err := p.failing[target.ID]
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &models.ChainStatus{ID: target.ID, Healthy: true, BlockNumber: 100}, nil
}

type recorder struct {
	mu    sync.Mutex
	snaps []store.Snapshot
}

func (r *recorder) Publish(snap store.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func dancebox() []models.ChainTarget {
	return []models.ChainTarget{
		{ID: 1000, URL: "wss://dancebox.tanssi-api.network", Kind: models.KindOrchestrator},
		{ID: 3000, URL: "wss://fraa-dancebox-3000-rpc.a.dancebox.tanssi.network", Kind: models.KindAppchain},
		{ID: 3001, URL: "wss://fraa-dancebox-3001-rpc.a.dancebox.tanssi.network", Kind: models.KindAppchain},
	}
}

func newTestSubscription(r Resolver, p Prober, pub Publisher, opts Options) (*Subscription, context.Context) {
	return New(r, p, pub, opts).subscribe(context.Background(), "dancebox")
}

func TestTick_PartialFailure(t *testing.T) {
	resolver := &fakeResolver{targets: dancebox()}
	prober := &fakeProber{failing: map[int]error{3001: errors.New("dial tcp: connection refused")}}
	pub := &recorder{}
	s, ctx := newTestSubscription(resolver, prober, pub, Options{RefreshEvery: 1})
	assert.True(t, s.InitialLoad())

	s.tick(ctx)

	snap := s.Snapshot()
	require.Len(t, snap.Entries, 3)
	assert.False(t, snap.InitialLoad)
	assert.Empty(t, snap.Error)

	for _, id := range []int{1000, 3000} {
		e, ok := snap.Entry(id)
		require.True(t, ok)
		assert.Equal(t, store.EntryReady, e.State)
		require.NotNil(t, e.Status)
	}
	failed, ok := snap.Entry(3001)
	require.True(t, ok)
	assert.Equal(t, store.EntryError, failed.State)
	assert.Nil(t, failed.Status)
	assert.Contains(t, failed.Err, "connection refused")

	// one publish with pending rows, one with probe results
	assert.Equal(t, 2, pub.count())
	assert.Equal(t, PhaseIdle, s.Phase())
}

func TestTick_ResolutionTimeoutKeepsTable(t *testing.T) {
	resolver := &fakeResolver{targets: dancebox()}
	s, ctx := newTestSubscription(resolver, &fakeProber{}, nil, Options{RefreshEvery: 1})

	s.tick(ctx)
	before := s.Snapshot()
	require.Len(t, before.Entries, 3)

	resolver.set(nil, fmt.Errorf("resolve dancebox: %w", context.DeadlineExceeded))
	s.tick(ctx)

	after := s.Snapshot()
	assert.Equal(t, before.Entries, after.Entries)
	assert.Equal(t, "resolve dancebox: context deadline exceeded", after.Error)

	// next tick retries resolution and clears the banner
	resolver.set(dancebox(), nil)
	s.tick(ctx)
	assert.Empty(t, s.Snapshot().Error)
	assert.Equal(t, 3, resolver.count())
}

func TestTick_FirstResolutionFailureShowsEmptyState(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("connection refused")}
	s, ctx := newTestSubscription(resolver, &fakeProber{}, nil, Options{RefreshEvery: 0})

	s.tick(ctx)
	snap := s.Snapshot()
	assert.Empty(t, snap.Entries)
	assert.Equal(t, "connection refused", snap.Error)

	s.tick(ctx)
	assert.Equal(t, 2, resolver.count())
}

func TestTick_Converges(t *testing.T) {
	s, ctx := newTestSubscription(&fakeResolver{targets: dancebox()}, &fakeProber{}, nil, Options{RefreshEvery: 1})

	s.tick(ctx)
	first := s.Snapshot()
	s.tick(ctx)
	second := s.Snapshot()

	require.Len(t, second.Entries, len(first.Entries))
	for i := range first.Entries {
		assert.Equal(t, first.Entries[i].State, second.Entries[i].State)
		assert.Equal(t, first.Entries[i].Status, second.Entries[i].Status)
	}
}

func TestTick_RefreshCadence(t *testing.T) {
	cases := []struct {
		every int
		ticks int
		want  int
	}{
		{every: 1, ticks: 4, want: 4},
		{every: 3, ticks: 7, want: 3},
		{every: 0, ticks: 5, want: 1},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("every=%d", tc.every), func(t *testing.T) {
			resolver := &fakeResolver{targets: dancebox()}
			s, ctx := newTestSubscription(resolver, &fakeProber{}, nil, Options{RefreshEvery: tc.every})
			for i := 0; i < tc.ticks; i++ {
				s.tick(ctx)
			}
			assert.Equal(t, tc.want, resolver.count())
		})
	}
}

func TestTick_RespectsMaxParallel(t *testing.T) {
	targets := make([]models.ChainTarget, 0, 10)
	for i := 0; i < 10; i++ {
		targets = append(targets, models.ChainTarget{ID: 3000 + i, Kind: models.KindAppchain})
	}
	prober := &fakeProber{}
	s, ctx := newTestSubscription(&fakeResolver{targets: targets}, prober, nil, Options{MaxParallel: 2})

	s.tick(ctx)
	assert.LessOrEqual(t, prober.maxSeen.Load(), int32(2))
	assert.Len(t, s.Snapshot().Entries, 10)
}

func TestRefresh_ForcesResolution(t *testing.T) {
	resolver := &fakeResolver{targets: dancebox()}
	s, ctx := newTestSubscription(resolver, &fakeProber{}, nil, Options{RefreshEvery: 0})

	s.tick(ctx)
	s.tick(ctx)
	require.Equal(t, 1, resolver.count())

	resolver.set(dancebox()[:2], nil)
	s.Refresh()
	require.Eventually(t, func() bool { return resolver.count() == 2 && !s.busy.Load() }, time.Second, time.Millisecond)
	assert.Len(t, s.Snapshot().Entries, 2)

	// the cadence applies again afterwards
	s.tick(ctx)
	assert.Equal(t, 2, resolver.count())
}

func TestRefresh_WhileBusyRunsAfterCurrentTick(t *testing.T) {
	resolver := &fakeResolver{targets: dancebox()}
	prober := &fakeProber{gate: make(chan struct{})}
	s, ctx := newTestSubscription(resolver, prober, nil, Options{RefreshEvery: 0})

	require.True(t, s.trigger(ctx))
	require.Eventually(t, func() bool { return s.Phase() == PhaseProbing }, time.Second, time.Millisecond)
	s.Refresh()
	assert.Equal(t, 1, resolver.count())

	close(prober.gate)
	require.Eventually(t, func() bool { return resolver.count() == 2 && !s.busy.Load() }, time.Second, time.Millisecond)
	assert.False(t, s.refresh.Load())
}

func TestRefresh_AfterCancelIsNoop(t *testing.T) {
	resolver := &fakeResolver{targets: dancebox()}
	s, _ := newTestSubscription(resolver, &fakeProber{}, nil, Options{})

	s.Cancel()
	s.Refresh()
	assert.False(t, s.busy.Load())
	assert.Equal(t, 0, resolver.count())
}

func TestTrigger_SkipsWhileBusy(t *testing.T) {
	prober := &fakeProber{gate: make(chan struct{})}
	s, ctx := newTestSubscription(&fakeResolver{targets: dancebox()}, prober, nil, Options{})

	require.True(t, s.trigger(ctx))
	require.Eventually(t, func() bool { return s.Phase() == PhaseProbing }, time.Second, time.Millisecond)
	assert.False(t, s.trigger(ctx))

	close(prober.gate)
	require.Eventually(t, func() bool { return !s.busy.Load() }, time.Second, time.Millisecond)
	assert.True(t, s.trigger(ctx))
	require.Eventually(t, func() bool { return !s.busy.Load() }, time.Second, time.Millisecond)
}

func TestCancel_DropsInFlightResults(t *testing.T) {
	prober := &fakeProber{gate: make(chan struct{})}
	pub := &recorder{}
	s, ctx := newTestSubscription(&fakeResolver{targets: dancebox()}, prober, pub, Options{})

	require.True(t, s.trigger(ctx))
	require.Eventually(t, func() bool { return s.Phase() == PhaseProbing }, time.Second, time.Millisecond)
	published := pub.count()
	before := s.Snapshot()

	s.Cancel()
	s.Cancel()
	close(prober.gate)
	require.Eventually(t, func() bool { return !s.busy.Load() }, time.Second, time.Millisecond)

	after := s.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.True(t, after.InitialLoad)
	assert.Equal(t, published, pub.count())
}

func TestStart_TicksUntilCancelled(t *testing.T) {
	resolver := &fakeResolver{targets: dancebox()}
	pub := &recorder{}
	agg := New(resolver, &fakeProber{}, pub, Options{Interval: 5 * time.Millisecond, RefreshEvery: 1})

	s := agg.Start(context.Background(), "dancebox")
	assert.NotEmpty(t, s.ID)
	require.Eventually(t, func() bool { return resolver.count() >= 3 }, time.Second, time.Millisecond)

	s.Cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("polling loop did not stop")
	}
	require.Eventually(t, func() bool { return !s.busy.Load() }, time.Second, time.Millisecond)

	calls := resolver.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, resolver.count())
}

func TestStart_StopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(&fakeResolver{targets: dancebox()}, &fakeProber{}, nil, Options{Interval: time.Hour}).Start(ctx, "dancebox")

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("polling loop did not stop")
	}
}

func TestOnce(t *testing.T) {
	prober := &fakeProber{failing: map[int]error{3001: errors.New("timeout")}}
	pub := &recorder{}
	snap := New(&fakeResolver{targets: dancebox()}, prober, pub, Options{}).Once(context.Background(), "dancebox")

	assert.Equal(t, "dancebox", snap.Network)
	assert.False(t, snap.InitialLoad)
	require.Len(t, snap.Entries, 3)
	e, _ := snap.Entry(3001)
	assert.Equal(t, store.EntryError, e.State)
	assert.Equal(t, 2, pub.count())
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "resolving", PhaseResolving.String())
	assert.Equal(t, "probing", PhaseProbing.String())
}
