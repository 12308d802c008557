package aggregator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"TanssiDashboard/internal/log"
	"TanssiDashboard/internal/models"
	"TanssiDashboard/internal/store"
)

type Resolver interface {
	Resolve(ctx context.Context, network string) ([]models.ChainTarget, error)
}

type Prober interface {
	Probe(ctx context.Context, target models.ChainTarget) (*models.ChainStatus, error)
}

// Publisher receives a snapshot after every change to a subscription's
// table.
type Publisher interface {
	Publish(snap store.Snapshot)
}

type PublisherFunc func(snap store.Snapshot)

func (f PublisherFunc) Publish(snap store.Snapshot) { f(snap) }

type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseResolving
	PhaseProbing
)

func (p Phase) String() string {
	switch p {
	case PhaseResolving:
		return "resolving"
	case PhaseProbing:
		return "probing"
	}
	return "idle"
}

type Options struct {
	Interval time.Duration
	// RefreshEvery is the number of ticks between target list refreshes.
	// Zero resolves only when the subscription starts, on Refresh, or after
	// a failed resolution.
	RefreshEvery int
	MaxParallel  int
}

type Aggregator struct {
	Resolver  Resolver
	Prober    Prober
	Publisher Publisher
	Options   Options
}

func New(resolver Resolver, prober Prober, publisher Publisher, opts Options) *Aggregator {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.RefreshEvery < 0 {
		opts.RefreshEvery = 0
	}
	return &Aggregator{Resolver: resolver, Prober: prober, Publisher: publisher, Options: opts}
}

// Start begins polling network until the returned subscription is cancelled
// or ctx is done. The first tick runs immediately.
func (a *Aggregator) Start(ctx context.Context, network string) *Subscription {
	s, ctx := a.subscribe(ctx, network)
	go s.run(ctx)
	return s
}

// Once runs a single tick for network and returns the resulting snapshot.
func (a *Aggregator) Once(ctx context.Context, network string) store.Snapshot {
	s, ctx := a.subscribe(ctx, network)
	defer s.Cancel()
	s.tick(ctx)
	return s.Snapshot()
}

func (a *Aggregator) subscribe(ctx context.Context, network string) (*Subscription, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		ID:      uuid.NewString(),
		Network: network,
		agg:     a,
		table:   store.New(network),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	return s, ctx
}

// Subscription owns the polling loop and status table of one network.
type Subscription struct {
	ID      string
	Network string

	agg    *Aggregator
	table  *store.StatusTable
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}

	busy    atomic.Bool
	phase   atomic.Int32
	refresh atomic.Bool

	// only touched by the tick holding the busy gate
	targets      []models.ChainTarget
	resolved     bool
	sinceResolve int
	ticks        uint64
}

// Cancel stops future ticks and drops the results of ticks in flight. It
// is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		s.table.Close()
		log.Debug().Str("network", s.Network).Str("subscription", s.ID).Msg("subscription cancelled")
	})
}

// Done is closed once the polling loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Snapshot() store.Snapshot {
	return s.table.Snapshot()
}

func (s *Subscription) Phase() Phase {
	return Phase(s.phase.Load())
}

// InitialLoad reports whether no probe results have been merged yet.
func (s *Subscription) InitialLoad() bool {
	return s.table.Snapshot().InitialLoad
}

// Refresh makes the next tick resolve the target list again, whatever the
// refresh cadence, and starts that tick now unless one is in flight.
func (s *Subscription) Refresh() {
	s.refresh.Store(true)
	if s.ctx.Err() == nil {
		s.trigger(s.ctx)
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer s.Cancel()

	ticker := time.NewTicker(s.agg.Options.Interval)
	defer ticker.Stop()

	for {
		s.trigger(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// trigger starts a tick unless the previous one is still running. A
// Refresh that arrives while a tick runs gets a tick of its own right after.
func (s *Subscription) trigger(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		log.Debug().Str("network", s.Network).Msg("previous tick still in flight, skipping")
		return false
	}
	go func() {
		for {
			s.tick(ctx)
			s.busy.Store(false)
			if !s.refresh.Load() || ctx.Err() != nil || !s.busy.CompareAndSwap(false, true) {
				return
			}
		}
	}()
	return true
}

func (s *Subscription) tick(ctx context.Context) {
	defer s.setPhase(PhaseIdle)
	s.ticks++
	logger := log.Logger.With().Str("network", s.Network).Uint64("tick", s.ticks).Logger()

	if s.resolveDue() {
		s.setPhase(PhaseResolving)
		targets, err := s.agg.Resolver.Resolve(ctx, s.Network)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn().Err(err).Msg("target resolution failed")
			s.resolved = false
			if s.table.SetError(err.Error()) {
				s.publish()
			}
			return
		}
		s.targets = targets
		s.resolved = true
		s.sinceResolve = 0
		s.table.SetTargets(targets)
		s.table.SetError("")
		s.publish()
	}
	s.sinceResolve++

	s.setPhase(PhaseProbing)
	started := time.Now()
	results := s.probeAll(ctx, s.targets)
	if ctx.Err() != nil {
		return
	}
	if !s.table.Apply(results) {
		return
	}
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	logger.Debug().Int("chains", len(results)).Int("failed", failed).Dur("took", time.Since(started)).Msg("tick complete")
	s.publish()
}

func (s *Subscription) resolveDue() bool {
	forced := s.refresh.Swap(false)
	if forced || !s.resolved {
		return true
	}
	every := s.agg.Options.RefreshEvery
	return every > 0 && s.sinceResolve >= every
}

// probeAll waits for every probe to settle. A failed probe only affects
// its own result.
func (s *Subscription) probeAll(ctx context.Context, targets []models.ChainTarget) map[int]store.Result {
	var (
		mu      sync.Mutex
		results = make(map[int]store.Result, len(targets))
	)
	g := new(errgroup.Group)
	if s.agg.Options.MaxParallel > 0 {
		g.SetLimit(s.agg.Options.MaxParallel)
	}
	for _, target := range targets {
		target := target
		g.Go(func() error {
			status, err := s.agg.Prober.Probe(ctx, target)
			if err != nil {
				log.Debug().Err(err).Str("network", s.Network).Int("chain_id", target.ID).Msg("probe failed")
			}
			mu.Lock()
			results[target.ID] = store.Result{Status: status, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Subscription) publish() {
	if s.agg.Publisher == nil || s.table.Closed() {
		return
	}
	s.agg.Publisher.Publish(s.table.Snapshot())
}

func (s *Subscription) setPhase(p Phase) {
	s.phase.Store(int32(p))
}
