package prober

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"TanssiDashboard/internal/chain"
	"TanssiDashboard/internal/log"
	"TanssiDashboard/internal/models"
)

// ProbeError reports which step of a probe failed.
type ProbeError struct {
	ChainID int
	URL     string
	Op      string
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %d (%s) %s: %v", e.ChainID, e.URL, e.Op, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

type Prober struct {
	Connector chain.Connector
	Timeout   time.Duration
	Now       func() time.Time
}

func New(connector chain.Connector, timeout time.Duration) *Prober {
	return &Prober{Connector: connector, Timeout: timeout, Now: time.Now}
}

// Probe opens a connection to target, runs the status queries concurrently
// and closes the connection again on every path.
func (p *Prober) Probe(ctx context.Context, target models.ChainTarget) (*models.ChainStatus, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	started := p.now()

	conn, err := p.Connector.Connect(ctx, target.URL)
	if err != nil {
		return nil, p.fail(target, "connect", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Int("chain_id", target.ID).Str("url", target.URL).Msg("probe connection teardown failed")
		}
	}()

	api := chain.API{Conn: conn}
	var (
		health     chain.Health
		props      chain.Properties
		collators  []chain.AccountID
		onChain    time.Time
		header     chain.Header
		blockHash  string
		evmChainID *string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if health, err = api.Health(gctx); err != nil {
			return p.fail(target, "system_health", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if props, err = api.Properties(gctx); err != nil {
			return p.fail(target, "system_properties", err)
		}
		if !props.IsEthereum {
			return nil
		}
		id, err := api.EVMChainID(gctx)
		if err != nil {
			return p.fail(target, "eth_chainId", err)
		}
		evmChainID = &id
		return nil
	})
	g.Go(func() error {
		var err error
		if collators, err = collatorsFor(gctx, api, target.Kind); err != nil {
			return p.fail(target, "collators", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if onChain, err = api.Timestamp(gctx); err != nil {
			return p.fail(target, "timestamp", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if header, err = api.Header(gctx); err != nil {
			return p.fail(target, "chain_getHeader", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if blockHash, err = api.BlockHash(gctx); err != nil {
			return p.fail(target, "chain_getBlockHash", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	observed := p.now()
	return &models.ChainStatus{
		ID:               target.ID,
		Healthy:          health.Peers >= 1,
		Peers:            health.Peers,
		IsSyncing:        health.IsSyncing,
		IsEVM:            props.IsEthereum,
		EVMChainID:       evmChainID,
		TokenSymbol:      props.TokenSymbol,
		TokenDecimals:    props.TokenDecimals,
		CollatorCount:    len(collators),
		Collators:        chain.EncodeAddresses(collators, props.SS58Format),
		BlockNumber:      header.Number,
		BlockHash:        blockHash,
		ObservedAt:       observed,
		OnChainTimestamp: onChain,
		ProbeDuration:    observed.Sub(started),
	}, nil
}

// collatorsFor reads the orchestrator's own collators from the assignment,
// or the authorities an appchain noted.
func collatorsFor(ctx context.Context, api chain.API, kind models.ChainKind) ([]chain.AccountID, error) {
	if kind == models.KindOrchestrator {
		assigned, err := api.CollatorAssignment(ctx)
		if err != nil {
			return nil, err
		}
		return assigned.OrchestratorChain, nil
	}
	return api.Authorities(ctx)
}

func (p *Prober) fail(target models.ChainTarget, op string, err error) error {
	return &ProbeError{ChainID: target.ID, URL: target.URL, Op: op, Err: err}
}

func (p *Prober) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
