package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"TanssiDashboard/internal/chain"
	"TanssiDashboard/internal/config"
	"TanssiDashboard/internal/log"
	"TanssiDashboard/internal/models"
)

var ErrUnknownNetwork = errors.New("unknown network")

// ResolutionError reports a failed target list lookup.
type ResolutionError struct {
	Network  string
	Endpoint string
	Err      error
}

func (e *ResolutionError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("resolve %s: %v", e.Network, e.Err)
	}
	return fmt.Sprintf("resolve %s via %s: %v", e.Network, e.Endpoint, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolver turns a network name into the chains to monitor by asking the
// network's directory chain which appchains currently have collators.
type Resolver struct {
	Networks          map[string]config.Network
	Connector         chain.Connector
	Timeout           time.Duration
	FailoverThreshold int

	mu        sync.Mutex
	endpoints map[string]*chain.EndpointSet
}

func New(networks map[string]config.Network, connector chain.Connector, timeout time.Duration, failoverThreshold int) *Resolver {
	return &Resolver{
		Networks:          networks,
		Connector:         connector,
		Timeout:           timeout,
		FailoverThreshold: failoverThreshold,
		endpoints:         map[string]*chain.EndpointSet{},
	}
}

func (r *Resolver) Resolve(ctx context.Context, network string) ([]models.ChainTarget, error) {
	network = strings.ToLower(strings.TrimSpace(network))
	net, ok := r.Networks[network]
	if !ok {
		return nil, &ResolutionError{Network: network, Err: ErrUnknownNetwork}
	}
	set, err := r.endpointSet(network, net)
	if err != nil {
		return nil, &ResolutionError{Network: network, Err: err}
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	endpoint := set.Current()
	orchestratorID, ids, err := r.queryDirectory(ctx, endpoint, true)
	if err != nil {
		if set.Failure(endpoint) {
			log.Warn().Str("network", network).Str("from", endpoint).Str("to", set.Current()).Msg("directory endpoint rotated")
		}
		return nil, &ResolutionError{Network: network, Endpoint: endpoint, Err: err}
	}
	set.Success(endpoint)

	for _, secondary := range net.SecondaryDirectories {
		secondary = chain.NormalizeWSEndpoint(secondary)
		_, more, err := r.queryDirectory(ctx, secondary, false)
		if err != nil {
			return nil, &ResolutionError{Network: network, Endpoint: secondary, Err: err}
		}
		ids = append(ids, more...)
	}

	ids = uniqueSorted(append(ids, orchestratorID))
	targets := make([]models.ChainTarget, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, TargetFor(network, net, endpoint, id, orchestratorID))
	}
	return targets, nil
}

// queryDirectory reads the assigned appchain ids, and the directory's own
// parachain id when withSelf is set.
func (r *Resolver) queryDirectory(ctx context.Context, endpoint string, withSelf bool) (int, []int, error) {
	conn, err := r.Connector.Connect(ctx, endpoint)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Str("url", endpoint).Msg("directory connection teardown failed")
		}
	}()

	api := chain.API{Conn: conn}
	var (
		selfID   uint32
		assigned *chain.AssignedCollators
	)
	g, gctx := errgroup.WithContext(ctx)
	if withSelf {
		g.Go(func() error {
			id, err := api.ParachainID(gctx)
			selfID = id
			return err
		})
	}
	g.Go(func() error {
		a, err := api.CollatorAssignment(gctx)
		assigned = a
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	containers := assigned.ContainerChainIDs()
	ids := make([]int, 0, len(containers))
	for _, id := range containers {
		ids = append(ids, int(id))
	}
	return int(selfID), ids, nil
}

func (r *Resolver) endpointSet(name string, net config.Network) (*chain.EndpointSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endpoints == nil {
		r.endpoints = map[string]*chain.EndpointSet{}
	}
	if set, ok := r.endpoints[name]; ok {
		return set, nil
	}
	set, err := chain.NewEndpointSet(net.Directories, r.FailoverThreshold)
	if err != nil {
		return nil, err
	}
	r.endpoints[name] = set
	return set, nil
}

// TargetFor maps a chain id onto its RPC url, kind and label. The
// orchestrator is reached through its directory endpoint unless the
// network pins an orchestrator url.
func TargetFor(name string, net config.Network, directory string, id, orchestratorID int) models.ChainTarget {
	target := models.ChainTarget{ID: id}
	if id == orchestratorID {
		target.Kind = models.KindOrchestrator
		target.Label = net.OrchestratorLabel
		target.URL = directory
		if net.OrchestratorURL != "" {
			target.URL = expand(net.OrchestratorURL, name, id)
		}
	} else {
		target.Kind = models.KindAppchain
		target.Label = net.AppchainLabel
		target.URL = expand(net.AppchainURL, name, id)
		for _, r := range net.Appchains {
			if !r.Contains(id) {
				continue
			}
			if r.URL != "" {
				target.URL = expand(r.URL, name, id)
			}
			if r.Label != "" {
				target.Label = r.Label
			}
			break
		}
	}
	target.URL = chain.NormalizeWSEndpoint(target.URL)
	if net.ExplorerURL != "" {
		target.ExplorerURL = strings.ReplaceAll(net.ExplorerURL, "{url}", target.URL)
	}
	return target
}

func expand(tmpl, network string, id int) string {
	return strings.NewReplacer("{id}", strconv.Itoa(id), "{network}", network).Replace(tmpl)
}

func uniqueSorted(ids []int) []int {
	sort.Ints(ids)
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if len(out) > 0 && out[len(out)-1] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}
