package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"TanssiDashboard/internal/aggregator"
	"TanssiDashboard/internal/display"
	"TanssiDashboard/internal/log"
	"TanssiDashboard/internal/store"
)

var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrChainNotFound  = errors.New("chain not found")
	ErrClosed         = errors.New("dashboard closed")
)

const UnsupportedNetworkMessage = "Only configured networks are supported"

type Network struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Default bool   `json:"default"`
}

// Dashboard starts one subscription per network on first use and serves
// rendered snapshots of it.
type Dashboard struct {
	Aggregator *aggregator.Aggregator
	Renderer   display.Renderer

	networks []Network
	fallback string

	mu      sync.Mutex
	ctx     context.Context
	subs    map[string]*aggregator.Subscription
	viewers map[string]int
	closed  bool
}

// NewDashboard takes the networks in display order; the first one is the
// default.
func NewDashboard(ctx context.Context, agg *aggregator.Aggregator, renderer display.Renderer, networks []Network) *Dashboard {
	d := &Dashboard{
		Aggregator: agg,
		Renderer:   renderer,
		ctx:        ctx,
		subs:       map[string]*aggregator.Subscription{},
		viewers:    map[string]int{},
	}
	for i, n := range networks {
		n.Name = strings.ToLower(strings.TrimSpace(n.Name))
		n.Default = i == 0
		if n.Title == "" {
			n.Title = n.Name
		}
		d.networks = append(d.networks, n)
	}
	if len(d.networks) > 0 {
		d.fallback = d.networks[0].Name
	}
	return d
}

func (d *Dashboard) Networks() []Network {
	return append([]Network(nil), d.networks...)
}

// Canonical maps a user supplied network name onto a configured one. An
// empty name selects the default network.
func (d *Dashboard) Canonical(network string) (string, error) {
	network = strings.ToLower(strings.TrimSpace(network))
	if network == "" {
		network = d.fallback
	}
	for _, n := range d.networks {
		if n.Name == network {
			return network, nil
		}
	}
	return "", ErrUnknownNetwork
}

// Ensure returns the running subscription for network, starting it if
// needed.
func (d *Dashboard) Ensure(network string) (*aggregator.Subscription, error) {
	name, err := d.Canonical(network)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if sub, ok := d.subs[name]; ok {
		return sub, nil
	}
	sub := d.Aggregator.Start(d.ctx, name)
	d.subs[name] = sub
	return sub, nil
}

// Acquire registers a viewer switching to network and returns its current
// snapshot. A subscription that is already running resolves its target list
// again.
func (d *Dashboard) Acquire(network string) (store.Snapshot, error) {
	name, err := d.Canonical(network)
	if err != nil {
		return store.Snapshot{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.Snapshot{}, ErrClosed
	}
	sub, ok := d.subs[name]
	if ok {
		sub.Refresh()
	} else {
		sub = d.Aggregator.Start(d.ctx, name)
		d.subs[name] = sub
	}
	d.viewers[name]++
	return sub.Snapshot(), nil
}

// Release drops a viewer of network. The last viewer leaving stops the
// network's subscription.
func (d *Dashboard) Release(network string) {
	network = strings.ToLower(strings.TrimSpace(network))
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.viewers[network] == 0 {
		return
	}
	d.viewers[network]--
	if d.viewers[network] > 0 {
		return
	}
	delete(d.viewers, network)
	if sub, ok := d.subs[network]; ok {
		sub.Cancel()
		delete(d.subs, network)
		log.Debug().Str("network", network).Msg("last viewer left, subscription stopped")
	}
}

// Viewers counts the registered viewers of network.
func (d *Dashboard) Viewers(network string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewers[network]
}

func (d *Dashboard) Snapshot(network string) (store.Snapshot, error) {
	sub, err := d.Ensure(network)
	if err != nil {
		return store.Snapshot{}, err
	}
	return sub.Snapshot(), nil
}

func (d *Dashboard) View(network string) (display.View, error) {
	snap, err := d.Snapshot(network)
	if err != nil {
		return display.View{}, err
	}
	return d.Renderer.Render(snap), nil
}

// Chain returns the rendered row of one chain.
func (d *Dashboard) Chain(network string, id int) (display.Row, error) {
	snap, err := d.Snapshot(network)
	if err != nil {
		return display.Row{}, err
	}
	entry, ok := snap.Entry(id)
	if !ok {
		return display.Row{}, ErrChainNotFound
	}
	return d.Renderer.RenderEntry(entry), nil
}

// Page builds the html page data. For unknown networks the page carries a
// message instead of a table and the error is returned as well.
func (d *Dashboard) Page(network string) (display.Page, error) {
	page := display.Page{}
	view, err := d.View(network)
	selected := view.Network
	if err != nil {
		page.Message = err.Error()
		if errors.Is(err, ErrUnknownNetwork) {
			page.Message = UnsupportedNetworkMessage
		}
		selected = d.fallback
	}
	page.View = view
	for _, n := range d.networks {
		page.Networks = append(page.Networks, display.NetworkOption{Name: n.Name, Title: n.Title, Selected: n.Name == selected})
	}
	return page, err
}

// Encode renders a snapshot as the json pushed to websocket clients.
func (d *Dashboard) Encode(snap store.Snapshot) ([]byte, error) {
	return json.Marshal(d.Renderer.Render(snap))
}

// Watching lists the networks with a running subscription.
func (d *Dashboard) Watching() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.subs))
	for _, n := range d.networks {
		if _, ok := d.subs[n.Name]; ok {
			out = append(out, n.Name)
		}
	}
	return out
}

func (d *Dashboard) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for name, sub := range d.subs {
		sub.Cancel()
		delete(d.subs, name)
	}
	clear(d.viewers)
}
