// Package display turns status table snapshots into rows for the html page,
// the json api and the terminal.
package display

import (
	"fmt"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"TanssiDashboard/internal/models"
	"TanssiDashboard/internal/store"
)

const (
	Placeholder = "--"
	Loading     = "Loading…"
	SymbolOK    = "✔️"
	SymbolFail  = "❌"
)

// Row is one rendered table line. Every field is display ready.
type Row struct {
	ID          int      `json:"id"`
	Label       string   `json:"label"`
	Kind        string   `json:"kind"`
	URL         string   `json:"url"`
	ExplorerURL string   `json:"explorer_url,omitempty"`
	State       string   `json:"state"`
	Status      string   `json:"status"`
	Peers       string   `json:"peers"`
	IsEVM       string   `json:"is_evm"`
	EVMChainID  string   `json:"evm_chain_id"`
	Token       string   `json:"token"`
	Collators   string   `json:"collators"`
	LastBlock   string   `json:"last_block"`
	BlockNumber string   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	Error       string   `json:"error,omitempty"`
	Updated     string   `json:"updated"`
	Addresses   []string `json:"addresses,omitempty"`
}

type View struct {
	Network     string    `json:"network"`
	Title       string    `json:"title"`
	Error       string    `json:"error,omitempty"`
	InitialLoad bool      `json:"initial_load"`
	Version     uint64    `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
	Rows        []Row     `json:"rows"`
}

// Renderer is stateless apart from its settings.
type Renderer struct {
	// BlockTimeOffset is subtracted from the age of the latest block.
	BlockTimeOffset time.Duration
	Titles          map[string]string
	Now             func() time.Time
}

func (r Renderer) Render(snap store.Snapshot) View {
	now := r.now()
	view := View{
		Network:     snap.Network,
		Title:       r.Title(snap.Network),
		Error:       snap.Error,
		InitialLoad: snap.InitialLoad,
		Version:     snap.Version,
		GeneratedAt: snap.GeneratedAt,
		Rows:        make([]Row, 0, len(snap.Entries)),
	}
	for _, e := range snap.Entries {
		view.Rows = append(view.Rows, r.Row(e, now))
	}
	return view
}

// RenderEntry renders a single entry at the current time.
func (r Renderer) RenderEntry(e store.Entry) Row {
	return r.Row(e, r.now())
}

func (r Renderer) Row(e store.Entry, now time.Time) Row {
	row := Row{
		ID:          e.Target.ID,
		Label:       e.Target.Label,
		Kind:        string(e.Target.Kind),
		URL:         e.Target.URL,
		ExplorerURL: e.Target.ExplorerURL,
		State:       string(e.State),
		Updated:     updatedLabel(e.UpdatedAt, now),
	}

	switch {
	case e.State == store.EntryPending:
		row.fill(Loading)
		return row
	case e.State == store.EntryError || e.Status == nil:
		row.fill(Placeholder)
		row.Status = SymbolFail
		row.Error = e.Err
		return row
	}

	s := e.Status
	row.Status = SymbolOK
	if !s.Healthy {
		row.Status = SymbolFail
	}
	row.Peers = strconv.Itoa(s.Peers)
	row.IsEVM = SymbolFail
	row.EVMChainID = Placeholder
	if s.IsEVM {
		row.IsEVM = SymbolOK
		if s.EVMChainID != nil {
			row.EVMChainID = *s.EVMChainID
		}
	}
	row.Token = tokenLabel(s)
	row.Collators = strconv.Itoa(s.CollatorCount)
	row.Addresses = s.Collators
	row.LastBlock = fmt.Sprintf("%ds ago", s.SecondsSinceBlock(now, r.BlockTimeOffset))
	row.BlockNumber = strconv.FormatUint(s.BlockNumber, 10)
	row.BlockHash = s.BlockHash
	return row
}

// Title is the page heading for a network.
func (r Renderer) Title(network string) string {
	if t, ok := r.Titles[network]; ok && t != "" && t != network {
		return t + " Dashboard"
	}
	if network == "" {
		return "Tanssi Dashboard"
	}
	first, size := utf8.DecodeRuneInString(network)
	return "Tanssi " + string(unicode.ToUpper(first)) + network[size:] + " Dashboard"
}

func (r Renderer) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (row *Row) fill(v string) {
	row.Status = v
	row.Peers = v
	row.IsEVM = v
	row.EVMChainID = v
	row.Token = v
	row.Collators = v
	row.LastBlock = v
	row.BlockNumber = v
	row.BlockHash = v
}

// updatedLabel tells how long ago the row last changed state.
func updatedLabel(at, now time.Time) string {
	if at.IsZero() {
		return Placeholder
	}
	return humanize.RelTime(at, now, "ago", "from now")
}

func tokenLabel(s *models.ChainStatus) string {
	if s.TokenSymbol == "" {
		return Placeholder
	}
	return fmt.Sprintf("%s (%d)", s.TokenSymbol, s.TokenDecimals)
}
