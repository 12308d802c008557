package store

import (
	"sort"
	"sync"
	"time"

	"TanssiDashboard/internal/models"
)

type EntryState string

const (
	EntryPending EntryState = "pending"
	EntryReady   EntryState = "ready"
	EntryError   EntryState = "error"
)

// Entry is one row of the status table. Status is set only when State is
// EntryReady.
type Entry struct {
	Target    models.ChainTarget
	State     EntryState
	Status    *models.ChainStatus
	Err       string
	UpdatedAt time.Time
}

// Result is the settled outcome of one probe.
type Result struct {
	Status *models.ChainStatus
	Err    error
}

// Snapshot is a consistent copy of the table. Entries are sorted by chain id.
type Snapshot struct {
	Network     string
	Entries     []Entry
	Error       string
	InitialLoad bool
	Version     uint64
	GeneratedAt time.Time
}

func (s Snapshot) Entry(id int) (Entry, bool) {
	i := sort.Search(len(s.Entries), func(i int) bool { return s.Entries[i].Target.ID >= id })
	if i < len(s.Entries) && s.Entries[i].Target.ID == id {
		return s.Entries[i], true
	}
	return Entry{}, false
}

// StatusTable holds the latest known state per chain id for one network.
// Once closed, every mutation is dropped.
type StatusTable struct {
	mu          sync.RWMutex
	network     string
	entries     map[int]Entry
	errMsg      string
	initialLoad bool
	version     uint64
	closed      bool
	now         func() time.Time
}

func New(network string) *StatusTable {
	return &StatusTable{
		network:     network,
		entries:     map[int]Entry{},
		initialLoad: true,
		now:         time.Now,
	}
}

// SetTargets replaces the tracked chain set. Known ids keep their last
// status, new ids start pending and ids no longer listed are dropped.
func (t *StatusTable) SetTargets(targets []models.ChainTarget) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	now := t.now()
	next := make(map[int]Entry, len(targets))
	for _, target := range targets {
		entry, ok := t.entries[target.ID]
		if !ok {
			entry = Entry{State: EntryPending, UpdatedAt: now}
		}
		entry.Target = target
		next[target.ID] = entry
	}
	t.entries = next
	t.version++
	return true
}

// Apply merges one tick of probe results. Every result is applied on its
// own; ids that are not tracked are ignored.
func (t *StatusTable) Apply(results map[int]Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	now := t.now()
	for id, res := range results {
		entry, ok := t.entries[id]
		if !ok {
			continue
		}
		entry.UpdatedAt = now
		if res.Err != nil || res.Status == nil {
			entry.State = EntryError
			entry.Status = nil
			entry.Err = errString(res.Err)
		} else {
			entry.State = EntryReady
			entry.Status = res.Status
			entry.Err = ""
		}
		t.entries[id] = entry
	}
	t.initialLoad = false
	t.version++
	return true
}

// SetError sets the banner message; an empty message clears it.
func (t *StatusTable) SetError(msg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if t.errMsg != msg {
		t.errMsg = msg
		t.version++
	}
	return true
}

func (t *StatusTable) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Target.ID < entries[j].Target.ID })
	return Snapshot{
		Network:     t.network,
		Entries:     entries,
		Error:       t.errMsg,
		InitialLoad: t.initialLoad,
		Version:     t.version,
		GeneratedAt: t.now(),
	}
}

func (t *StatusTable) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *StatusTable) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func errString(err error) string {
	if err == nil {
		return "no status returned"
	}
	return err.Error()
}
