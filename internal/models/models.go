package models

import "time"

type ChainKind string

const (
	KindOrchestrator ChainKind = "orchestrator"
	KindAppchain     ChainKind = "appchain"
)

// ChainTarget is one monitored chain endpoint.
type ChainTarget struct {
	ID          int
	URL         string
	Kind        ChainKind
	Label       string
	ExplorerURL string
}

// ChainStatus is the outcome of one successful probe. It is never
// modified after the prober returns it.
type ChainStatus struct {
	ID               int
	Healthy          bool
	Peers            int
	IsSyncing        bool
	IsEVM            bool
	EVMChainID       *string
	TokenSymbol      string
	TokenDecimals    int
	CollatorCount    int
	Collators        []string
	BlockNumber      uint64
	BlockHash        string
	ObservedAt       time.Time
	OnChainTimestamp time.Time
	ProbeDuration    time.Duration
}

// SecondsSinceBlock approximates the age of the latest block. The offset
// accounts for the expected block time, so the result may be negative.
func (s *ChainStatus) SecondsSinceBlock(now time.Time, offset time.Duration) int64 {
	return (now.UnixMilli()-s.OnChainTimestamp.UnixMilli())/1000 - int64(offset/time.Second)
}
