package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TanssiDashboard/internal/chain"
	"TanssiDashboard/internal/chain/chaintest"
	"TanssiDashboard/internal/config"
	"TanssiDashboard/internal/models"
)

const (
	primary   = "wss://dancebox.tanssi-api.network"
	backup    = "wss://dancebox-backup.tanssi-api.network"
	secondary = "wss://relay-directory.example"
)

func testNetworks() map[string]config.Network {
	return map[string]config.Network{
		"dancebox": {
			Title:             "Tanssi Dancebox",
			Directories:       []string{primary, backup},
			OrchestratorLabel: "Orchestrator",
			AppchainURL:       "wss://fraa-{network}-{id}-rpc.a.dancebox.tanssi.network",
			AppchainLabel:     "Appchain",
			Appchains: []config.AppchainRange{
				{Min: 2000, Max: 2999, Label: "Appchain"},
				{Min: 3000, Max: 3999, Label: "EVM appchain"},
			},
			ExplorerURL: "https://polkadot.js.org/apps/?rpc={url}",
		},
	}
}

func danceboxDirectory(now time.Time) *chaintest.Node {
	return chaintest.NewOrchestrator(1000,
		[]chain.AccountID{chaintest.Account(1), chaintest.Account(2)},
		map[uint32][]chain.AccountID{
			3001: {chaintest.Account(3)},
			3000: {chaintest.Account(4), chaintest.Account(5)},
		}, now)
}

func ids(targets []models.ChainTarget) []int {
	out := make([]int, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.ID)
	}
	return out
}

func TestResolve_Dancebox(t *testing.T) {
	connector := chaintest.NewFakeConnector()
	connector.Add(primary, danceboxDirectory(time.Now()))
	r := New(testNetworks(), connector, time.Second, 2)

	targets, err := r.Resolve(context.Background(), "Dancebox")
	require.NoError(t, err)
	assert.Equal(t, []int{1000, 3000, 3001}, ids(targets))

	orchestrator := targets[0]
	assert.Equal(t, models.KindOrchestrator, orchestrator.Kind)
	assert.Equal(t, primary, orchestrator.URL)
	assert.Equal(t, "Orchestrator", orchestrator.Label)
	assert.Equal(t, "https://polkadot.js.org/apps/?rpc="+primary, orchestrator.ExplorerURL)

	evm := targets[1]
	assert.Equal(t, models.KindAppchain, evm.Kind)
	assert.Equal(t, "wss://fraa-dancebox-3000-rpc.a.dancebox.tanssi.network", evm.URL)
	assert.Equal(t, "EVM appchain", evm.Label)

	assert.Zero(t, connector.OpenConns())
}

func TestResolve_Idempotent(t *testing.T) {
	connector := chaintest.NewFakeConnector()
	connector.Add(primary, danceboxDirectory(time.Now()))
	r := New(testNetworks(), connector, time.Second, 2)

	first, err := r.Resolve(context.Background(), "dancebox")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "dancebox")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolve_UnionsSecondaryDirectories(t *testing.T) {
	now := time.Now()
	connector := chaintest.NewFakeConnector()
	connector.Add(primary, danceboxDirectory(now))
	connector.Add(secondary, chaintest.NewOrchestrator(2000, nil, map[uint32][]chain.AccountID{
		3001: {chaintest.Account(9)},
		2002: {chaintest.Account(8)},
		2001: nil,
	}, now))

	networks := testNetworks()
	n := networks["dancebox"]
	n.SecondaryDirectories = []string{secondary}
	networks["dancebox"] = n

	targets, err := New(networks, connector, time.Second, 2).Resolve(context.Background(), "dancebox")
	require.NoError(t, err)
	// the secondary directory's own id is not monitored
	assert.Equal(t, []int{1000, 2001, 2002, 3000, 3001}, ids(targets))
	assert.Equal(t, "Appchain", targets[1].Label)
	assert.Zero(t, connector.OpenConns())
}

func TestResolve_UnknownNetwork(t *testing.T) {
	r := New(testNetworks(), chaintest.NewFakeConnector(), time.Second, 2)

	_, err := r.Resolve(context.Background(), "mainnet")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNetwork)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "mainnet", resErr.Network)
}

func TestResolve_TimeoutIsResolutionError(t *testing.T) {
	node := danceboxDirectory(time.Now())
	node.Hang = true
	connector := chaintest.NewFakeConnector()
	connector.Add(primary, node)
	r := New(testNetworks(), connector, 20*time.Millisecond, 2)

	_, err := r.Resolve(context.Background(), "dancebox")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, primary, resErr.Endpoint)
	assert.Zero(t, connector.OpenConns())
}

func TestResolve_MalformedAssignment(t *testing.T) {
	node := danceboxDirectory(time.Now())
	node.Storage[chain.StorageKey("CollatorAssignment", "CollatorContainerChain")] = []byte{0x08, 0x01}
	connector := chaintest.NewFakeConnector()
	connector.Add(primary, node)

	_, err := New(testNetworks(), connector, time.Second, 2).Resolve(context.Background(), "dancebox")
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Zero(t, connector.OpenConns())
}

func TestResolve_FailsOverAfterThreshold(t *testing.T) {
	connector := chaintest.NewFakeConnector()
	connector.FailDial(primary, errors.New("connection refused"))
	connector.Add(backup, danceboxDirectory(time.Now()))
	r := New(testNetworks(), connector, time.Second, 2)

	for i := 0; i < 2; i++ {
		_, err := r.Resolve(context.Background(), "dancebox")
		require.Error(t, err)
	}

	targets, err := r.Resolve(context.Background(), "dancebox")
	require.NoError(t, err)
	assert.Equal(t, backup, targets[0].URL)
}

func TestResolve_TeardownErrorIsIgnored(t *testing.T) {
	connector := chaintest.NewFakeConnector()
	connector.Add(primary, danceboxDirectory(time.Now()))
	connector.FailClose(primary, &chain.TeardownError{Endpoint: primary, Err: errors.New("broken pipe")})

	targets, err := New(testNetworks(), connector, time.Second, 2).Resolve(context.Background(), "dancebox")
	require.NoError(t, err)
	assert.Len(t, targets, 3)
}

func TestTargetFor(t *testing.T) {
	net := testNetworks()["dancebox"]
	net.OrchestratorURL = "https://rpc.{network}.example/"
	net.Appchains = append(net.Appchains, config.AppchainRange{Min: 2500, Max: 2500, URL: "ws://127.0.0.1:{id}"})

	cases := []struct {
		name  string
		id    int
		url   string
		kind  models.ChainKind
		label string
	}{
		{"pinned orchestrator", 1000, "wss://rpc.dancebox.example", models.KindOrchestrator, "Orchestrator"},
		{"appchain range", 2001, "wss://fraa-dancebox-2001-rpc.a.dancebox.tanssi.network", models.KindAppchain, "Appchain"},
		{"evm range", 3500, "wss://fraa-dancebox-3500-rpc.a.dancebox.tanssi.network", models.KindAppchain, "EVM appchain"},
		{"first range wins", 2500, "wss://fraa-dancebox-2500-rpc.a.dancebox.tanssi.network", models.KindAppchain, "Appchain"},
		{"outside every range", 4100, "wss://fraa-dancebox-4100-rpc.a.dancebox.tanssi.network", models.KindAppchain, "Appchain"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := TargetFor("dancebox", net, primary, tc.id, 1000)
			assert.Equal(t, tc.id, target.ID)
			assert.Equal(t, tc.url, target.URL)
			assert.Equal(t, tc.kind, target.Kind)
			assert.Equal(t, tc.label, target.Label)
		})
	}
}

func TestTargetFor_RangeURLOverride(t *testing.T) {
	net := testNetworks()["dancebox"]
	net.Appchains = []config.AppchainRange{{Min: 2000, Max: 2999, URL: "http://127.0.0.1:{id}"}}

	target := TargetFor("local", net, primary, 2042, 1000)
	assert.Equal(t, "ws://127.0.0.1:2042", target.URL)
	assert.Equal(t, "Appchain", target.Label)
	assert.Equal(t, "https://polkadot.js.org/apps/?rpc=ws://127.0.0.1:2042", target.ExplorerURL)
}
