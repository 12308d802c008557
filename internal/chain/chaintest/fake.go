// Package chaintest provides in-memory test doubles for the chain package.
package chaintest

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"TanssiDashboard/internal/chain"
)

// Node is the canned state a fake connection answers from.
type Node struct {
	Health       chain.Health
	Properties   map[string]any
	BlockHash    string
	HeaderNumber uint64
	EVMChainID   string
	Storage      map[string][]byte

	// Errors makes a method fail with the given error.
	Errors map[string]error
	// Hang makes every call block until its context is done.
	Hang bool
	// Delay is applied before every call is answered.
	Delay time.Duration
}

// NewOrchestrator returns a healthy orchestrator node with the given
// parachain id and collator assignment.
func NewOrchestrator(paraID uint32, orchestrator []chain.AccountID, containers map[uint32][]chain.AccountID, now time.Time) *Node {
	n := newNode(now)
	n.Storage[chain.StorageKey("ParachainInfo", "ParachainId")] = EncodeU32(paraID)
	n.Storage[chain.StorageKey("CollatorAssignment", "CollatorContainerChain")] = EncodeAssignedCollators(orchestrator, containers)
	return n
}

// NewAppchain returns a healthy appchain node noting the given authorities.
func NewAppchain(authorities []chain.AccountID, now time.Time) *Node {
	n := newNode(now)
	n.Storage[chain.StorageKey("AuthoritiesNoting", "Authorities")] = EncodeAccounts(authorities)
	return n
}

func newNode(now time.Time) *Node {
	return &Node{
		Health:       chain.Health{Peers: 3},
		Properties:   map[string]any{"ss58Format": 42, "tokenDecimals": 12, "tokenSymbol": "DANCE"},
		BlockHash:    "0x" + hex.EncodeToString(make([]byte, 32)),
		HeaderNumber: 1234,
		Storage: map[string][]byte{
			chain.StorageKey("Timestamp", "Now"): EncodeU64(uint64(now.UnixMilli())),
		},
		Errors: map[string]error{},
	}
}

// SetEVM marks the node as a Frontier chain answering eth_chainId.
func (n *Node) SetEVM(chainID uint64) {
	n.Properties["isEthereum"] = true
	n.EVMChainID = fmt.Sprintf("0x%x", chainID)
}

// FakeConn answers calls from a Node.
type FakeConn struct {
	Endpoint string
	CloseErr error

	node   *Node
	mu     sync.Mutex
	closed bool
	calls  []string
}

func (c *FakeConn) Call(ctx context.Context, method string, params []any, out any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return chain.ErrClosed
	}
	c.calls = append(c.calls, method)
	c.mu.Unlock()

	if c.node.Hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.node.Delay > 0 {
		select {
		case <-time.After(c.node.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := c.node.Errors[method]; err != nil {
		return err
	}

	var result any
	switch method {
	case "system_health":
		result = c.node.Health
	case "system_properties":
		result = c.node.Properties
	case "chain_getBlockHash":
		result = c.node.BlockHash
	case "chain_getHeader":
		result = map[string]any{"number": fmt.Sprintf("0x%x", c.node.HeaderNumber), "parentHash": "0x00"}
	case "eth_chainId":
		if c.node.EVMChainID == "" {
			return &chain.RPCError{Code: -32601, Message: "Method not found"}
		}
		result = c.node.EVMChainID
	case "state_getStorage":
		key, _ := params[0].(string)
		if v, ok := c.node.Storage[key]; ok {
			result = "0x" + hex.EncodeToString(v)
		}
	default:
		return &chain.RPCError{Code: -32601, Message: "Method not found"}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.CloseErr
}

func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeConn) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// FakeConnector hands out FakeConns for registered endpoints.
type FakeConnector struct {
	mu       sync.Mutex
	nodes    map[string]*Node
	dialErrs map[string]error
	closeErr map[string]error
	conns    []*FakeConn
}

func NewFakeConnector() *FakeConnector {
	return &FakeConnector{
		nodes:    map[string]*Node{},
		dialErrs: map[string]error{},
		closeErr: map[string]error{},
	}
}

func (f *FakeConnector) Add(endpoint string, node *Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[endpoint] = node
}

func (f *FakeConnector) Node(endpoint string) *Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[endpoint]
}

// FailDial makes Connect to endpoint return err.
func (f *FakeConnector) FailDial(endpoint string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialErrs[endpoint] = err
}

// FailClose makes connections to endpoint report err from Close.
func (f *FakeConnector) FailClose(endpoint string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeErr[endpoint] = err
}

func (f *FakeConnector) Connect(ctx context.Context, endpoint string) (chain.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.dialErrs[endpoint]; err != nil {
		return nil, err
	}
	node, ok := f.nodes[endpoint]
	if !ok {
		return nil, fmt.Errorf("dial %s: connection refused", endpoint)
	}
	conn := &FakeConn{Endpoint: endpoint, node: node, CloseErr: f.closeErr[endpoint]}
	f.conns = append(f.conns, conn)
	return conn, nil
}

// Conns returns every connection handed out so far.
func (f *FakeConnector) Conns() []*FakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeConn(nil), f.conns...)
}

// OpenConns counts connections that were never closed.
func (f *FakeConnector) OpenConns() int {
	open := 0
	for _, c := range f.Conns() {
		if !c.Closed() {
			open++
		}
	}
	return open
}

// Account builds a deterministic account id filled with b.
func Account(b byte) chain.AccountID {
	var id chain.AccountID
	for i := range id {
		id[i] = b
	}
	return id
}

// SCALE encoders

func EncodeU32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func EncodeU64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

func EncodeCompact(v uint64) []byte {
	switch {
	case v < 1<<6:
		return []byte{byte(v << 2)}
	case v < 1<<14:
		return binary.LittleEndian.AppendUint16(nil, uint16(v<<2|0b01))
	case v < 1<<30:
		return binary.LittleEndian.AppendUint32(nil, uint32(v<<2|0b10))
	}
	b := binary.LittleEndian.AppendUint64(nil, v)
	n := len(b)
	for n > 4 && b[n-1] == 0 {
		n--
	}
	return append([]byte{byte((n-4)<<2 | 0b11)}, b[:n]...)
}

func EncodeAccounts(ids []chain.AccountID) []byte {
	out := EncodeCompact(uint64(len(ids)))
	for _, id := range ids {
		out = append(out, id[:]...)
	}
	return out
}

func EncodeAssignedCollators(orchestrator []chain.AccountID, containers map[uint32][]chain.AccountID) []byte {
	out := EncodeAccounts(orchestrator)
	keys := make([]uint32, 0, len(containers))
	for k := range containers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out = append(out, EncodeCompact(uint64(len(keys)))...)
	for _, k := range keys {
		out = append(out, EncodeU32(k)...)
		out = append(out, EncodeAccounts(containers[k])...)
	}
	return out
}
