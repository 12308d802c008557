package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// API exposes the typed status queries used by the dashboard on top of a
// raw connection.
type API struct {
	Conn Conn
}

func (a API) Health(ctx context.Context) (Health, error) {
	var out Health
	err := a.Conn.Call(ctx, "system_health", nil, &out)
	return out, err
}

func (a API) Properties(ctx context.Context) (Properties, error) {
	var raw rawProperties
	if err := a.Conn.Call(ctx, "system_properties", nil, &raw); err != nil {
		return Properties{}, err
	}
	return raw.parse()
}

func (a API) BlockHash(ctx context.Context) (string, error) {
	var out string
	if err := a.Conn.Call(ctx, "chain_getBlockHash", nil, &out); err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("chain_getBlockHash: %w", ErrNoValue)
	}
	return out, nil
}

func (a API) Header(ctx context.Context) (Header, error) {
	var resp headerResponse
	if err := a.Conn.Call(ctx, "chain_getHeader", nil, &resp); err != nil {
		return Header{}, err
	}
	number, err := parseHexUint64(resp.Number)
	if err != nil {
		return Header{}, fmt.Errorf("header number: %w", err)
	}
	return Header{Number: number, ParentHash: resp.ParentHash, StateRoot: resp.StateRoot}, nil
}

// Storage fetches a raw storage value at the latest block.
func (a API) Storage(ctx context.Context, key string) ([]byte, error) {
	var out *string
	if err := a.Conn.Call(ctx, "state_getStorage", []any{key}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNoValue
	}
	return decodeHex(*out)
}

func (a API) Timestamp(ctx context.Context) (time.Time, error) {
	b, err := a.Storage(ctx, keyTimestampNow)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", err)
	}
	ms, err := NewDecoder(b).U64()
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", err)
	}
	return time.UnixMilli(int64(ms)), nil
}

func (a API) ParachainID(ctx context.Context) (uint32, error) {
	b, err := a.Storage(ctx, keyParachainID)
	if err != nil {
		return 0, fmt.Errorf("parachain id: %w", err)
	}
	id, err := NewDecoder(b).U32()
	if err != nil {
		return 0, fmt.Errorf("parachain id: %w", err)
	}
	return id, nil
}

func (a API) CollatorAssignment(ctx context.Context) (*AssignedCollators, error) {
	b, err := a.Storage(ctx, keyCollatorContainerChain)
	if err != nil {
		return nil, fmt.Errorf("collator assignment: %w", err)
	}
	out, err := DecodeAssignedCollators(b)
	if err != nil {
		return nil, fmt.Errorf("collator assignment: %w", err)
	}
	return out, nil
}

// Authorities returns the block authors an appchain has noted from the
// orchestrator.
func (a API) Authorities(ctx context.Context) ([]AccountID, error) {
	b, err := a.Storage(ctx, keyAuthorities)
	if err != nil {
		return nil, fmt.Errorf("authorities: %w", err)
	}
	out, err := NewDecoder(b).AccountIDs()
	if err != nil {
		return nil, fmt.Errorf("authorities: %w", err)
	}
	return out, nil
}

// EVMChainID returns the eth_chainId of a Frontier chain in base 10.
func (a API) EVMChainID(ctx context.Context) (string, error) {
	var out string
	if err := a.Conn.Call(ctx, "eth_chainId", nil, &out); err != nil {
		return "", err
	}
	return hexToDecimal(out)
}

// RPC response types

type headerResponse struct {
	Number     string `json:"number"`
	ParentHash string `json:"parentHash"`
	StateRoot  string `json:"stateRoot"`
}

// rawProperties keeps the fields that nodes emit either as scalars or as
// single element arrays.
type rawProperties struct {
	SS58Format    *uint16         `json:"ss58Format"`
	TokenDecimals json.RawMessage `json:"tokenDecimals"`
	TokenSymbol   json.RawMessage `json:"tokenSymbol"`
	IsEthereum    bool            `json:"isEthereum"`
}

func (r rawProperties) parse() (Properties, error) {
	out := Properties{IsEthereum: r.IsEthereum, SS58Format: DefaultSS58Format}
	if r.SS58Format != nil {
		out.SS58Format = *r.SS58Format
	}
	if len(r.TokenSymbol) > 0 && string(r.TokenSymbol) != "null" {
		if err := firstOf(r.TokenSymbol, &out.TokenSymbol); err != nil {
			return Properties{}, fmt.Errorf("tokenSymbol: %w", err)
		}
	}
	if len(r.TokenDecimals) > 0 && string(r.TokenDecimals) != "null" {
		if err := firstOf(r.TokenDecimals, &out.TokenDecimals); err != nil {
			return Properties{}, fmt.Errorf("tokenDecimals: %w", err)
		}
	}
	return out, nil
}

func firstOf[T any](raw json.RawMessage, out *T) error {
	if raw[0] != '[' {
		return json.Unmarshal(raw, out)
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		return err
	}
	if len(list) > 0 {
		*out = list[0]
	}
	return nil
}

// Parsed types

type Health struct {
	Peers           int  `json:"peers"`
	IsSyncing       bool `json:"isSyncing"`
	ShouldHavePeers bool `json:"shouldHavePeers"`
}

type Properties struct {
	TokenSymbol   string
	TokenDecimals int
	IsEthereum    bool
	SS58Format    uint16
}

type Header struct {
	Number     uint64
	ParentHash string
	StateRoot  string
}
