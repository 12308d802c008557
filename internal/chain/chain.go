package chain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrClosed  = errors.New("rpc connection closed")
	ErrNoValue = errors.New("storage value not found")
)

// Conn is one open RPC connection to a chain node. Call may be used
// concurrently from several goroutines.
type Conn interface {
	Call(ctx context.Context, method string, params []any, out any) error
	Close() error
}

// Connector opens RPC connections.
type Connector interface {
	Connect(ctx context.Context, endpoint string) (Conn, error)
}

// ConnectorFunc adapts a plain function to the Connector interface.
type ConnectorFunc func(ctx context.Context, endpoint string) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context, endpoint string) (Conn, error) {
	return f(ctx, endpoint)
}

// TeardownError is returned by Close when the underlying connection could
// not be shut down cleanly. It is never fatal.
type TeardownError struct {
	Endpoint string
	Err      error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("close %s: %v", e.Endpoint, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
