package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeGracePeriod        = time.Second
)

// WSClient speaks JSON-RPC 2.0 over a single websocket. Responses are
// matched to requests by id, so Call is safe for concurrent use.
type WSClient struct {
	Endpoint string
	Conn     *websocket.Conn

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan rpcResponse
	readErr error
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func NewWSClient(endpoint string) *WSClient {
	return &WSClient{
		Endpoint: endpoint,
		pending:  make(map[uint64]chan rpcResponse),
		done:     make(chan struct{}),
	}
}

func (c *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.Endpoint, nil)
	if err != nil {
		return err
	}
	c.Conn = conn
	go c.readLoop()
	return nil
}

func (c *WSClient) Call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	id := c.nextID.Add(1)
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(ctx, rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(resp.Result, out)
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.done:
		c.mu.Lock()
		err := c.readErr
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
}

// Close shuts the socket down. Only the first call does any work; a
// connection that already broke reports a *TeardownError.
func (c *WSClient) Close() error {
	c.closeOnce.Do(func() {
		if c.Conn == nil {
			return
		}
		c.writeMu.Lock()
		_ = c.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		c.writeMu.Unlock()
		if err := c.Conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.closeErr = &TeardownError{Endpoint: c.Endpoint, Err: err}
		}
		c.fail(ErrClosed)
	})
	return c.closeErr
}

func (c *WSClient) write(ctx context.Context, req rpcRequest) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = c.Conn.SetWriteDeadline(deadline)
	return c.Conn.WriteJSON(req)
}

func (c *WSClient) readLoop() {
	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal(msg, &resp); err != nil || resp.ID == nil {
			// subscription notifications and garbage carry no id
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[*resp.ID]
		delete(c.pending, *resp.ID)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *WSClient) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return
	}
	c.readErr = err
	c.pending = map[uint64]chan rpcResponse{}
	close(c.done)
}

func (c *WSClient) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// WSConnector dials a fresh WSClient per Connect call.
type WSConnector struct{}

func (WSConnector) Connect(ctx context.Context, endpoint string) (Conn, error) {
	client := NewWSClient(endpoint)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}
