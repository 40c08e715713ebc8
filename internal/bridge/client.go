package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiroq/meetjoin/internal/diaglog"
)

// Client is a websocket client for the page agent. Calls are safe for
// concurrent use; each waits at most the action timeout for its response.
type Client struct {
	url           string
	token         string
	actionTimeout time.Duration

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool

	writeMu sync.Mutex // gorilla allows one concurrent writer

	requestID   int
	requestIDMu sync.Mutex
	responses   map[string]chan *Frame
	responseMu  sync.Mutex

	logger *diaglog.Logger

	reconnectEnabled bool
	reconnectDelay   time.Duration
	stopChan         chan struct{}
	stopOnce         sync.Once
}

// NewClient returns an unconnected Client. token, when set, is sent as a
// bearer token on the websocket handshake.
func NewClient(url, token string, actionTimeout time.Duration) *Client {
	if actionTimeout <= 0 {
		actionTimeout = 30 * time.Second
	}
	return &Client{
		url:              url,
		token:            token,
		actionTimeout:    actionTimeout,
		responses:        make(map[string]chan *Frame),
		reconnectEnabled: true,
		reconnectDelay:   2 * time.Second,
		stopChan:         make(chan struct{}),
	}
}

// SetLogger wires the diagnostic log.
func (c *Client) SetLogger(l *diaglog.Logger) { c.logger = l }

// SetReconnectEnabled enables/disables automatic reconnection
func (c *Client) SetReconnectEnabled(enabled bool) {
	c.mu.Lock()
	c.reconnectEnabled = enabled
	c.mu.Unlock()
}

// Connect dials the agent and starts the read loop. It fails with
// ErrAlreadyConnected when another dial won, and with ErrClosed once Close
// has been called, even if Close ran while the dial was in flight.
func (c *Client) Connect(ctx context.Context) error {
	if c.stopped() {
		return ErrClosed
	}
	c.mu.RLock()
	already := c.connected
	c.mu.RUnlock()
	if already {
		return ErrAlreadyConnected
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("dial page agent %s: %w", c.url, err)
	}

	c.mu.Lock()
	switch {
	case c.stopped():
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	case c.connected:
		c.mu.Unlock()
		_ = conn.Close()
		return ErrAlreadyConnected
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.log(diaglog.LogEntry{Event: diaglog.EventWSConnect, Payload: map[string]interface{}{"url": c.url}})
	go c.readMessages(conn)
	return nil
}

// IsConnected returns current connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close stops reconnection and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.reconnectEnabled = false
	c.mu.Unlock()
	c.disconnect()
}

func (c *Client) stopped() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

func (c *Client) readMessages(conn *websocket.Conn) {
	defer func() {
		if !c.dropConn(conn) {
			return
		}
		c.mu.RLock()
		again := c.reconnectEnabled
		c.mu.RUnlock()
		if again {
			c.reconnect()
		}
	}()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}

		switch f.Type {
		case TypeResponse:
			c.responseMu.Lock()
			ch, ok := c.responses[f.ID]
			c.responseMu.Unlock()
			if ok {
				ch <- &f
			}
		case TypeEvent:
			c.log(diaglog.LogEntry{Event: diaglog.EventWSRecv, Payload: map[string]interface{}{"event": f.Event}})
		}
	}
}

// call sends method with params and decodes the result into out (which may
// be nil). A missing answer within the action timeout yields ErrTimeout.
func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("%s: %w", method, ErrNotConnected)
	}

	c.requestIDMu.Lock()
	c.requestID++
	id := strconv.Itoa(c.requestID)
	c.requestIDMu.Unlock()

	req := Frame{Type: TypeRequest, ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: encode params: %w", method, err)
		}
		req.Params = raw
	}

	respChan := make(chan *Frame, 1)
	c.responseMu.Lock()
	c.responses[id] = respChan
	c.responseMu.Unlock()
	defer func() {
		c.responseMu.Lock()
		delete(c.responses, id)
		c.responseMu.Unlock()
	}()

	c.log(diaglog.LogEntry{Event: diaglog.EventWSSend, Payload: map[string]interface{}{"method": method, "request_id": id}})

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.actionTimeout)
	defer cancel()

	select {
	case resp := <-respChan:
		if !resp.OK {
			if resp.Error == nil {
				return fmt.Errorf("%s: request failed", method)
			}
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s after %s: %w", method, c.actionTimeout, ErrTimeout)
		}
		return ctx.Err()
	}
}

func (c *Client) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.log(diaglog.LogEntry{Event: diaglog.EventWSDisconnect, Payload: map[string]interface{}{"url": c.url}})
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// dropConn disconnects conn if it is still the live connection.
func (c *Client) dropConn(conn *websocket.Conn) bool {
	c.mu.RLock()
	current := c.conn == conn
	c.mu.RUnlock()
	if current {
		c.disconnect()
	}
	return current
}

// reconnect retries with exponential backoff and jitter until it succeeds
// or Close is called.
func (c *Client) reconnect() {
	delay := c.reconnectDelay
	attempt := 0
	for {
		select {
		case <-c.stopChan:
			return
		case <-time.After(delay):
		}

		attempt++
		c.log(diaglog.LogEntry{
			Component: diaglog.ComponentReconnect,
			Event:     diaglog.EventWSReconnectAttempt,
			Payload:   map[string]interface{}{"attempt": attempt, "delay_ms": delay.Milliseconds(), "target": "page-agent"},
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.Connect(ctx)
		cancel()
		switch {
		case errors.Is(err, ErrClosed):
			return
		case errors.Is(err, ErrAlreadyConnected):
			// Another dial won; its reader owns the connection.
			return
		case err == nil:
			c.log(diaglog.LogEntry{
				Component: diaglog.ComponentReconnect,
				Event:     diaglog.EventWSReconnectSuccess,
				Payload:   map[string]interface{}{"attempt": attempt},
			})
			return
		}
		c.log(diaglog.LogEntry{
			Component: diaglog.ComponentReconnect,
			Event:     diaglog.EventWSReconnectFailed,
			Payload:   map[string]interface{}{"attempt": attempt, "error": err.Error()},
		})

		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		// ±10% jitter
		delay += time.Duration(float64(delay) * 0.2 * (rand.Float64() - 0.5))
		if delay < time.Second {
			delay = time.Second
		}
	}
}

func (c *Client) log(entry diaglog.LogEntry) {
	if entry.Component == "" {
		entry.Component = diaglog.ComponentBridge
	}
	c.logger.Log(entry)
}
