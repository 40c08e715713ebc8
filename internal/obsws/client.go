// Package obsws is a minimal OBS WebSocket v5 client: enough of the protocol
// to authenticate, start and stop a recording, and read OBS's version.
package obsws

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiroq/meetjoin/internal/diaglog"
)

// ErrNotConnected is returned by requests made before Identified.
var ErrNotConnected = errors.New("obs not connected")

// RecordingState is the client's cached view of OBS recording output.
type RecordingState struct {
	Recording   bool
	StartTime   time.Time
	Duration    int // seconds, as of the last GetRecordStatus
	OutputPath  string
	OBSStatus   string // "connected" or "disconnected"
	OBSVersion  string
	LastUpdated time.Time
}

// Client is an OBS WebSocket v5 client. Requests are safe for concurrent use.
type Client struct {
	url      string
	password string

	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  bool
	identified bool

	writeMu sync.Mutex

	requestID   int
	requestIDMu sync.Mutex
	responses   map[string]chan *Response
	responseMu  sync.Mutex

	requestTimeout time.Duration

	logger *diaglog.Logger

	recordingState RecordingState
	stateMu        sync.RWMutex

	reconnectEnabled bool
	reconnectDelay   time.Duration
	stopChan         chan struct{}
	stopOnce         sync.Once

	identifiedChan chan struct{}
	helloChan      chan *HelloData
	helloErrChan   chan error
}

// Message is the outer frame of every OBS message.
type Message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type HelloData struct {
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type IdentifyData struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type Request struct {
	RequestType string      `json:"requestType"`
	RequestID   string      `json:"requestId"`
	RequestData interface{} `json:"requestData,omitempty"`
}

type Response struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment,omitempty"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData,omitempty"`
}

type Event struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData,omitempty"`
}

// OpCodes for WebSocket protocol
const (
	OpHello           = 0
	OpIdentify        = 1
	OpIdentified      = 2
	OpEvent           = 5
	OpRequest         = 6
	OpRequestResponse = 7
)

// EventSubscriptionOutputs subscribes to output events only (RecordStateChanged).
const EventSubscriptionOutputs = 1 << 6

// NewClient creates a new OBS WebSocket client
func NewClient(url, password string) *Client {
	return &Client{
		url:              url,
		password:         password,
		responses:        make(map[string]chan *Response),
		requestTimeout:   10 * time.Second,
		reconnectEnabled: true,
		reconnectDelay:   5 * time.Second,
		stopChan:         make(chan struct{}),
		identifiedChan:   make(chan struct{}, 1),
		helloChan:        make(chan *HelloData, 1),
		helloErrChan:     make(chan error, 1),
		recordingState:   RecordingState{OBSStatus: "disconnected", LastUpdated: time.Now()},
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

// Connect dials OBS, waits for Hello and completes Identify.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.updateOBSStatus("disconnected", "")
		return fmt.Errorf("connect to OBS %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	closed := make(chan struct{})
	go c.readMessages(conn, closed)

	handshake, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	select {
	case hello := <-c.helloChan:
		return c.authenticate(handshake, hello, closed)
	case err := <-c.helloErrChan:
		c.disconnect()
		return fmt.Errorf("read Hello: %w", err)
	case <-handshake.Done():
		c.disconnect()
		return fmt.Errorf("timeout waiting for Hello message")
	}
}

// authenticate sends Identify, answering the auth challenge if OBS set one.
func (c *Client) authenticate(ctx context.Context, hello *HelloData, closed <-chan struct{}) error {
	identify := IdentifyData{
		RPCVersion:         1,
		EventSubscriptions: EventSubscriptionOutputs,
	}
	if hello.Authentication.Challenge != "" {
		if c.password == "" {
			c.disconnect()
			return fmt.Errorf("OBS requires a password (recorder.obs_password)")
		}
		identify.Authentication = authResponse(c.password, hello.Authentication.Salt, hello.Authentication.Challenge)
	}

	if err := c.write(OpIdentify, identify); err != nil {
		c.disconnect()
		return err
	}

	select {
	case <-c.identifiedChan:
		c.mu.Lock()
		c.identified = true
		c.mu.Unlock()
		c.updateOBSStatus("connected", hello.OBSWebSocketVersion)
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventWSConnect,
			Payload: map[string]interface{}{"obs_websocket_version": hello.OBSWebSocketVersion},
		})
		return nil
	case <-closed:
		return fmt.Errorf("OBS closed the connection during Identify (wrong password?)")
	case <-ctx.Done():
		c.disconnect()
		return fmt.Errorf("timeout waiting for Identified message")
	}
}

// authResponse computes base64(sha256(base64(sha256(password+salt))+challenge)).
func authResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

func (c *Client) write(op int, d interface{}) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(Message{Op: op, D: raw})
}

func (c *Client) readMessages(conn *websocket.Conn, closed chan struct{}) {
	defer func() {
		established := c.dropConn(conn)
		close(closed)
		if !established {
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
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				c.log(diaglog.LogEntry{
					Event:   diaglog.EventWSDisconnect,
					Payload: map[string]interface{}{"close_code": closeErr.Code, "text": closeErr.Text},
				})
			}
			return
		}

		switch msg.Op {
		case OpHello:
			var hello HelloData
			if err := json.Unmarshal(msg.D, &hello); err != nil {
				select {
				case c.helloErrChan <- err:
				default:
				}
				return
			}
			select {
			case c.helloChan <- &hello:
			default:
			}

		case OpIdentified:
			select {
			case c.identifiedChan <- struct{}{}:
			default:
			}

		case OpEvent:
			var event Event
			if err := json.Unmarshal(msg.D, &event); err == nil {
				c.handleEvent(&event)
			}

		case OpRequestResponse:
			var resp Response
			if err := json.Unmarshal(msg.D, &resp); err == nil {
				c.responseMu.Lock()
				ch, ok := c.responses[resp.RequestID]
				c.responseMu.Unlock()
				if ok {
					ch <- &resp
				}
			}
		}
	}
}

func (c *Client) handleEvent(event *Event) {
	if event.EventType != "RecordStateChanged" {
		return
	}
	var data struct {
		OutputActive bool   `json:"outputActive"`
		OutputPath   string `json:"outputPath"`
	}
	if err := json.Unmarshal(event.EventData, &data); err != nil {
		return
	}
	c.log(diaglog.LogEntry{Event: diaglog.EventWSRecv, Payload: map[string]interface{}{"event": event.EventType, "active": data.OutputActive}})

	c.stateMu.Lock()
	c.recordingState.Recording = data.OutputActive
	if data.OutputPath != "" {
		c.recordingState.OutputPath = data.OutputPath
	}
	c.recordingState.LastUpdated = time.Now()
	c.stateMu.Unlock()
}

// sendRequest sends one request and waits for its response, ctx, or the
// request timeout, whichever comes first.
func (c *Client) sendRequest(ctx context.Context, requestType string, requestData interface{}) (*Response, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("%s: %w", requestType, ErrNotConnected)
	}

	c.requestIDMu.Lock()
	c.requestID++
	requestID := strconv.Itoa(c.requestID)
	c.requestIDMu.Unlock()

	respChan := make(chan *Response, 1)
	c.responseMu.Lock()
	c.responses[requestID] = respChan
	c.responseMu.Unlock()
	defer func() {
		c.responseMu.Lock()
		delete(c.responses, requestID)
		c.responseMu.Unlock()
	}()

	c.log(diaglog.LogEntry{
		Event:   diaglog.EventWSSend,
		Payload: map[string]interface{}{"request_type": requestType, "request_id": requestID},
	})

	req := Request{RequestType: requestType, RequestID: requestID, RequestData: requestData}
	if err := c.write(OpRequest, req); err != nil {
		return nil, fmt.Errorf("%s: %w", requestType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	select {
	case resp := <-respChan:
		if !resp.RequestStatus.Result {
			if resp.RequestStatus.Code == 204 {
				return nil, fmt.Errorf("OBS rejected request type %q (code 204: InvalidRequest), check the OBS version: %s", requestType, resp.RequestStatus.Comment)
			}
			return nil, fmt.Errorf("request failed: %s (request: %s, code: %d)", resp.RequestStatus.Comment, requestType, resp.RequestStatus.Code)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request %s: %w", requestType, ctx.Err())
	}
}

// dropConn disconnects conn if it is still the live connection and reports
// whether it was an established (identified) one.
func (c *Client) dropConn(conn *websocket.Conn) bool {
	c.mu.RLock()
	current := c.conn == conn
	established := current && c.identified
	c.mu.RUnlock()
	if current {
		c.disconnect()
	}
	return established
}

func (c *Client) disconnect() {
	c.mu.Lock()
	if c.conn != nil {
		c.log(diaglog.LogEntry{Event: diaglog.EventWSDisconnect, Payload: map[string]interface{}{"url": c.url}})
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.identified = false
	c.mu.Unlock()

	c.updateOBSStatus("disconnected", "")
}

// reconnect retries with exponential backoff and jitter. It never touches
// the recording: a recording in progress keeps running inside OBS.
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
			Event:     diaglog.EventWSReconnectAttempt,
			Component: diaglog.ComponentReconnect,
			Payload:   map[string]interface{}{"attempt": attempt, "delay_ms": delay.Milliseconds(), "target": "obs"},
		})

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			c.log(diaglog.LogEntry{
				Event:     diaglog.EventWSReconnectSuccess,
				Component: diaglog.ComponentReconnect,
				Payload:   map[string]interface{}{"attempt": attempt},
			})
			return
		}
		c.log(diaglog.LogEntry{
			Event:     diaglog.EventWSReconnectFailed,
			Component: diaglog.ComponentReconnect,
			Payload:   map[string]interface{}{"attempt": attempt, "error": err.Error()},
		})

		delay *= 2
		if delay > 60*time.Second {
			delay = 60 * time.Second
		}
		// ±10% jitter
		delay += time.Duration(float64(delay) * 0.2 * (rand.Float64() - 0.5))
		if delay < time.Second {
			delay = time.Second
		}
	}
}

func (c *Client) updateOBSStatus(status, version string) {
	c.stateMu.Lock()
	c.recordingState.OBSStatus = status
	c.recordingState.OBSVersion = version
	c.recordingState.LastUpdated = time.Now()
	c.stateMu.Unlock()
}

// Disconnect closes the connection and stops reconnection.
func (c *Client) Disconnect() {
	c.SetReconnectEnabled(false)
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.disconnect()
}

// IsConnected reports whether the client is connected and identified.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.identified
}

func (c *Client) log(entry diaglog.LogEntry) {
	if entry.Component == "" {
		entry.Component = diaglog.ComponentOBSClient
	}
	c.logger.Log(entry)
}
