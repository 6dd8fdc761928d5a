// Package backend drives a JSON-RPC tool server over a byte-stream
// transport: handshake, tool discovery, and correlated asynchronous tool
// calls. The proxy uses one Client for the main backend process and one
// per loaded plugin.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"toolgate.dev/cli/internal/core/domain"
	"toolgate.dev/cli/internal/core/ports"
	"toolgate.dev/cli/internal/correlation"
	"toolgate.dev/cli/internal/jsonrpc"
)

// ProtocolVersion is the fixed protocol revision sent during the handshake.
const ProtocolVersion = "2024-11-05"

// State is the lifecycle state of a backend client.
type State string

const (
	StateUnstarted State = "unstarted"
	StateStarting  State = "starting"
	StateReady     State = "ready"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
)

// Timeouts holds the per-call-kind deadlines for backend round-trips.
type Timeouts struct {
	Initialize time.Duration
	ListTools  time.Duration
	CallTool   time.Duration
}

// DefaultTimeouts returns the standard deadlines: generous for tool
// invocation, tight for discovery.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Initialize: 10 * time.Second,
		ListTools:  5 * time.Second,
		CallTool:   30 * time.Second,
	}
}

// ClientInfo identifies this process to the backend during the handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerInfo is the identity the backend reported during the handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Client manages the lifecycle of one backend tool server: start and
// handshake, tool discovery, correlated tool invocation, shutdown. All
// concurrent outstanding calls share the transport's single pipe pair;
// correctness relies on identifier correlation, not serialized access, so
// a slow call never blocks a fast one.
type Client struct {
	transport Transport
	registry  *correlation.Registry
	logger    ports.LoggingGateway
	recorder  ports.AnalyticsRecorder
	timeouts  Timeouts
	info      ClientInfo

	nextID  atomic.Uint64
	writeMu sync.Mutex

	mu         sync.RWMutex
	state      State
	serverInfo ServerInfo
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeouts overrides the default round-trip deadlines.
func WithTimeouts(t Timeouts) ClientOption {
	return func(c *Client) { c.timeouts = t }
}

// WithRecorder attaches an analytics recorder for call outcomes.
func WithRecorder(recorder ports.AnalyticsRecorder) ClientOption {
	return func(c *Client) { c.recorder = recorder }
}

// WithClientInfo overrides the identity sent in the handshake.
func WithClientInfo(info ClientInfo) ClientOption {
	return func(c *Client) { c.info = info }
}

// NewClient creates a client over the given transport. Start must be
// called before any tool operation.
func NewClient(transport Transport, logger ports.LoggingGateway, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		registry:  correlation.NewRegistry(),
		logger:    logger,
		timeouts:  DefaultTimeouts(),
		info:      ClientInfo{Name: "toolgate", Version: "dev"},
		state:     StateUnstarted,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ServerInfo returns the backend identity captured during the handshake.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start spawns the backend, performs the initialize handshake, and sends
// the initialized notification. On any failure the client transitions to
// Failed and the transport is torn down.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUnstarted {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start backend client in state %q", state)
	}
	c.state = StateStarting
	c.mu.Unlock()

	if err := c.transport.Start(ctx); err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("backend startup failed: %w", err)
	}

	go c.readLoop()
	go c.watchExit()

	initParams := map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo":      c.info,
	}
	reply, err := c.roundTrip(ctx, "initialize", initParams, c.timeouts.Initialize)
	if err != nil {
		c.setState(StateFailed)
		c.transport.Stop()
		return fmt.Errorf("backend initialize failed: %w", err)
	}

	var initResult struct {
		ProtocolVersion string     `json:"protocolVersion"`
		ServerInfo      ServerInfo `json:"serverInfo"`
	}
	if err := json.Unmarshal(reply.Result, &initResult); err != nil {
		c.logger.LogError(err, "Could not parse initialize result", nil)
	}

	notif, err := jsonrpc.NewNotification("notifications/initialized", nil)
	if err != nil {
		c.setState(StateFailed)
		c.transport.Stop()
		return err
	}
	if err := c.write(notif); err != nil {
		c.setState(StateFailed)
		c.transport.Stop()
		return fmt.Errorf("failed to send initialized notification: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Log(ports.LogLevelInfo, "Backend ready", map[string]interface{}{
		"server":  initResult.ServerInfo.Name,
		"version": initResult.ServerInfo.Version,
	})
	return nil
}

// ListTools requests the backend's tool catalog. Valid only once Ready.
func (c *Client) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	if err := c.requireReady("tools/list"); err != nil {
		return nil, err
	}

	reply, err := c.roundTrip(ctx, "tools/list", nil, c.timeouts.ListTools)
	if err != nil {
		return nil, err
	}

	var result struct {
		Tools []domain.ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(reply.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tools/list result: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a named backend tool and returns its opaque result
// payload. An explicit error reply from the backend surfaces as an error
// carrying the backend's message; a missing reply surfaces as a
// TimeoutError. Call outcome and latency are recorded fire-and-forget.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	if err := c.requireReady("tools/call"); err != nil {
		return nil, err
	}

	params := map[string]interface{}{"name": name}
	if len(args) > 0 {
		params["arguments"] = args
	}

	start := time.Now()
	reply, err := c.roundTrip(ctx, "tools/call", params, c.timeouts.CallTool)
	c.recordCall(name, time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

// Stop terminates the backend process. Registrations still pending are
// abandoned; the process is exiting regardless.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopped
	c.mu.Unlock()

	return c.transport.Stop()
}

// requireReady rejects operations outside the Ready state. A backend that
// died after becoming Ready fails fast here instead of letting the call
// ride out its full timeout.
func (c *Client) requireReady(op string) error {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()

	switch state {
	case StateReady:
		return nil
	case StateFailed:
		return domain.NewBackendFatalError("backend process is not available (%s rejected): process exited", op)
	default:
		return fmt.Errorf("%s is only valid on a ready backend (state %q)", op, state)
	}
}

// roundTrip sends one request and waits for its correlated reply, racing
// the registry timeout. Correlation ids come from a strictly monotonic
// counter, so id collisions are impossible within a client.
func (c *Client) roundTrip(ctx context.Context, method string, params interface{}, timeout time.Duration) (*jsonrpc.Message, error) {
	id := c.nextID.Add(1)
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		msg *jsonrpc.Message
		err error
	}
	done := make(chan outcome, 1)

	key := c.registry.RegisterWithTimeout(
		func(msg *jsonrpc.Message) bool {
			if !msg.IDEquals(req.ID) {
				return false
			}
			if msg.Error != nil {
				done <- outcome{err: fmt.Errorf("%s", msg.Error.Message)}
			} else {
				done <- outcome{msg: msg}
			}
			return true
		},
		timeout,
		func() {
			done <- outcome{err: &domain.TimeoutError{Operation: method, Timeout: timeout}}
		},
	)

	if err := c.write(req); err != nil {
		c.registry.Unregister(key)
		return nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}

	select {
	case out := <-done:
		return out.msg, out.err
	case <-c.transport.Exited():
		// A reply raced against the exit may already be queued; prefer it.
		select {
		case out := <-done:
			return out.msg, out.err
		default:
		}
		c.registry.Unregister(key)
		return nil, domain.NewBackendFatalError("backend process exited before replying to %s", method)
	case <-ctx.Done():
		c.registry.Unregister(key)
		return nil, ctx.Err()
	}
}

// write serializes one message onto the shared transport pipe.
func (c *Client) write(msg *jsonrpc.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.transport.Writer().Write(data)
	return err
}

// readLoop pumps transport bytes through the framer and dispatches every
// reply to the correlation registry. Requests and notifications initiated
// by the backend are not supported and are logged at debug level.
func (c *Client) readLoop() {
	framer := jsonrpc.NewFramer(func(msg *jsonrpc.Message) {
		if msg.IsReply() {
			c.registry.Dispatch(msg)
			return
		}
		c.logger.Log(ports.LogLevelDebug, "Ignoring backend-initiated message", map[string]interface{}{
			"method": msg.Method,
		})
	})

	buffer := make([]byte, 4096)
	for {
		n, err := c.transport.Reader().Read(buffer)
		if n > 0 {
			framer.Push(buffer[:n])
		}
		if err != nil {
			if err != io.EOF {
				c.logger.LogError(err, "Error reading backend stdout", nil)
			}
			return
		}
	}
}

// watchExit degrades the client when the process dies underneath it. An
// exit before Ready surfaces through the handshake round-trip, which
// races the exit channel; an exit after Ready flips the state so
// subsequent calls fail fast.
func (c *Client) watchExit() {
	<-c.transport.Exited()

	c.mu.Lock()
	wasReady := c.state == StateReady
	if c.state != StateStopped {
		c.state = StateFailed
	}
	c.mu.Unlock()

	if wasReady {
		c.logger.LogError(c.transport.ExitError(), "Backend process exited unexpectedly", nil)
	}
}

// recordCall forwards one call outcome to the analytics recorder, if any.
func (c *Client) recordCall(tool string, latency time.Duration, success bool) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordCall(ports.CallRecord{
		Timestamp: time.Now(),
		Tool:      tool,
		Latency:   latency,
		Success:   success,
	})
}
