// Package dispatch implements the client-facing protocol handler: framed
// JSON-RPC requests in on one stream, framed responses out on another.
package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"toolgate.dev/cli/internal/core/domain"
	"toolgate.dev/cli/internal/core/ports"
	"toolgate.dev/cli/internal/jsonrpc"
)

// ToolRouter is the aggregation engine seen from the dispatcher.
type ToolRouter interface {
	ListTools(ctx context.Context) []domain.ToolDescriptor
	CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// ServerIdentity is reported to the client during initialize.
type ServerIdentity struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Dispatcher reads newline-delimited JSON-RPC 2.0 requests, invokes the
// router, and emits responses. Each request runs on its own goroutine, so
// pipelined client requests proceed concurrently and responses may
// complete out of arrival order; a slow backend call never blocks a fast
// management call. Writes to the output stream are serialized.
type Dispatcher struct {
	router   ToolRouter
	identity ServerIdentity
	logger   ports.LoggingGateway

	out         io.Writer
	outMu       sync.Mutex
	wg          sync.WaitGroup
	calls       atomic.Int64
	resultBytes atomic.Int64
}

// CallCount reports the number of tools/call requests handled so far.
func (d *Dispatcher) CallCount() int {
	return int(d.calls.Load())
}

// TokensEstimate approximates the tokens produced by tool results this
// session, at roughly four bytes per token.
func (d *Dispatcher) TokensEstimate() int {
	return int(d.resultBytes.Load() / 4)
}

// NewDispatcher creates a Dispatcher writing responses to out.
func NewDispatcher(router ToolRouter, identity ServerIdentity, out io.Writer, logger ports.LoggingGateway) *Dispatcher {
	return &Dispatcher{
		router:   router,
		identity: identity,
		logger:   logger,
		out:      out,
	}
}

// Run consumes requests from in until end-of-input or context
// cancellation, then waits for in-flight requests to finish. The input is
// pumped on its own goroutine so cancellation takes effect even while a
// read is blocked on an idle stream. A record that cannot be parsed at
// all is dropped with a log line and no reply; a single bad request never
// takes the dispatcher down.
func (d *Dispatcher) Run(ctx context.Context, in io.Reader) error {
	framer := jsonrpc.NewFramer(func(msg *jsonrpc.Message) {
		d.handle(ctx, msg)
	})

	readDone := make(chan error, 1)
	go func() {
		buffer := make([]byte, 4096)
		for {
			n, err := in.Read(buffer)
			if n > 0 {
				before := framer.Dropped()
				framer.Push(buffer[:n])
				if dropped := framer.Dropped() - before; dropped > 0 {
					d.logger.Log(ports.LogLevelWarn, "Dropped unparseable client records", map[string]interface{}{
						"count": dropped,
					})
				}
			}
			if err != nil {
				readDone <- err
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		// The reader goroutine stays blocked on in.Read; the process is
		// exiting and stdin dies with it.
		d.wg.Wait()
		return ctx.Err()
	case err := <-readDone:
		if err != io.EOF {
			d.logger.LogError(err, "Error reading client input", nil)
		}
		d.wg.Wait()
		if err == io.EOF {
			return nil
		}
		return err
	}
}

// handle processes one decoded message. Only requests get replies;
// notifications and stray responses are ignored.
func (d *Dispatcher) handle(ctx context.Context, msg *jsonrpc.Message) {
	if msg.IsNotification() {
		d.logger.Log(ports.LogLevelDebug, "Ignoring client notification", map[string]interface{}{
			"method": msg.Method,
		})
		return
	}
	if !msg.IsRequest() {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Log(ports.LogLevelError, "Request handler panicked", map[string]interface{}{
					"method": msg.Method,
					"error":  r,
				})
				d.reply(jsonrpc.NewError(msg.ID, jsonrpc.CodeInternalError, "internal error"))
			}
		}()
		d.reply(d.dispatch(ctx, msg))
	}()
}

// dispatch produces the reply for one request.
func (d *Dispatcher) dispatch(ctx context.Context, msg *jsonrpc.Message) *jsonrpc.Message {
	switch msg.Method {
	case "initialize":
		return d.handleInitialize(msg)
	case "tools/list":
		return d.handleListTools(ctx, msg)
	case "tools/call":
		return d.handleCallTool(ctx, msg)
	default:
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeMethodNotFound, "method not found: "+msg.Method)
	}
}

func (d *Dispatcher) handleInitialize(msg *jsonrpc.Message) *jsonrpc.Message {
	result := map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": d.identity,
	}
	reply, err := jsonrpc.NewResult(msg.ID, result)
	if err != nil {
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeInternalError, err.Error())
	}
	return reply
}

func (d *Dispatcher) handleListTools(ctx context.Context, msg *jsonrpc.Message) *jsonrpc.Message {
	tools := d.router.ListTools(ctx)
	if tools == nil {
		tools = []domain.ToolDescriptor{}
	}
	reply, err := jsonrpc.NewResult(msg.ID, map[string]interface{}{"tools": tools})
	if err != nil {
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeInternalError, err.Error())
	}
	return reply
}

func (d *Dispatcher) handleCallTool(ctx context.Context, msg *jsonrpc.Message) *jsonrpc.Message {
	d.calls.Add(1)

	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return jsonrpc.NewError(msg.ID, jsonrpc.CodeInvalidParams, "invalid tools/call params: "+err.Error())
		}
	}
	if params.Name == "" {
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeInvalidParams, "tools/call requires a tool name")
	}

	result, err := d.router.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		d.logger.LogError(err, "Tool call failed", map[string]interface{}{
			"tool": params.Name,
		})
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeInternalError, err.Error())
	}
	d.resultBytes.Add(int64(len(result)))

	return &jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		ID:      msg.ID,
		Result:  result,
	}
}

// reply serializes one response onto the shared output stream.
func (d *Dispatcher) reply(msg *jsonrpc.Message) {
	data, err := msg.Encode()
	if err != nil {
		d.logger.LogError(err, "Failed to encode response", nil)
		return
	}

	d.outMu.Lock()
	defer d.outMu.Unlock()
	if _, err := d.out.Write(data); err != nil {
		d.logger.LogError(err, "Failed to write response", nil)
	}
}
