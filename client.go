// Package agentd provides a Go client for the agentd controller, the
// agent-host process behind the control panel. The controller may be
// reachable as a local binary, over HTTP through its gateway, or both; the
// package exposes one operation set and hides which execution strategy
// serves a given call.
package agentd

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// Transport is the operation set every execution strategy implements.
// Callers hold a Transport and never care whether a call was served by a
// subprocess or by the gateway.
type Transport interface {
	// Run executes a controller command and returns its stdout. A
	// non-zero or signal-terminated exit is reported as *ExecError whose
	// message carries the captured stderr (stdout when stderr is empty).
	Run(ctx context.Context, args []string, opts *RunOptions) (string, error)

	// RunCapture executes a controller command and always returns a
	// structured result, whatever the exit status. A non-nil error is
	// reserved for transport-level failures and is never produced by the
	// CLI path, so callers may invoke it speculatively.
	RunCapture(ctx context.Context, args []string, opts *RunOptions) (*RunResult, error)

	// GatewayRPC invokes a named controller RPC method and returns the
	// raw result for the caller to decode (see the RPC helper).
	GatewayRPC(ctx context.Context, method string, params any, opts *RunOptions) (json.RawMessage, error)

	// File operations on the controller host.
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	ReadDir(ctx context.Context, path string) ([]string, error)

	// GatewayFetch issues a raw request against the gateway. Used for
	// health probing and the odd endpoint without a dedicated method.
	// The caller owns the response body.
	GatewayFetch(ctx context.Context, path string, opts *FetchOptions) (*http.Response, error)
}

// Compile-time conformance of all three strategies.
var (
	_ Transport = (*CLITransport)(nil)
	_ Transport = (*GatewayTransport)(nil)
	_ Transport = (*AutoTransport)(nil)
)

// New constructs the transport matching cfg.Mode. In auto mode a missing
// gateway URL degrades to CLI-only dispatch instead of failing; in http
// mode it is an error.
func New(cfg Config) (Transport, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeHTTP:
		return NewGatewayTransport(cfg)
	case ModeAuto:
		cli := NewCLITransport(cfg)
		gw, err := NewGatewayTransport(cfg)
		if err != nil {
			// Degrade: auto without a gateway is just CLI with probing
			// disabled. The controller must stay reachable.
			dbg("agentd: auto mode without gateway", "error", err)
			gw = nil
		}
		return NewAutoTransport(cli, gw), nil
	default:
		return NewCLITransport(cfg), nil
	}
}

var (
	defaultMu     sync.Mutex
	defaultClient Transport
)

// Default returns the process-wide client, constructing it on first use
// from FromEnv. Every caller gets the same instance for the life of the
// process.
func Default() (Transport, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient != nil {
		return defaultClient, nil
	}
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	t, err := New(cfg)
	if err != nil {
		return nil, err
	}
	defaultClient = t
	return t, nil
}

// ResetDefault discards the process-wide client so the next Default call
// re-resolves the mode. Intended for tests; production processes construct
// the client once and keep it.
func ResetDefault() {
	defaultMu.Lock()
	defaultClient = nil
	defaultMu.Unlock()
}

// RunJSON runs a controller command with the structured-output flag
// appended and decodes stdout into T. Empty output yields ErrEmptyOutput
// rather than a generic decode error.
func RunJSON[T any](ctx context.Context, t Transport, args []string, opts *RunOptions) (T, error) {
	var zero T
	out, err := t.Run(ctx, append(append([]string(nil), args...), "--json"), opts)
	if err != nil {
		return zero, err
	}
	if strings.TrimSpace(out) == "" {
		return zero, ErrEmptyOutput
	}
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		return zero, &ParseError{Output: out, Err: err}
	}
	return v, nil
}

// RPC invokes a gateway RPC method and decodes its result into T.
func RPC[T any](ctx context.Context, t Transport, method string, params any, opts *RunOptions) (T, error) {
	var zero T
	raw, err := t.GatewayRPC(ctx, method, params, opts)
	if err != nil {
		return zero, err
	}
	if len(raw) == 0 {
		return zero, ErrEmptyOutput
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, &ParseError{Output: string(raw), Err: err}
	}
	return v, nil
}
