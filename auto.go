package agentd

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// stableProbeInterval spaces reachability probes during normal
	// operation; recoveryProbeInterval applies after a gateway failure so
	// HTTP is rediscovered quickly once it comes back.
	stableProbeInterval   = 60 * time.Second
	recoveryProbeInterval = 15 * time.Second

	// probeTimeout bounds the health check itself. A probe must never add
	// noticeable latency to the request that triggered it.
	probeTimeout = 2 * time.Second
)

// AutoTransport composes a CLI and a gateway transport behind the same
// operation set. It prefers the gateway when a recent probe found it
// reachable, and retries a failed gateway dispatch once against the CLI
// before surfacing anything to the caller. CLI failures propagate as-is:
// the local binary is the transport of last resort.
type AutoTransport struct {
	cli *CLITransport
	gw  *GatewayTransport

	now func() time.Time

	mu         sync.Mutex
	preferHTTP bool
	inRecovery bool
	lastProbe  time.Time

	probes singleflight.Group
}

// NewAutoTransport builds the failover controller. gw may be nil (no
// gateway configured), in which case every call dispatches to the CLI and
// no probing happens.
func NewAutoTransport(cli *CLITransport, gw *GatewayTransport) *AutoTransport {
	return &AutoTransport{
		cli: cli,
		gw:  gw,
		now: time.Now,
	}
}

func (t *AutoTransport) probeDueLocked() bool {
	interval := stableProbeInterval
	if t.inRecovery {
		interval = recoveryProbeInterval
	}
	return t.lastProbe.IsZero() || t.now().Sub(t.lastProbe) >= interval
}

// ensureProbe runs a reachability probe if the interval has elapsed.
// Concurrent callers share one in-flight probe and observe its outcome
// before dispatching; unmetered duplicate probes under load would defeat
// the interval throttling entirely.
func (t *AutoTransport) ensureProbe() {
	if t.gw == nil {
		return
	}
	t.mu.Lock()
	due := t.probeDueLocked()
	t.mu.Unlock()
	if !due {
		return
	}

	t.probes.Do("probe", func() (any, error) {
		t.mu.Lock()
		due := t.probeDueLocked()
		t.mu.Unlock()
		if !due {
			return nil, nil
		}

		ok := t.probeOnce()
		t.mu.Lock()
		t.lastProbe = t.now()
		t.preferHTTP = ok
		if ok {
			t.inRecovery = false
		}
		t.mu.Unlock()
		dbg("agentd: gateway probe", "reachable", ok)
		return nil, nil
	})
}

// probeOnce checks gateway reachability. Probes run on a background
// context: they maintain shared state and must not inherit one caller's
// cancellation.
func (t *AutoTransport) probeOnce() bool {
	resp, err := t.gw.GatewayFetch(context.Background(), "/", &FetchOptions{Timeout: probeTimeout})
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

func (t *AutoTransport) useHTTP() bool {
	if t.gw == nil {
		return false
	}
	t.ensureProbe()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.preferHTTP
}

// noteGatewayFailure flips preference back to the CLI and arms the faster
// recovery probe interval. Resetting the probe timer to now makes the next
// probe eligible after recoveryProbeInterval rather than immediately, so a
// flapping gateway cannot turn every request into a probe.
func (t *AutoTransport) noteGatewayFailure(err error) {
	t.mu.Lock()
	t.preferHTTP = false
	t.inRecovery = true
	t.lastProbe = t.now()
	t.mu.Unlock()
	dbg("agentd: gateway dispatch failed, falling back to cli", "error", err)
}

// Run dispatches to the preferred transport, retrying once on the CLI if
// the gateway path fails mid-call.
func (t *AutoTransport) Run(ctx context.Context, args []string, opts *RunOptions) (string, error) {
	if t.useHTTP() {
		out, err := t.gw.Run(ctx, args, opts)
		if err == nil {
			return out, nil
		}
		t.noteGatewayFailure(err)
	}
	return t.cli.Run(ctx, args, opts)
}

// RunCapture dispatches like Run. The CLI path never errors, so in auto
// mode RunCapture keeps its never-fails contract.
func (t *AutoTransport) RunCapture(ctx context.Context, args []string, opts *RunOptions) (*RunResult, error) {
	if t.useHTTP() {
		res, err := t.gw.RunCapture(ctx, args, opts)
		if err == nil {
			return res, nil
		}
		t.noteGatewayFailure(err)
	}
	return t.cli.RunCapture(ctx, args, opts)
}

// GatewayRPC dispatches an RPC call with the same failover policy.
func (t *AutoTransport) GatewayRPC(ctx context.Context, method string, params any, opts *RunOptions) (json.RawMessage, error) {
	if t.useHTTP() {
		raw, err := t.gw.GatewayRPC(ctx, method, params, opts)
		if err == nil {
			return raw, nil
		}
		t.noteGatewayFailure(err)
	}
	return t.cli.GatewayRPC(ctx, method, params, opts)
}

// ReadFile dispatches with failover.
func (t *AutoTransport) ReadFile(ctx context.Context, path string) (string, error) {
	if t.useHTTP() {
		out, err := t.gw.ReadFile(ctx, path)
		if err == nil {
			return out, nil
		}
		t.noteGatewayFailure(err)
	}
	return t.cli.ReadFile(ctx, path)
}

// WriteFile dispatches with failover.
func (t *AutoTransport) WriteFile(ctx context.Context, path, content string) error {
	if t.useHTTP() {
		err := t.gw.WriteFile(ctx, path, content)
		if err == nil {
			return nil
		}
		t.noteGatewayFailure(err)
	}
	return t.cli.WriteFile(ctx, path, content)
}

// ReadDir dispatches with failover.
func (t *AutoTransport) ReadDir(ctx context.Context, path string) ([]string, error) {
	if t.useHTTP() {
		names, err := t.gw.ReadDir(ctx, path)
		if err == nil {
			return names, nil
		}
		t.noteGatewayFailure(err)
	}
	return t.cli.ReadDir(ctx, path)
}

// GatewayFetch goes straight to the gateway; there is no CLI equivalent to
// fall back to.
func (t *AutoTransport) GatewayFetch(ctx context.Context, path string, opts *FetchOptions) (*http.Response, error) {
	if t.gw == nil {
		return nil, &ConfigError{Reason: "no gateway configured"}
	}
	return t.gw.GatewayFetch(ctx, path, opts)
}
