package agentd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// rpcGrace is added to the caller-supplied timeout for CLI-side RPC calls
// to absorb the extra process-startup cost of spawning the binary.
const rpcGrace = 10 * time.Second

// CLITransport executes every operation by spawning the controller binary.
type CLITransport struct {
	binary  string
	env     []string
	timeout time.Duration
}

// NewCLITransport builds a subprocess-backed transport from resolved
// configuration.
func NewCLITransport(cfg Config) *CLITransport {
	cfg = cfg.withDefaults()

	env := os.Environ()
	// Deterministic ordering keeps invocations reproducible in tests.
	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+cfg.Env[k])
	}
	// Captured output feeds parsers and diagnostics; ANSI sequences would
	// corrupt both.
	env = append(env, "NO_COLOR=1", "FORCE_COLOR=0")

	return &CLITransport{
		binary:  cfg.BinaryPath,
		env:     env,
		timeout: cfg.Timeout,
	}
}

func (t *CLITransport) spec(args []string, opts *RunOptions) processSpec {
	s := processSpec{
		Binary:  t.binary,
		Args:    args,
		Env:     t.env,
		Timeout: t.timeout,
	}
	if opts != nil {
		if opts.Timeout > 0 {
			s.Timeout = opts.Timeout
		}
		s.Stdin = opts.Stdin
	}
	return s
}

// Run executes the controller with the given argument vector and returns
// its stdout. Non-zero or signal exits become *ExecError.
func (t *CLITransport) Run(ctx context.Context, args []string, opts *RunOptions) (string, error) {
	res, err := runProcess(ctx, t.spec(args, opts))
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", &ExecError{Args: args, ExitCode: res.ExitCode, Stderr: res.Stderr, Stdout: res.Stdout}
	}
	return res.Stdout, nil
}

// RunCapture executes the controller and reports the outcome structurally.
// It never returns an error: even a failed spawn yields a best-effort
// result with the failure text in Stderr.
func (t *CLITransport) RunCapture(ctx context.Context, args []string, opts *RunOptions) (*RunResult, error) {
	res, err := runProcess(ctx, t.spec(args, opts))
	if err != nil {
		return &RunResult{Stderr: err.Error()}, nil
	}
	return res, nil
}

// GatewayRPC shells out to `agentd gateway call`. The subprocess timeout
// gets a fixed grace over the RPC timeout so process startup does not eat
// into the method's own budget.
func (t *CLITransport) GatewayRPC(ctx context.Context, method string, params any, opts *RunOptions) (json.RawMessage, error) {
	args := []string{"gateway", "call", method, "--json"}
	if params != nil {
		blob, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %s: %w", method, err)
		}
		args = append(args, "--params", string(blob))
	}

	callTimeout := DefaultTimeout
	if opts != nil && opts.Timeout > 0 {
		callTimeout = opts.Timeout
	}
	args = append(args, "--timeout", fmt.Sprintf("%d", callTimeout.Milliseconds()))

	out, err := t.Run(ctx, args, &RunOptions{Timeout: callTimeout + rpcGrace})
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, ErrEmptyOutput
	}
	return json.RawMessage(out), nil
}

// ReadFile reads from the local filesystem; in CLI mode the controller and
// the panel share a host.
func (t *CLITransport) ReadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile writes to the local filesystem.
func (t *CLITransport) WriteFile(ctx context.Context, path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// ReadDir lists entry names in the local directory.
func (t *CLITransport) ReadDir(ctx context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// GatewayFetch is unavailable without a gateway.
func (t *CLITransport) GatewayFetch(ctx context.Context, path string, opts *FetchOptions) (*http.Response, error) {
	return nil, &ConfigError{Reason: "no gateway configured in cli mode"}
}
