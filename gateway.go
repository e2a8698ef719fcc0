package agentd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
)

// GatewayTransport executes every operation as one HTTP call against the
// gateway's generic invocation endpoint.
type GatewayTransport struct {
	baseURL    string
	token      string
	binaryName string
	timeout    time.Duration
	httpClient *http.Client

	version versionHolder
}

// NewGatewayTransport builds an HTTP-backed transport. A missing gateway
// URL is a configuration error; callers in auto mode degrade instead.
func NewGatewayTransport(cfg Config) (*GatewayTransport, error) {
	cfg = cfg.withDefaults()
	if cfg.GatewayURL == "" {
		return nil, &ConfigError{Reason: "http mode requires a gateway URL"}
	}
	t := &GatewayTransport{
		baseURL:    strings.TrimRight(cfg.GatewayURL, "/"),
		token:      cfg.GatewayToken,
		binaryName: defaultBinaryName,
		timeout:    cfg.Timeout,
	}
	// Per-request deadlines come from contexts; the client itself carries
	// no global timeout. The wrapping transport records the gateway
	// version advertised on every response.
	t.httpClient = &http.Client{
		Transport: &versionCapturingTransport{
			wrapped: http.DefaultTransport,
			holder:  &t.version,
		},
	}
	return t, nil
}

// invokeRequest is the body of POST /tools/invoke.
type invokeRequest struct {
	Tool string `json:"tool"`
	Args any    `json:"args"`
}

// invoke performs one call against the generic invocation endpoint and
// returns the raw response body.
func (t *GatewayTransport) invoke(ctx context.Context, tool string, args any, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = t.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(invokeRequest{Tool: tool, Args: args})
	if err != nil {
		return nil, fmt.Errorf("marshal invoke args for %s: %w", tool, err)
	}

	url := t.baseURL + "/tools/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	t.setAuth(req)

	dbg("agentd: gateway invoke", "tool", tool, "url", url)
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "invoke " + tool, URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "invoke " + tool, URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (t *GatewayTransport) setAuth(req *http.Request) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
}

// commandLine renders the equivalent CLI invocation for command wrapping.
// Quoting goes through shellescape; the argv is never string-concatenated
// anywhere else.
func (t *GatewayTransport) commandLine(args []string) string {
	return shellescape.QuoteCommand(append([]string{t.binaryName}, args...))
}

func optTimeout(opts *RunOptions) time.Duration {
	if opts == nil {
		return 0
	}
	return opts.Timeout
}

// Run wraps the command as a generic execute invocation and returns the
// normalized output text.
func (t *GatewayTransport) Run(ctx context.Context, args []string, opts *RunOptions) (string, error) {
	execArgs := map[string]any{"command": t.commandLine(args)}
	if input, ok := opts.stdin(); ok {
		execArgs["stdin"] = input
	}
	body, err := t.invoke(ctx, "execute", execArgs, optTimeout(opts))
	if err != nil {
		return "", err
	}
	res, err := decodeToolResult(body)
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}

// RunCapture reports the remote execution structurally. The execute tool
// surfaces only output text, so a successful invocation maps to exit
// status zero. A non-nil error means the transport itself failed (the auto
// transport uses that to fall back); command failure never produces one.
func (t *GatewayTransport) RunCapture(ctx context.Context, args []string, opts *RunOptions) (*RunResult, error) {
	out, err := t.Run(ctx, args, opts)
	if err != nil {
		return nil, err
	}
	return &RunResult{Stdout: out, ExitCode: intPtr(0)}, nil
}

// directTools maps RPC methods the gateway exposes natively to their tool
// names. Everything else goes through command wrapping.
var directTools = map[string]string{
	"sessions.list":    "sessions_list",
	"sessions.history": "sessions_history",
	"sessions.status":  "session_status",
}

// GatewayRPC invokes a controller RPC method. Allow-listed methods dispatch
// to their dedicated tool with the params as the argument object; the rest
// are rewritten as the equivalent `agentd gateway call` command line.
func (t *GatewayTransport) GatewayRPC(ctx context.Context, method string, params any, opts *RunOptions) (json.RawMessage, error) {
	if tool, ok := directTools[method]; ok && supportsDirectTools(t.version.get()) {
		args := params
		if args == nil {
			args = map[string]any{}
		}
		body, err := t.invoke(ctx, tool, args, optTimeout(opts))
		if err != nil {
			return nil, err
		}
		return unwrapRPCResult(body), nil
	}

	callTimeout := DefaultTimeout
	if opts != nil && opts.Timeout > 0 {
		callTimeout = opts.Timeout
	}
	args := []string{"gateway", "call", method, "--json"}
	if params != nil {
		blob, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %s: %w", method, err)
		}
		args = append(args, "--params", string(blob))
	}
	args = append(args, "--timeout", fmt.Sprintf("%d", callTimeout.Milliseconds()))

	out, err := t.Run(ctx, args, &RunOptions{Timeout: callTimeout})
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, ErrEmptyOutput
	}
	return json.RawMessage(out), nil
}

// unwrapRPCResult peels the optional {"result": ...} envelope some tools
// wrap around their payload.
func unwrapRPCResult(body []byte) json.RawMessage {
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Result) > 0 {
		return envelope.Result
	}
	return json.RawMessage(body)
}

// ReadFile fetches file content through the gateway's read capability.
func (t *GatewayTransport) ReadFile(ctx context.Context, path string) (string, error) {
	body, err := t.invoke(ctx, "read", map[string]any{"path": path}, 0)
	if err != nil {
		return "", err
	}
	res, err := decodeToolResult(body)
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}

// WriteFile stores file content through the gateway's write capability.
func (t *GatewayTransport) WriteFile(ctx context.Context, path, content string) error {
	_, err := t.invoke(ctx, "write", map[string]any{"path": path, "content": content}, 0)
	return err
}

// ReadDir lists a directory through the gateway's list capability. The
// tool reports a newline-separated listing; blank lines (including the
// customary trailing one) are dropped.
func (t *GatewayTransport) ReadDir(ctx context.Context, path string) ([]string, error) {
	body, err := t.invoke(ctx, "list", map[string]any{"path": path}, 0)
	if err != nil {
		return nil, err
	}
	res, err := decodeToolResult(body)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(res.Text(), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// GatewayFetch issues a raw request against the gateway. The caller owns
// the response body. Used by health probing, which only needs status-level
// reachability.
func (t *GatewayTransport) GatewayFetch(ctx context.Context, path string, opts *FetchOptions) (*http.Response, error) {
	method := http.MethodGet
	var body io.Reader
	timeout := t.timeout
	if opts != nil {
		if opts.Method != "" {
			method = opts.Method
		}
		if opts.Body != nil {
			body = bytes.NewReader(opts.Body)
		}
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	url := t.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	if opts != nil {
		for k, vs := range opts.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	t.setAuth(req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, &NetworkError{Op: method, URL: url, Err: err}
	}
	// Release the deadline timer once the caller finishes with the body.
	resp.Body = &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}
