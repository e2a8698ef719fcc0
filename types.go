package agentd

import (
	"encoding/json"
	"net/http"
	"time"
)

// RunResult is the structured outcome of a controller invocation.
type RunResult struct {
	// Stdout and Stderr hold the collected output streams. On timeout the
	// fields contain whatever was buffered before the process was killed.
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// ExitCode is nil when the process was terminated by a signal instead
	// of exiting normally. Callers treat nil as failure.
	ExitCode *int `json:"exitCode"`
}

// Success reports whether the process exited normally with status zero.
func (r *RunResult) Success() bool {
	return r.ExitCode != nil && *r.ExitCode == 0
}

// RunOptions carries per-call knobs for the run family of operations.
// A nil *RunOptions is valid and means defaults.
type RunOptions struct {
	// Timeout bounds the whole operation. Zero means DefaultTimeout.
	Timeout time.Duration

	// Stdin, when non-nil, is written to the controller's standard input
	// and the stream is closed so the controller observes end-of-input.
	Stdin *string
}

func (o *RunOptions) timeout() time.Duration {
	if o == nil || o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

func (o *RunOptions) stdin() (string, bool) {
	if o == nil || o.Stdin == nil {
		return "", false
	}
	return *o.Stdin, true
}

// DefaultTimeout applies when RunOptions does not specify one.
const DefaultTimeout = 30 * time.Second

// FetchOptions shapes a raw gateway request issued via GatewayFetch.
type FetchOptions struct {
	Method  string // defaults to GET
	Body    []byte
	Header  http.Header
	Timeout time.Duration // zero means DefaultTimeout
}

// Event is a single frame from the gateway event stream.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
