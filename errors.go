package agentd

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyOutput is returned by RunJSON when the controller produced no
// output at all. Callers distinguish this from malformed output because an
// empty result usually means the command silently did nothing rather than
// that decoding broke.
var ErrEmptyOutput = errors.New("agentd: empty output")

// ExecError reports a controller invocation that exited non-zero or was
// killed by a signal.
type ExecError struct {
	// Args is the argument vector passed to the controller binary.
	Args []string

	// ExitCode is the process exit status. Nil means the process was
	// terminated by a signal rather than exiting on its own.
	ExitCode *int

	// Stderr and Stdout hold whatever output was collected before exit.
	Stderr string
	Stdout string
}

func (e *ExecError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(e.Stdout)
	}
	status := "killed by signal"
	if e.ExitCode != nil {
		status = fmt.Sprintf("exit status %d", *e.ExitCode)
	}
	if detail == "" {
		return fmt.Sprintf("agentd: command failed (%s)", status)
	}
	return fmt.Sprintf("agentd: command failed (%s): %s", status, detail)
}

// ParseError reports output that was expected to be structured but could
// not be decoded.
type ParseError struct {
	Output string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("agentd: parse output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NetworkError reports a gateway request that could not complete, including
// deadline aborts. The underlying transport error is wrapped so callers can
// inspect it with errors.Is (e.g. context.DeadlineExceeded).
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("agentd: gateway %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteError reports a gateway response with an error status. The body is
// kept verbatim for diagnostics.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("agentd: gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("agentd: gateway returned status %d: %s", e.StatusCode, body)
}

// ConfigError reports a transport that cannot operate with the resolved
// configuration (e.g. HTTP mode with no gateway URL). Construction degrades
// where it can; the error surfaces on first use.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "agentd: " + e.Reason
}
