package agentd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// processSpec describes one controller subprocess invocation. Every
// invocation is independent; the runner keeps no state between calls.
type processSpec struct {
	Binary  string
	Args    []string
	Env     []string
	Dir     string
	Stdin   *string
	Timeout time.Duration
}

// runProcess spawns the controller binary and collects a RunResult.
//
// Stdout, stderr and stdin are serviced by independent goroutines: a
// process that fills one pipe while we are blocked on another would
// otherwise deadlock once the kernel pipe buffer is full. When the timeout
// fires the process is killed and whatever output was buffered so far is
// still returned, with ExitCode nil (same shape as any signal death).
//
// The returned error is reserved for spawn-level failures (binary missing,
// pipe setup); a non-zero or signal exit is reported through the RunResult,
// not the error.
func runProcess(ctx context.Context, spec processSpec) (*RunResult, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	// If the process ignores the kill long enough to wedge its pipes,
	// force Wait to give up rather than hang the caller.
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	var stdin io.WriteCloser
	if spec.Stdin != nil {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Binary, err)
	}
	dbg("agentd: spawned controller", "binary", spec.Binary, "args", spec.Args, "timeout", timeout)

	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&outBuf, stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&errBuf, stderr)
		return err
	})
	if stdin != nil {
		input := *spec.Stdin
		g.Go(func() error {
			// The process may exit before consuming all input; a broken
			// pipe here is not a failure of the run itself.
			_, _ = io.WriteString(stdin, input)
			return stdin.Close()
		})
	}

	copyErr := g.Wait()
	waitErr := cmd.Wait()

	res := &RunResult{
		Stdout: outBuf.String(),
		Stderr: errBuf.String(),
	}

	switch {
	case waitErr == nil:
		res.ExitCode = intPtr(0)
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			if code := exitErr.ExitCode(); code >= 0 {
				res.ExitCode = intPtr(code)
			}
			// code < 0: killed by a signal (including our timeout kill);
			// ExitCode stays nil.
		} else {
			return nil, fmt.Errorf("wait %s: %w", spec.Binary, waitErr)
		}
	}

	if copyErr != nil && ctx.Err() == nil {
		dbg("agentd: output copy error", "binary", spec.Binary, "error", copyErr)
	}

	return res, nil
}

func intPtr(v int) *int { return &v }
