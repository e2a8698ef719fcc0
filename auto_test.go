package agentd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeGatewayServer serves probes at "/" and tool invocations at
// /tools/invoke, counting each and letting tests fail invocations on demand.
type fakeGatewayServer struct {
	srv *httptest.Server

	probes      atomic.Int64
	invokes     atomic.Int64
	failInvokes atomic.Bool
	probeDelay  time.Duration
}

func newFakeGatewayServer(t *testing.T) *fakeGatewayServer {
	t.Helper()
	f := &fakeGatewayServer{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			f.probes.Add(1)
			if d := f.probeDelay; d > 0 {
				time.Sleep(d)
			}
			w.WriteHeader(http.StatusOK)
		case "/tools/invoke":
			f.invokes.Add(1)
			if f.failInvokes.Load() {
				http.Error(w, "gateway degraded", http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"output":"via gateway"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func newTestAuto(t *testing.T, cliScript, gatewayURL string) *AutoTransport {
	t.Helper()
	cli := newTestCLI(t, cliScript, nil)
	var gw *GatewayTransport
	if gatewayURL != "" {
		gw = newTestGateway(t, gatewayURL)
	}
	return NewAutoTransport(cli, gw)
}

func TestAutoProbesOncePerStableWindow(t *testing.T) {
	f := newFakeGatewayServer(t)
	a := newTestAuto(t, `echo via cli`, f.srv.URL)

	clock := time.Now()
	a.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		out, err := a.Run(context.Background(), []string{"status"}, nil)
		if err != nil {
			t.Fatalf("Run #%d: %v", i, err)
		}
		if out != "via gateway" {
			t.Errorf("Run #%d = %q, want gateway dispatch", i, out)
		}
	}
	if got := f.probes.Load(); got != 1 {
		t.Errorf("probes = %d, want 1 within the stable window", got)
	}

	// Just inside the window: still no new probe.
	clock = clock.Add(stableProbeInterval - time.Second)
	if _, err := a.Run(context.Background(), []string{"status"}, nil); err != nil {
		t.Fatal(err)
	}
	if got := f.probes.Load(); got != 1 {
		t.Errorf("probes = %d, want 1 at 59s", got)
	}

	// Past the window: exactly one more.
	clock = clock.Add(2 * time.Second)
	if _, err := a.Run(context.Background(), []string{"status"}, nil); err != nil {
		t.Fatal(err)
	}
	if got := f.probes.Load(); got != 2 {
		t.Errorf("probes = %d, want 2 after the stable interval", got)
	}
}

func TestAutoConcurrentCallsShareOneProbe(t *testing.T) {
	f := newFakeGatewayServer(t)
	f.probeDelay = 100 * time.Millisecond
	a := newTestAuto(t, `echo via cli`, f.srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Run(context.Background(), []string{"status"}, nil); err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.probes.Load(); got != 1 {
		t.Errorf("probes = %d, want concurrent callers deduplicated to 1", got)
	}
}

func TestAutoFallsBackToCLIOnGatewayFailure(t *testing.T) {
	f := newFakeGatewayServer(t)
	f.failInvokes.Store(true)
	a := newTestAuto(t, `echo via cli`, f.srv.URL)

	out, err := a.Run(context.Background(), []string{"status"}, nil)
	if err != nil {
		t.Fatalf("Run: %v (fallback must absorb the gateway failure)", err)
	}
	if out != "via cli\n" {
		t.Errorf("out = %q, want CLI output", out)
	}
	if got := f.invokes.Load(); got != 1 {
		t.Errorf("invokes = %d, want exactly one gateway attempt", got)
	}

	a.mu.Lock()
	preferHTTP, inRecovery := a.preferHTTP, a.inRecovery
	a.mu.Unlock()
	if preferHTTP {
		t.Error("preferHTTP still set after gateway failure")
	}
	if !inRecovery {
		t.Error("failure did not arm recovery probing")
	}
}

func TestAutoRecoveryShortensProbeInterval(t *testing.T) {
	f := newFakeGatewayServer(t)
	f.failInvokes.Store(true)
	a := newTestAuto(t, `echo via cli`, f.srv.URL)

	clock := time.Now()
	a.now = func() time.Time { return clock }

	// Initial probe succeeds, the invoke fails, fallback serves the call.
	if _, err := a.Run(context.Background(), []string{"status"}, nil); err != nil {
		t.Fatal(err)
	}
	if got := f.probes.Load(); got != 1 {
		t.Fatalf("probes = %d, want 1", got)
	}

	// Inside the recovery window: no probe, CLI keeps serving.
	f.failInvokes.Store(false)
	clock = clock.Add(recoveryProbeInterval - time.Second)
	out, err := a.Run(context.Background(), []string{"status"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "via cli\n" {
		t.Errorf("out = %q, want CLI while recovery probe is not yet due", out)
	}
	if got := f.probes.Load(); got != 1 {
		t.Errorf("probes = %d, want none inside the recovery window", got)
	}

	// Past 15s (well under the stable 60s): probe fires, HTTP comes back.
	clock = clock.Add(2 * time.Second)
	out, err = a.Run(context.Background(), []string{"status"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.probes.Load(); got != 2 {
		t.Errorf("probes = %d, want recovery probe after %v", got, recoveryProbeInterval)
	}
	if out != "via gateway" {
		t.Errorf("out = %q, want gateway dispatch after recovery", out)
	}

	a.mu.Lock()
	inRecovery := a.inRecovery
	a.mu.Unlock()
	if inRecovery {
		t.Error("successful probe did not clear recovery state")
	}
}

func TestAutoUnreachableGatewayUsesCLI(t *testing.T) {
	// Closed server: the probe itself fails, so dispatch goes to the CLI
	// without any gateway attempt.
	f := newFakeGatewayServer(t)
	url := f.srv.URL
	f.srv.Close()

	a := newTestAuto(t, `echo via cli`, url)
	out, err := a.Run(context.Background(), []string{"status"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "via cli\n" {
		t.Errorf("out = %q, want CLI output", out)
	}
}

func TestAutoWithoutGatewayIsCLIOnly(t *testing.T) {
	a := newTestAuto(t, `echo via cli`, "")

	out, err := a.Run(context.Background(), []string{"status"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "via cli\n" {
		t.Errorf("out = %q", out)
	}

	if _, err := a.GatewayFetch(context.Background(), "/", nil); err == nil {
		t.Error("GatewayFetch must fail without a gateway")
	}
}

func TestAutoRunCaptureFallsBack(t *testing.T) {
	f := newFakeGatewayServer(t)
	f.failInvokes.Store(true)
	a := newTestAuto(t, `echo captured; exit 4`, f.srv.URL)

	res, err := a.RunCapture(context.Background(), []string{"status"}, nil)
	if err != nil {
		t.Fatalf("RunCapture: %v", err)
	}
	if res.Stdout != "captured\n" {
		t.Errorf("Stdout = %q", res.Stdout)
	}
	if res.ExitCode == nil || *res.ExitCode != 4 {
		t.Errorf("ExitCode = %v, want 4", res.ExitCode)
	}
}
