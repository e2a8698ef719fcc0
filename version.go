package agentd

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"
)

// Gateways advertise their version on every response. The SDK uses it to
// decide whether the dedicated session tools exist or whether those RPC
// methods must go through command wrapping.

// versionHeader is set by the gateway on all HTTP responses.
const versionHeader = "Agentd-Version"

// Minimum gateway version shipping the native session tools.
var directToolsMinVersion = semver.MustParse("0.3.0")

type versionHolder struct {
	v atomic.Value // string
}

func (h *versionHolder) set(version string) { h.v.Store(version) }

func (h *versionHolder) get() string {
	if v, ok := h.v.Load().(string); ok {
		return v
	}
	return ""
}

// supportsDirectTools reports whether the gateway exposes the session
// tools natively. Unknown or unparseable versions are assumed modern:
// direct dispatch is the preferred path and command wrapping remains the
// fallback for gateways that reject it.
func supportsDirectTools(version string) bool {
	version = strings.TrimPrefix(version, "v")
	if version == "" {
		return true
	}
	// Dev builds always carry the full tool set.
	if strings.Contains(version, "-dev") {
		return true
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return true
	}
	return !v.LessThan(directToolsMinVersion)
}

// versionCapturingTransport wraps an http.RoundTripper to record the
// gateway version header from responses.
type versionCapturingTransport struct {
	wrapped http.RoundTripper
	holder  *versionHolder
}

func (t *versionCapturingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.wrapped.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if version := resp.Header.Get(versionHeader); version != "" {
		t.holder.set(version)
	}
	return resp, err
}
