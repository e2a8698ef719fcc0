package agentd

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var sdkDebug atomic.Bool

var sdkLogger atomic.Pointer[slog.Logger]

func init() {
	if v := os.Getenv("AGENTD_SDK_DEBUG"); v != "" && v != "0" && v != "false" {
		sdkDebug.Store(true)
	}
}

func dbg(msg string, args ...any) {
	if !sdkDebug.Load() {
		return
	}
	l := sdkLogger.Load()
	if l == nil {
		l = slog.Default()
	}
	l.Debug(msg, args...)
}

// SetDebug enables or disables SDK debug logging.
// When enabled, debug messages are written via the configured slog.Logger
// (slog.Default() unless SetLogger was called). This allows the calling
// application to control SDK debug output programmatically (e.g. when a
// CLI debug flag is set).
func SetDebug(enabled bool) {
	sdkDebug.Store(enabled)
}

// SetLogger sets the slog.Logger used for SDK debug output.
func SetLogger(l *slog.Logger) {
	sdkLogger.Store(l)
}
