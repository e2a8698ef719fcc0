package agentd

import (
	"context"
	"encoding/json"
	"time"
)

// Session summarizes one agent session as reported by the controller.
type Session struct {
	Name      string    `json:"name"`
	Agent     string    `json:"agent"`
	State     string    `json:"state"`
	Workspace string    `json:"workspace,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry is one turn of a session transcript.
type HistoryEntry struct {
	Role      string          `json:"role"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// SessionInfo is the detailed status of a single session.
type SessionInfo struct {
	Session
	Busy         bool   `json:"busy"`
	PendingTurns int    `json:"pending_turns"`
	LastError    string `json:"last_error,omitempty"`
}

// ListSessions returns every session the controller knows about.
func ListSessions(ctx context.Context, t Transport) ([]Session, error) {
	return RPC[[]Session](ctx, t, "sessions.list", nil, nil)
}

// SessionHistory returns up to limit transcript entries for a session,
// newest last. limit <= 0 means the controller's default window.
func SessionHistory(ctx context.Context, t Transport, name string, limit int) ([]HistoryEntry, error) {
	params := map[string]any{"session": name}
	if limit > 0 {
		params["limit"] = limit
	}
	return RPC[[]HistoryEntry](ctx, t, "sessions.history", params, nil)
}

// SessionStatus returns the detailed state of one session.
func SessionStatus(ctx context.Context, t Transport, name string) (SessionInfo, error) {
	return RPC[SessionInfo](ctx, t, "sessions.status", map[string]any{"session": name}, nil)
}
