package agentd

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Events subscribes to the gateway's event broadcast stream. Frames are
// delivered until ctx is cancelled or the connection drops, after which the
// channel is closed. Dashboards tail this feed for session and status
// updates; it carries no terminal output.
func (t *GatewayTransport) Events(ctx context.Context) (<-chan Event, error) {
	wsURL := toWebsocketURL(t.baseURL) + "/events"

	header := http.Header{}
	if t.token != "" {
		header.Set("Authorization", "Bearer "+t.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &RemoteError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return nil, &NetworkError{Op: "events", URL: wsURL, Err: err}
	}

	ch := make(chan Event, 16)
	done := make(chan struct{})

	// The watcher must also exit when the server side drops the stream, or
	// a non-cancellable ctx would leak it for the life of the process.
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(ch)
		defer close(done)
		defer conn.Close()
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					dbg("agentd: event stream closed", "error", err)
				}
				return
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func toWebsocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
