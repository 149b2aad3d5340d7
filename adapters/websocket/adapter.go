package websocket

import (
	"net/http"
	"strings"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"runstreak/core"
	"runstreak/realtime"
)

// Handler returns an http.Handler that upgrades to WebSocket and streams
// challenge events from the hub.
//
// Query parameters narrow the stream:
//   - types: comma-separated event types (e.g. types=goal_missed,user_eliminated)
//   - user:  only events for the given user ID
func Handler(hub *realtime.Hub) http.Handler {
	upgrader := gorillaws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var (
			id int
			ch <-chan core.Event
		)
		if types := parseTypes(r.URL.Query().Get("types")); len(types) > 0 {
			id, ch = hub.SubscribeTypes(256, types...)
		} else {
			id, ch = hub.Subscribe(256)
		}
		defer hub.Unsubscribe(id)

		var userFilter core.UserID
		if raw := r.URL.Query().Get("user"); raw != "" {
			userFilter, _ = core.NormalizeUserID(core.UserID(raw))
		}

		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		for ev := range ch {
			if userFilter != "" && ev.UserID != userFilter {
				continue
			}
			if err := conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev)); err != nil {
				return
			}
		}
	})
}

func parseTypes(raw string) []core.EventType {
	if raw == "" {
		return nil
	}
	var out []core.EventType
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, core.EventType(part))
	}
	return out
}
