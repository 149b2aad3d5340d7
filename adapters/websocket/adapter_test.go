package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"runstreak/core"
	"runstreak/realtime"
)

func TestHandlerStreamsEvents(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] // convert http->ws
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	// ensure subscriber goroutine is ready
	time.Sleep(10 * time.Millisecond)

	ev := core.NewGoalCompleted("dad", core.DailyProgress{
		UserID: "dad", Date: time.Now().UTC(), Required: 3.07, Completed: 3.2, Status: core.StatusCompleted,
	})
	hub.Broadcast(context.Background(), ev)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var received core.Event
	if err := json.Unmarshal(msg, &received); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if received.UserID != "dad" {
		t.Fatalf("unexpected user: %s", received.UserID)
	}
	if received.Type != core.EventGoalCompleted {
		t.Fatalf("unexpected type: %s", received.Type)
	}
}

func TestHandlerFiltersByTypeAndUser(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] + "?types=user_eliminated&user=mom"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	time.Sleep(10 * time.Millisecond)

	ctx := context.Background()
	hub.Broadcast(ctx, core.NewGoalMissed("mom", core.DailyProgress{UserID: "mom", Status: core.StatusMissed}, 3.07))
	hub.Broadcast(ctx, core.NewUserEliminated("dad", time.Now().UTC(), core.EliminationReasonMisses))
	hub.Broadcast(ctx, core.NewUserEliminated("mom", time.Now().UTC(), core.EliminationReasonMisses))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var received core.Event
	if err := json.Unmarshal(msg, &received); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if received.Type != core.EventUserEliminated || received.UserID != "mom" {
		t.Fatalf("filter leaked: %s %s", received.Type, received.UserID)
	}
}
