package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"runstreak/core"
)

func TestSink_OnEventPostsToEndpoints(t *testing.T) {
	var hits int32
	var lastBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		b, _ := io.ReadAll(r.Body)
		lastBody.Store(b)
		_ = r.Body.Close()
	}))
	defer srv.Close()

	sink := New([]string{srv.URL})
	sink.OnEvent(core.NewUserEliminated("kid", time.Now().UTC(), core.EliminationReasonMisses))

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
	var ev core.Event
	if err := json.Unmarshal(lastBody.Load().([]byte), &ev); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if ev.Type != core.EventUserEliminated || ev.UserID != "kid" {
		t.Fatalf("unexpected payload: %+v", ev)
	}
}

func TestSink_TypeFilter(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	sink := New([]string{srv.URL}, WithTypes(core.EventUserEliminated, core.EventUserAtRisk))
	sink.OnEvent(core.NewGoalCompleted("dad", core.DailyProgress{UserID: "dad"}))
	sink.OnEvent(core.NewUserAtRisk("dad", core.DecideStanding(2)))

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
}
