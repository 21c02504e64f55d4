package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/agentapi"
	"github.com/zulandar/switchboard/internal/relay"
)

func TestClient_Targets(t *testing.T) {
	api := &fakeAPI{
		agents: []agentapi.Agent{{UUID: testAgentID, Name: "Ava"}},
		rooms:  []agentapi.Room{{UUID: testRoomID, Name: "Lounge", Nomis: []agentapi.Agent{{UUID: testAgentID}}}},
	}
	g := setupTestGateway(t, api, &fakePolisher{})
	c := NewClient(g.url + "/")

	targets, err := c.Targets(context.Background())
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("targets = %+v", targets)
	}
	if targets[0].Kind != relay.KindAgent || targets[0].Name != "Ava" {
		t.Errorf("agent target = %+v", targets[0])
	}
	if targets[1].Kind != relay.KindRoom || len(targets[1].Members) != 1 {
		t.Errorf("room target = %+v", targets[1])
	}
}

func TestClient_SendAndPolish(t *testing.T) {
	api := &fakeAPI{reply: "hi back"}
	g := setupTestGateway(t, api, &fakePolisher{})
	c := NewClient(g.url)
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}

	polished, err := c.Polish(ctx, "hey", "formal")
	if err != nil || polished != "[formal] hey" {
		t.Errorf("Polish = %q, %v", polished, err)
	}

	res, err := c.SendRoom(ctx, testRoomID, "hello", ModePlaintext)
	if err != nil {
		t.Fatalf("SendRoom: %v", err)
	}
	if res.Sent != "hello" || res.Parts != 1 {
		t.Errorf("room result = %+v", res)
	}

	res, err = c.SendDirect(ctx, testAgentID, "just you")
	if err != nil {
		t.Fatalf("SendDirect: %v", err)
	}
	if res.Reply != "hi back" {
		t.Errorf("direct result = %+v", res)
	}

	res, err = c.RequestReply(ctx, testRoomID, "", "")
	if err != nil {
		t.Fatalf("RequestReply: %v", err)
	}
	if res.Reply != "hi back" {
		t.Errorf("reply result = %+v", res)
	}
}

func TestClient_LoopLifecycle(t *testing.T) {
	g := setupTestGateway(t, &fakeAPI{reply: "ok"}, &fakePolisher{})
	c := NewClient(g.url)
	ctx := context.Background()
	req := relay.LoopRequest{RoomID: testRoomID, AgentID: testAgentID, Prompt: "start", Mode: "casual", Duration: 90 * time.Second}

	status, err := c.StartLoop(ctx, req)
	if err != nil {
		t.Fatalf("StartLoop: %v", err)
	}
	if status != "Loop started for 90 seconds." {
		t.Errorf("status = %q", status)
	}

	_, err = c.StartLoop(ctx, req)
	var appErr *relay.ApplicationError
	if !errors.As(err, &appErr) || appErr.Status != http.StatusConflict {
		t.Fatalf("second StartLoop error = %v, want 409 application error", err)
	}

	loops, err := c.Loops(ctx, true)
	if err != nil || len(loops) != 1 {
		t.Fatalf("Loops = %+v, %v", loops, err)
	}

	status, err = c.StopLoop(ctx, testRoomID)
	if err != nil || status != "Loop stopped." {
		t.Errorf("StopLoop = %q, %v", status, err)
	}
}

func TestClient_Rooms(t *testing.T) {
	api := &fakeAPI{}
	g := setupTestGateway(t, api, &fakePolisher{})
	c := NewClient(g.url)
	ctx := context.Background()

	room, err := c.CreateRoom(ctx, CreateRoomRequest{Name: "Den", AgentIDs: []string{testAgentID}})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.UUID != testRoomID || room.Name != "Den" {
		t.Errorf("room = %+v", room)
	}

	status, err := c.DeleteRoom(ctx, testRoomID)
	if err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if status != "Room '"+testRoomID+"' deleted successfully." {
		t.Errorf("status = %q", status)
	}
}

func TestClient_ApplicationError(t *testing.T) {
	g := setupTestGateway(t, &fakeAPI{}, &fakePolisher{})
	c := NewClient(g.url)

	_, err := c.SendRoom(context.Background(), testRoomID, "   ", ModePlaintext)
	var appErr *relay.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %T %v, want *relay.ApplicationError", err, err)
	}
	if appErr.Status != http.StatusBadRequest || appErr.Message != "text is required" {
		t.Errorf("application error = %+v", appErr)
	}
}

func TestClient_BareStatusIsTransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()
	c := NewClient(ts.URL)

	_, err := c.Targets(context.Background())
	var tErr *relay.TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("error = %T %v, want *relay.TransportError", err, err)
	}
	if tErr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d", tErr.Status)
	}
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	c := NewClient(url)

	err := c.Health(context.Background())
	var tErr *relay.TransportError
	if !errors.As(err, &tErr) || tErr.Status != 0 {
		t.Fatalf("error = %v, want transport error without status", err)
	}
}

func TestClient_EmptyPolish(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(polishResponse{PolishedText: "  "})
	}))
	defer ts.Close()
	c := NewClient(ts.URL)

	_, err := c.Polish(context.Background(), "hi", "casual")
	var appErr *relay.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %v, want application error", err)
	}
}

func TestClient_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer ts.Close()
	c := NewClient(ts.URL)

	_, err := c.Targets(context.Background())
	var appErr *relay.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %v, want application error", err)
	}
}

func TestClient_Events(t *testing.T) {
	g := setupTestGateway(t, &fakeAPI{}, &fakePolisher{})
	c := NewClient(g.url)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := c.Events(ctx)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	waitUntil(t, "subscriber", func() bool { return g.hub.Len() == 1 })

	g.hub.Broadcast(EventLoopTurn, LoopEvent{RoomID: testRoomID, AgentName: "Ava", Turn: 3, Reply: "hello"})

	select {
	case ev := <-events:
		if ev.Event != EventLoopTurn {
			t.Fatalf("event = %q", ev.Event)
		}
		var le LoopEvent
		if err := json.Unmarshal(ev.Payload, &le); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if le.RoomID != testRoomID || le.Turn != 3 || le.Reply != "hello" {
			t.Errorf("payload = %+v", le)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			// Drain anything queued before close.
			for range events {
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
}
