package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestDispatcher_RoomSend(t *testing.T) {
	fb := &fakeBackend{result: SendResult{Reply: "Hi"}}
	d := NewDispatcher(fb, NewStore(), 0)

	out, err := d.Dispatch(context.Background(), DispatchRequest{Target: testRoom, Text: "Hello", Mode: "plaintext"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out.Kind != OutcomeReplied || out.Reply != "Hi" {
		t.Errorf("outcome = %+v, want replied Hi", out)
	}
	if len(fb.roomSends) != 1 || fb.roomSends[0] != (sentCall{ID: "room-1", Text: "Hello", Mode: "plaintext"}) {
		t.Errorf("room sends = %+v", fb.roomSends)
	}
}

func TestDispatcher_Outcomes(t *testing.T) {
	tests := []struct {
		name string
		res  SendResult
		want OutcomeKind
	}{
		{"paired", SendResult{Sent: "a", Reply: "b"}, OutcomeReplied},
		{"chunked status", SendResult{Status: "sent in chunks"}, OutcomeChunked},
		{"chunked parts", SendResult{Parts: 3}, OutcomeChunked},
		{"chunked with reply", SendResult{Status: "sent in chunks", Parts: 2, Reply: "ok"}, OutcomeReplied},
		{"sent without reply", SendResult{Sent: "a"}, OutcomeNoReply},
		{"empty", SendResult{}, OutcomeNoReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outcomeOf(tt.res).Kind; got != tt.want {
				t.Errorf("outcomeOf(%+v).Kind = %v, want %v", tt.res, got, tt.want)
			}
		})
	}
}

func TestDispatcher_ValidationMakesNoCall(t *testing.T) {
	fb := &fakeBackend{}
	d := NewDispatcher(fb, NewStore(), 0)
	cases := []DispatchRequest{
		{Target: Target{}, Text: "hi"},
		{Target: testRoom, Text: "   "},
		{Target: testRoom, Text: "hi", Mode: "morse"},
		{Target: Target{Kind: "fax", ID: "x"}, Text: "hi"},
	}
	for _, req := range cases {
		if _, err := d.Dispatch(context.Background(), req); !IsValidation(err) {
			t.Errorf("Dispatch(%+v) err = %v, want ValidationError", req, err)
		}
	}
	if fb.networkCalls() != 0 {
		t.Errorf("network calls = %d, want 0", fb.networkCalls())
	}
}

func TestDispatcher_BusyTargetRejected(t *testing.T) {
	fb := &fakeBackend{block: make(chan struct{}), result: SendResult{Reply: "ok"}}
	d := NewDispatcher(fb, NewStore(), 0)

	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	go func() {
		defer wg.Done()
		release, err := d.Reserve(testAgent)
		if err != nil {
			t.Errorf("Reserve: %v", err)
			close(started)
			return
		}
		close(started)
		defer release()
		d.Send(context.Background(), DispatchRequest{Target: testAgent, Text: "first"})
	}()
	<-started

	if !d.Busy(testAgent) {
		t.Error("Busy() = false while in flight")
	}
	_, err := d.Dispatch(context.Background(), DispatchRequest{Target: testAgent, Text: "second"})
	if !errors.Is(err, ErrBusy) {
		t.Errorf("second Dispatch err = %v, want ErrBusy", err)
	}
	// Other targets are unaffected.
	if d.Busy(testRoom) {
		t.Error("room busy while agent in flight")
	}

	close(fb.block)
	wg.Wait()
	if d.Busy(testAgent) {
		t.Error("Busy() = true after settle")
	}
	if len(fb.directSends) != 1 {
		t.Errorf("direct sends = %d, want 1", len(fb.directSends))
	}
}

func TestDispatcher_NeedsWarning(t *testing.T) {
	d := NewDispatcher(&fakeBackend{}, NewStore(), 0)
	long := strings.Repeat("é", 751)
	if !d.NeedsWarning(DispatchRequest{Target: testAgent, Text: long}) {
		t.Error("751 runes to an agent should warn")
	}
	if d.NeedsWarning(DispatchRequest{Target: testAgent, Text: strings.Repeat("a", 750)}) {
		t.Error("750 runes should not warn")
	}
	if d.NeedsWarning(DispatchRequest{Target: testRoom, Text: long}) {
		t.Error("room sends should not warn")
	}
}

func TestDispatcher_RequestReply(t *testing.T) {
	fb := &fakeBackend{result: SendResult{Reply: "Sure."}}
	d := NewDispatcher(fb, NewStore(), 0)

	out, err := d.RequestReply(context.Background(), testRoom, "agent-1", "what now?")
	if err != nil {
		t.Fatalf("RequestReply: %v", err)
	}
	if out.Kind != OutcomeReplied {
		t.Errorf("Kind = %v, want replied", out.Kind)
	}
	if fb.replyCalls[0].Text != "what now?" || fb.replyCalls[0].Mode != "agent-1" {
		t.Errorf("reply call = %+v", fb.replyCalls[0])
	}

	if _, err := d.RequestReply(context.Background(), testAgent, "", ""); !IsValidation(err) {
		t.Errorf("RequestReply on agent err = %v, want ValidationError", err)
	}
}

func TestDispatcher_RequestReplyMissingIsSoft(t *testing.T) {
	fb := &fakeBackend{}
	d := NewDispatcher(fb, NewStore(), 0)
	out, err := d.RequestReply(context.Background(), testRoom, "agent-1", "")
	if err != nil {
		t.Fatalf("RequestReply: %v", err)
	}
	if out.Kind != OutcomeNoReply {
		t.Errorf("Kind = %v, want no reply", out.Kind)
	}
}

func TestDispatcher_TransportErrorIsHard(t *testing.T) {
	fb := &fakeBackend{sendErr: &TransportError{Op: "request reply", Err: errors.New("refused")}}
	d := NewDispatcher(fb, NewStore(), 0)
	_, err := d.RequestReply(context.Background(), testRoom, "agent-1", "")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Errorf("err = %v, want TransportError", err)
	}
	if d.Busy(testRoom) {
		t.Error("room busy after failed request")
	}
}
