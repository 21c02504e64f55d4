package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zulandar/switchboard/internal/agentapi"
	"github.com/zulandar/switchboard/internal/relay"
)

// Client talks to a running gateway over HTTP. It implements relay.Backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

var _ relay.Backend = (*Client)(nil)

// NewClient creates a client for the gateway at baseURL,
// e.g. "http://localhost:8765".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		dialer:     websocket.DefaultDialer,
	}
}

// Health checks that the gateway is up.
func (c *Client) Health(ctx context.Context) error {
	var out statusResponse
	return c.do(ctx, "health", http.MethodGet, "/health", nil, &out)
}

// Targets lists agents and rooms.
func (c *Client) Targets(ctx context.Context) ([]relay.Target, error) {
	var out targetsResponse
	if err := c.do(ctx, "list targets", http.MethodGet, "/api/targets", nil, &out); err != nil {
		return nil, err
	}
	targets := make([]relay.Target, 0, len(out.Targets))
	for _, t := range out.Targets {
		targets = append(targets, relay.Target{
			Kind:    relay.TargetKind(t.Kind),
			ID:      t.ID,
			Name:    t.DisplayName,
			Members: t.Members,
		})
	}
	return targets, nil
}

// Polish returns text rewritten in tone.
func (c *Client) Polish(ctx context.Context, text, tone string) (string, error) {
	var out polishResponse
	if err := c.do(ctx, "polish", http.MethodPost, "/api/polish", polishRequest{Text: text, Mode: tone}, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.PolishedText) == "" {
		return "", &relay.ApplicationError{Op: "polish", Message: "the response carried no polished text"}
	}
	return out.PolishedText, nil
}

// SendRoom sends text to a room.
func (c *Client) SendRoom(ctx context.Context, roomID, text, mode string) (relay.SendResult, error) {
	var out sendResponse
	path := "/api/rooms/" + url.PathEscape(roomID) + "/send"
	if err := c.do(ctx, "send to room", http.MethodPost, path, sendRequest{Text: text, Mode: mode}, &out); err != nil {
		return relay.SendResult{}, err
	}
	return out.result(), nil
}

// SendDirect sends text to one agent.
func (c *Client) SendDirect(ctx context.Context, agentID, text string) (relay.SendResult, error) {
	var out sendResponse
	path := "/api/agents/" + url.PathEscape(agentID) + "/send"
	if err := c.do(ctx, "send to agent", http.MethodPost, path, sendRequest{Text: text}, &out); err != nil {
		return relay.SendResult{}, err
	}
	return out.result(), nil
}

// RequestReply asks agentID to speak in roomID.
func (c *Client) RequestReply(ctx context.Context, roomID, agentID, contextText string) (relay.SendResult, error) {
	var out sendResponse
	path := "/api/rooms/" + url.PathEscape(roomID) + "/request-reply"
	if err := c.do(ctx, "request reply", http.MethodPost, path, replyRequest{AgentID: agentID, ContextText: contextText}, &out); err != nil {
		return relay.SendResult{}, err
	}
	return out.result(), nil
}

// StartLoop starts a loop and returns the gateway's status text.
func (c *Client) StartLoop(ctx context.Context, req relay.LoopRequest) (string, error) {
	var out statusResponse
	path := "/api/rooms/" + url.PathEscape(req.RoomID) + "/loop"
	body := loopRequest{
		AgentID:         req.AgentID,
		StartPrompt:     req.Prompt,
		DurationSeconds: int(req.Duration / time.Second),
		Mode:            req.Mode,
	}
	if err := c.do(ctx, "start loop", http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// StopLoop stops the loop in roomID and returns the gateway's status text.
func (c *Client) StopLoop(ctx context.Context, roomID string) (string, error) {
	var out statusResponse
	path := "/api/rooms/" + url.PathEscape(roomID) + "/loop/stop"
	if err := c.do(ctx, "stop loop", http.MethodPost, path, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// Loops lists recent loop sessions.
func (c *Client) Loops(ctx context.Context, activeOnly bool) ([]LoopInfo, error) {
	path := "/api/loops"
	if activeOnly {
		path += "?active=true"
	}
	var out loopsResponse
	if err := c.do(ctx, "list loops", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Loops, nil
}

// CreateRoom creates a room.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*agentapi.Room, error) {
	var out agentapi.Room
	if err := c.do(ctx, "create room", http.MethodPost, "/api/rooms", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRoom deletes a room and returns the gateway's status text.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) (string, error) {
	var out statusResponse
	if err := c.do(ctx, "delete room", http.MethodDelete, "/api/rooms/"+url.PathEscape(roomID), nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// Events subscribes to the gateway's event stream. The channel closes when
// ctx is done or the connection drops.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/events"
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, &relay.TransportError{Op: "subscribe to events", Err: err}
	}

	out := make(chan Event, 64)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("gateway: events stream ended: %v", err)
				}
				return
			}
			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (r sendResponse) result() relay.SendResult {
	res := relay.SendResult{From: r.From, Status: r.Status, Parts: r.Parts}
	if r.Sent != nil {
		res.Sent = r.Sent.Text
	}
	if r.Reply != nil {
		res.Reply = r.Reply.Text
	}
	return res
}

// do performs one JSON request. Network failures and bare non-2xx answers
// become *relay.TransportError; an {error} body becomes
// *relay.ApplicationError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: marshal %s: %w", op, err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("gateway: %s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &relay.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &relay.TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}

	var e errorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return &relay.ApplicationError{Op: op, Status: resp.StatusCode, Message: e.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &relay.TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &relay.ApplicationError{Op: op, Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return nil
}
