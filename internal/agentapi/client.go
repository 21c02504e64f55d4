// Package agentapi provides an HTTP client for the upstream companion-agent
// API (rooms, agents and chat).
package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Per-call timeouts. Chat calls wait on the agent composing a reply.
const (
	listTimeout = 10 * time.Second
	chatTimeout = 30 * time.Second
)

// Client is an HTTP client for the companion-agent API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new API client. baseURL should be like
// "https://api.nomi.ai/v1"; apiKey is sent as a Bearer token.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// --- Types ---

// Agent is a companion agent visible to the API key.
type Agent struct {
	UUID         string `json:"uuid"`
	Name         string `json:"name"`
	Gender       string `json:"gender,omitempty"`
	RelationType string `json:"relationshipType,omitempty"`
}

// Room is a multi-agent room.
type Room struct {
	UUID                  string  `json:"uuid"`
	Name                  string  `json:"name"`
	Note                  string  `json:"note,omitempty"`
	BackchannelingEnabled bool    `json:"backchannelingEnabled"`
	Nomis                 []Agent `json:"nomis,omitempty"`
}

// Message is a chat message carried in API responses.
type Message struct {
	UUID string `json:"uuid,omitempty"`
	Text string `json:"text"`
	Sent string `json:"sent,omitempty"`
}

// ChatResponse is the response to a send or reply request. Room sends usually
// carry only SentMessage; direct sends and reply requests carry ReplyMessage.
type ChatResponse struct {
	SentMessage  *Message `json:"sentMessage,omitempty"`
	ReplyMessage *Message `json:"replyMessage,omitempty"`
}

// ReplyText returns the reply text, or "" when there is none.
func (r *ChatResponse) ReplyText() string {
	if r == nil || r.ReplyMessage == nil {
		return ""
	}
	return r.ReplyMessage.Text
}

// CreateRoomRequest is the body for POST /rooms.
type CreateRoomRequest struct {
	Name                  string   `json:"name"`
	Note                  string   `json:"note"`
	BackchannelingEnabled bool     `json:"backchannelingEnabled"`
	NomiUUIDs             []string `json:"nomiUuids"`
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agentapi: status %d: %s", e.StatusCode, e.Body)
}

// Non-retryable upstream rejections, matched against the response body.
var permanentErrors = []string{
	"Invalid room UUID",
	"Message length limit exceeded",
	"NomiNotFound",
	"RoomNotFound",
}

// Retryable reports whether repeating the request could succeed.
func (e *APIError) Retryable() bool {
	for _, p := range permanentErrors {
		if strings.Contains(e.Body, p) {
			return false
		}
	}
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusBadRequest:
		// The API returns 400 for transient "not ready" states as well.
		return true
	}
	return false
}

// --- Directory ---

// ListAgents returns the agents visible to the API key.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var out struct {
		Nomis []Agent `json:"nomis"`
	}
	if err := c.do(ctx, listTimeout, http.MethodGet, "/nomis", nil, &out); err != nil {
		return nil, err
	}
	return out.Nomis, nil
}

// ListRooms returns the rooms visible to the API key.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var out struct {
		Rooms []Room `json:"rooms"`
	}
	if err := c.do(ctx, listTimeout, http.MethodGet, "/rooms", nil, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

// CreateRoom creates a room with the given members.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error) {
	var room Room
	if err := c.do(ctx, listTimeout, http.MethodPost, "/rooms", req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// DeleteRoom deletes a room.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, listTimeout, http.MethodDelete, "/rooms/"+url.PathEscape(roomID), nil, nil)
}

// --- Chat ---

type chatBody struct {
	MessageText string `json:"messageText"`
}

// SendRoom posts a message into a room.
func (c *Client) SendRoom(ctx context.Context, roomID, text string) (*ChatResponse, error) {
	var out ChatResponse
	path := "/rooms/" + url.PathEscape(roomID) + "/chat"
	if err := c.do(ctx, chatTimeout, http.MethodPost, path, chatBody{MessageText: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendDirect posts a message to a single agent and returns its reply.
func (c *Client) SendDirect(ctx context.Context, agentID, text string) (*ChatResponse, error) {
	var out ChatResponse
	path := "/nomis/" + url.PathEscape(agentID) + "/chat"
	if err := c.do(ctx, chatTimeout, http.MethodPost, path, chatBody{MessageText: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestReply asks agentID to speak in roomID.
func (c *Client) RequestReply(ctx context.Context, roomID, agentID string) (*ChatResponse, error) {
	var out ChatResponse
	path := "/rooms/" + url.PathEscape(roomID) + "/chat/request"
	body := struct {
		NomiUUID string `json:"nomiUuid"`
	}{agentID}
	if err := c.do(ctx, chatTimeout, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- HTTP helpers ---

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("agentapi: marshal: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("agentapi: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agentapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("agentapi: decode %s: %w", path, err)
	}
	return nil
}
