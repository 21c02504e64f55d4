// Package mcptools exposes the relay gateway to MCP clients over stdio, so an
// assistant can list targets, send messages and drive loops the same way
// the operator console does.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/relay"
)

// Backend is the part of gateway.Client the tools use.
type Backend interface {
	relay.Backend
	Loops(ctx context.Context, activeOnly bool) ([]gateway.LoopInfo, error)
}

var _ Backend = (*gateway.Client)(nil)

// Opts holds parameters for creating the MCP server.
type Opts struct {
	Backend Backend
	Version string // reported to clients, defaults to "dev"
}

// New creates an MCP server with every relay tool registered.
func New(opts Opts) (*server.MCPServer, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("mcptools: backend is required")
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer("switchboard", version, server.WithToolCapabilities(true))
	s.AddTools(tools(opts.Backend)...)
	return s, nil
}

// Serve runs the MCP server on stdin/stdout until the client disconnects.
func Serve(opts Opts) error {
	s, err := New(opts)
	if err != nil {
		return err
	}
	return server.ServeStdio(s)
}

func tools(b Backend) []server.ServerTool {
	h := &handlers{backend: b}
	return []server.ServerTool{
		{Tool: listTargetsTool(), Handler: h.listTargets},
		{Tool: sendRoomTool(), Handler: h.sendRoom},
		{Tool: sendDirectTool(), Handler: h.sendDirect},
		{Tool: requestReplyTool(), Handler: h.requestReply},
		{Tool: startLoopTool(), Handler: h.startLoop},
		{Tool: stopLoopTool(), Handler: h.stopLoop},
		{Tool: listLoopsTool(), Handler: h.listLoops},
		{Tool: polishTool(), Handler: h.polish},
	}
}

type handlers struct {
	backend Backend
}

func listTargetsTool() mcp.Tool {
	return mcp.NewTool("list_targets",
		mcp.WithDescription("List the agents and rooms messages can be sent to. Rooms include the ids of their member agents."),
	)
}

func sendRoomTool() mcp.Tool {
	return mcp.NewTool("send_room",
		mcp.WithDescription("Post a message to a room. Long messages are split into labeled parts."),
		mcp.WithString("room_id",
			mcp.Required(),
			mcp.Description("Room UUID from list_targets"),
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Message text. In code mode, a GitHub file URL or owner/repo/path is fetched and sent instead."),
		),
		mcp.WithString("mode",
			mcp.Description("plaintext (default), code or url"),
			mcp.Enum("plaintext", "code", "url"),
		),
	)
}

func sendDirectTool() mcp.Tool {
	return mcp.NewTool("send_direct",
		mcp.WithDescription("Send a direct message to one agent and return its reply."),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Agent UUID from list_targets"),
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Message text"),
		),
	)
}

func requestReplyTool() mcp.Tool {
	return mcp.NewTool("request_reply",
		mcp.WithDescription("Ask an agent in a room to speak next and return what it said."),
		mcp.WithString("room_id",
			mcp.Required(),
			mcp.Description("Room UUID"),
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("UUID of the agent that should reply"),
		),
		mcp.WithString("context",
			mcp.Description("Optional note shown to operators alongside the request; it is not posted to the room"),
		),
	)
}

func startLoopTool() mcp.Tool {
	return mcp.NewTool("start_loop",
		mcp.WithDescription("Start a conversation loop in a room: the agent's replies are polished and posted back until the duration elapses or stop_loop is called."),
		mcp.WithString("room_id",
			mcp.Required(),
			mcp.Description("Room UUID"),
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("UUID of the agent that replies each turn"),
		),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("Opening prompt"),
		),
		mcp.WithNumber("duration_seconds",
			mcp.Required(),
			mcp.Description("How long the loop runs, in seconds"),
		),
		mcp.WithString("mode",
			mcp.Description("Polish tone for each turn. Default: casual"),
		),
	)
}

func stopLoopTool() mcp.Tool {
	return mcp.NewTool("stop_loop",
		mcp.WithDescription("Stop the loop running in a room."),
		mcp.WithString("room_id",
			mcp.Required(),
			mcp.Description("Room UUID"),
		),
	)
}

func listLoopsTool() mcp.Tool {
	return mcp.NewTool("list_loops",
		mcp.WithDescription("List recent loops with their status and turn counts."),
		mcp.WithBoolean("active",
			mcp.Description("Only list running loops. Default: false"),
		),
	)
}

func polishTool() mcp.Tool {
	return mcp.NewTool("polish",
		mcp.WithDescription("Rewrite text in the given tone without sending it."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to polish"),
		),
		mcp.WithString("tone",
			mcp.Description("casual (default), formal, friendly, concise, ..."),
		),
	)
}

func (h *handlers) listTargets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	targets, err := h.backend.Targets(ctx)
	if err != nil {
		return failed("list targets", err), nil
	}
	return jsonResult(targets)
}

func (h *handlers) sendRoom(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	roomID := stringArg(args, "room_id")
	text := stringArg(args, "text")
	mode := stringArg(args, "mode")
	if roomID == "" {
		return mcp.NewToolResultError("room_id is required"), nil
	}
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}
	if mode == "" {
		mode = gateway.ModePlaintext
	}

	res, err := h.backend.SendRoom(ctx, roomID, text, mode)
	if err != nil {
		return failed("send", err), nil
	}
	return mcp.NewToolResultText(describeResult(res, "Message sent.")), nil
}

func (h *handlers) sendDirect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	agentID := stringArg(args, "agent_id")
	text := stringArg(args, "text")
	if agentID == "" {
		return mcp.NewToolResultError("agent_id is required"), nil
	}
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	res, err := h.backend.SendDirect(ctx, agentID, text)
	if err != nil {
		return failed("send", err), nil
	}
	return mcp.NewToolResultText(describeResult(res, "Message sent; no reply.")), nil
}

func (h *handlers) requestReply(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	roomID := stringArg(args, "room_id")
	agentID := stringArg(args, "agent_id")
	if roomID == "" || agentID == "" {
		return mcp.NewToolResultError("room_id and agent_id are required"), nil
	}

	res, err := h.backend.RequestReply(ctx, roomID, agentID, stringArg(args, "context"))
	if err != nil {
		return failed("request reply", err), nil
	}
	return mcp.NewToolResultText(describeResult(res, "The agent did not reply.")), nil
}

func (h *handlers) startLoop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	roomID := stringArg(args, "room_id")
	agentID := stringArg(args, "agent_id")
	prompt := stringArg(args, "prompt")
	seconds, _ := args["duration_seconds"].(float64)
	switch {
	case roomID == "" || agentID == "":
		return mcp.NewToolResultError("room_id and agent_id are required"), nil
	case strings.TrimSpace(prompt) == "":
		return mcp.NewToolResultError("prompt is required"), nil
	case seconds < 1:
		return mcp.NewToolResultError("duration_seconds must be a positive number"), nil
	}

	status, err := h.backend.StartLoop(ctx, relay.LoopRequest{
		RoomID:   roomID,
		AgentID:  agentID,
		Prompt:   prompt,
		Mode:     stringArg(args, "mode"),
		Duration: time.Duration(seconds) * time.Second,
	})
	if err != nil {
		return failed("start loop", err), nil
	}
	return mcp.NewToolResultText(status), nil
}

func (h *handlers) stopLoop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID := stringArg(arguments(req), "room_id")
	if roomID == "" {
		return mcp.NewToolResultError("room_id is required"), nil
	}
	status, err := h.backend.StopLoop(ctx, roomID)
	if err != nil {
		return failed("stop loop", err), nil
	}
	return mcp.NewToolResultText(status), nil
}

func (h *handlers) listLoops(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	active, _ := arguments(req)["active"].(bool)
	loops, err := h.backend.Loops(ctx, active)
	if err != nil {
		return failed("list loops", err), nil
	}
	return jsonResult(loops)
}

func (h *handlers) polish(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	text := stringArg(args, "text")
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}
	polished, err := h.backend.Polish(ctx, text, stringArg(args, "tone"))
	if err != nil {
		return failed("polish", err), nil
	}
	return mcp.NewToolResultText(polished), nil
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}

// failed reports err to the client as a tool error rather than a protocol
// error, so the model can read it.
func failed(op string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %s", op, relay.Describe(err)))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func describeResult(res relay.SendResult, empty string) string {
	var b strings.Builder
	if res.Status != "" {
		b.WriteString(res.Status)
	}
	if res.Reply != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		from := res.From
		if from == "" {
			from = "Agent"
		}
		fmt.Fprintf(&b, "%s: %s", from, res.Reply)
	}
	if b.Len() == 0 {
		return empty
	}
	return b.String()
}
