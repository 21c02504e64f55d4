package gateway

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/agentapi"
)

// defaultRoomNote is used when a room is created without a note.
const defaultRoomNote = "A room for the operator and their agents."

// registerRoutes sets up all gateway routes on the Gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, statusResponse{Status: "ok"})
	})

	api := router.Group("/api")
	api.GET("/targets", s.handleTargets)
	api.POST("/polish", s.handlePolish)
	api.POST("/agents/:id/send", s.handleSendDirect)
	api.POST("/rooms", s.handleCreateRoom)
	api.DELETE("/rooms/:id", s.handleDeleteRoom)
	api.POST("/rooms/:id/send", s.handleSendRoom)
	api.POST("/rooms/:id/request-reply", s.handleRequestReply)
	api.POST("/rooms/:id/loop", s.handleStartLoop)
	api.POST("/rooms/:id/loop/stop", s.handleStopLoop)
	api.GET("/loops", s.handleLoops)
	api.GET("/events", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})
}

func (s *Server) handleTargets(c *gin.Context) {
	ctx := c.Request.Context()
	agents, err := s.api.ListAgents(ctx)
	if err != nil {
		abort(c, err)
		return
	}
	rooms, err := s.api.ListRooms(ctx)
	if err != nil {
		abort(c, err)
		return
	}

	out := targetsResponse{Targets: make([]TargetInfo, 0, len(agents)+len(rooms))}
	ids := make([]string, 0, len(agents))
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		out.Targets = append(out.Targets, TargetInfo{ID: a.UUID, DisplayName: a.Name, Kind: "agent"})
		ids = append(ids, a.UUID)
		names = append(names, a.Name)
	}
	for _, r := range rooms {
		t := TargetInfo{ID: r.UUID, DisplayName: r.Name, Kind: "room"}
		for _, m := range r.Nomis {
			t.Members = append(t.Members, m.UUID)
		}
		out.Targets = append(out.Targets, t)
	}
	s.rememberNames(ids, names)
	c.JSON(http.StatusOK, out)
}

func (s *Server) handlePolish(c *gin.Context) {
	var req polishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, badRequest("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		abort(c, badRequest("text is required"))
		return
	}
	polished, err := s.polisher.Polish(c.Request.Context(), req.Text, req.Mode)
	if err != nil {
		log.Printf("gateway: polish: %v", err)
		abort(c, badGateway(fmt.Sprintf("polish failed: %v", err)))
		return
	}
	c.JSON(http.StatusOK, polishResponse{PolishedText: polished})
}

func toSendResponse(res Result) sendResponse {
	out := sendResponse{Status: res.Status, Parts: res.Parts}
	if res.Sent != "" {
		out.Sent = &textBody{Text: res.Sent}
	}
	if res.Reply != "" {
		out.Reply = &textBody{Text: res.Reply}
	}
	return out
}

func (s *Server) handleSendRoom(c *gin.Context) {
	roomID := c.Param("id")
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, badRequest("invalid request body"))
		return
	}
	res, err := s.sender.SendRoom(c.Request.Context(), roomID, req.Text, req.Mode)
	if err != nil {
		log.Printf("gateway: send to room %s: %v", roomID, err)
		abort(c, err)
		return
	}
	s.hub.Broadcast(EventMessageSent, gin.H{"roomId": roomID, "parts": res.Parts})
	c.JSON(http.StatusOK, toSendResponse(res))
}

func (s *Server) handleSendDirect(c *gin.Context) {
	agentID := c.Param("id")
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, badRequest("invalid request body"))
		return
	}
	res, err := s.sender.SendDirect(c.Request.Context(), agentID, req.Text)
	if err != nil {
		log.Printf("gateway: send to agent %s: %v", agentID, err)
		abort(c, err)
		return
	}
	out := toSendResponse(res)
	if out.Reply != nil {
		out.From = s.Name(agentID)
	}
	s.hub.Broadcast(EventMessageSent, gin.H{"agentId": agentID, "parts": res.Parts})
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleRequestReply(c *gin.Context) {
	roomID := c.Param("id")
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abort(c, badRequest("invalid request body"))
		return
	}
	agentID := req.AgentID
	if agentID == "" {
		agentID = s.defaultAgent
	}
	if agentID == "" {
		abort(c, badRequest("agentId is required"))
		return
	}

	s.hub.Broadcast(EventReplyRequested, gin.H{"roomId": roomID, "agentId": agentID, "contextText": req.ContextText})
	resp, err := s.api.RequestReply(c.Request.Context(), roomID, agentID)
	if err != nil {
		log.Printf("gateway: request reply in room %s: %v", roomID, err)
		abort(c, err)
		return
	}
	out := sendResponse{}
	if text := resp.ReplyText(); text != "" {
		out.Reply = &textBody{Text: text}
		out.From = s.Name(agentID)
	} else {
		log.Printf("gateway: request reply in room %s: no reply from %s", roomID, agentID)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleStartLoop(c *gin.Context) {
	roomID := c.Param("id")
	var req loopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, badRequest("invalid request body"))
		return
	}
	agentID := req.AgentID
	if agentID == "" {
		agentID = s.defaultAgent
	}
	sess, err := s.loops.Start(LoopStart{
		RoomID:   roomID,
		AgentID:  agentID,
		Prompt:   req.StartPrompt,
		Mode:     req.Mode,
		Duration: time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{
		Status: fmt.Sprintf("Loop started for %d seconds.", sess.DurationSec),
	})
}

func (s *Server) handleStopLoop(c *gin.Context) {
	status, err := s.loops.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: status})
}

func (s *Server) handleLoops(c *gin.Context) {
	sessions, err := s.loops.List(c.Query("active") == "true")
	if err != nil {
		abort(c, err)
		return
	}
	out := loopsResponse{Loops: make([]LoopInfo, 0, len(sessions))}
	for _, sess := range sessions {
		out.Loops = append(out.Loops, loopInfo(sess))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, badRequest("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Name) == "" || len(req.AgentIDs) == 0 {
		abort(c, badRequest("name and at least one agent id are required"))
		return
	}
	if len(req.AgentIDs) > 2 {
		abort(c, badRequest("a room holds at most 2 agents"))
		return
	}
	for _, id := range req.AgentIDs {
		if _, err := uuid.Parse(id); err != nil {
			abort(c, badRequest(fmt.Sprintf("invalid agent id %q", id)))
			return
		}
	}
	note := req.Note
	if note == "" {
		note = defaultRoomNote
	}
	backchanneling := true
	if req.Backchanneling != nil {
		backchanneling = *req.Backchanneling
	}

	room, err := s.api.CreateRoom(c.Request.Context(), agentapi.CreateRoomRequest{
		Name:                  req.Name,
		Note:                  note,
		BackchannelingEnabled: backchanneling,
		NomiUUIDs:             req.AgentIDs,
	})
	if err != nil {
		log.Printf("gateway: create room %q: %v", req.Name, err)
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (s *Server) handleDeleteRoom(c *gin.Context) {
	roomID := c.Param("id")
	if err := s.api.DeleteRoom(c.Request.Context(), roomID); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: fmt.Sprintf("Room '%s' deleted successfully.", roomID)})
}
