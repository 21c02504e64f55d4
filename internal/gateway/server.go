// Package gateway is the relay server: it fronts the companion-agent API and
// the polishing service, chunks long messages with retries, runs loops and
// streams loop events to operators.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ServerOpts holds parameters for creating a Server.
type ServerOpts struct {
	API          AgentAPI
	Sender       *Sender
	Polisher     Polisher
	Loops        *LoopManager
	Hub          *Hub   // defaults to a new Hub
	DefaultAgent string // agent used when a request names none
}

// Server holds the gateway's collaborators and serves its HTTP API.
type Server struct {
	api          AgentAPI
	sender       *Sender
	polisher     Polisher
	loops        *LoopManager
	hub          *Hub
	defaultAgent string

	mu    sync.RWMutex
	names map[string]string // agent id -> display name
}

// NewServer creates a Server.
func NewServer(opts ServerOpts) (*Server, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("gateway: api is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("gateway: sender is required")
	}
	if opts.Polisher == nil {
		return nil, fmt.Errorf("gateway: polisher is required")
	}
	if opts.Loops == nil {
		return nil, fmt.Errorf("gateway: loop manager is required")
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewHub()
	}
	return &Server{
		api:          opts.API,
		sender:       opts.Sender,
		polisher:     opts.Polisher,
		loops:        opts.Loops,
		hub:          hub,
		defaultAgent: opts.DefaultAgent,
		names:        make(map[string]string),
	}, nil
}

// Name returns the cached display name of an agent, or "" if unknown.
func (s *Server) Name(agentID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names[agentID]
}

func (s *Server) rememberNames(ids, names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		s.names[id] = names[i]
	}
}

// Handler returns the gin engine serving the gateway API.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)
	return router
}

// StartOpts holds configuration for running the gateway.
type StartOpts struct {
	Server *Server
	Listen string // defaults to ":8765"
	Out    io.Writer
}

// Start serves the gateway until ctx is cancelled, then shuts down
// gracefully and stops every running loop.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Server == nil {
		return fmt.Errorf("gateway: server is required")
	}
	if opts.Listen == "" {
		opts.Listen = ":8765"
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              opts.Listen,
		Handler:           opts.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Gateway running at %s\n", displayAddr(opts.Listen))
	}

	err := srv.ListenAndServe()
	opts.Server.loops.Shutdown()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

func displayAddr(listen string) string {
	if len(listen) > 0 && listen[0] == ':' {
		return "http://localhost" + listen
	}
	return "http://" + listen
}
