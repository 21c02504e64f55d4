package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/store"
	"gorm.io/gorm"
)

// DefaultTurnInterval is the pause between loop turns.
const DefaultTurnInterval = 5 * time.Second

// Polisher rewrites text in a tone.
type Polisher interface {
	Polish(ctx context.Context, text, mode string) (string, error)
}

// LoopManagerOpts holds parameters for creating a LoopManager.
type LoopManagerOpts struct {
	DB           *gorm.DB
	Sender       *Sender
	API          AgentAPI
	Polisher     Polisher
	Hub          *Hub                        // optional
	Names        func(agentID string) string // optional display names for events
	TurnInterval time.Duration               // defaults to DefaultTurnInterval
	MaxDuration  time.Duration               // zero means unbounded
}

// LoopManager runs time-bounded conversation loops, at most one per room.
// Each turn posts the current prompt to the room, asks the loop agent to
// reply, and polishes the reply into the next prompt.
type LoopManager struct {
	db          *gorm.DB
	sender      *Sender
	api         AgentAPI
	polisher    Polisher
	hub         *Hub
	names       func(string) string
	interval    time.Duration
	maxDuration time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	loops map[string]*activeLoop // key: room id
	wg    sync.WaitGroup
}

type activeLoop struct {
	session *models.LoopSession
	cancel  context.CancelFunc
	stopped bool
	done    chan struct{}
}

// LoopStart is a request to start a loop.
type LoopStart struct {
	RoomID   string
	AgentID  string
	Prompt   string
	Mode     string
	Duration time.Duration
}

// NewLoopManager creates a LoopManager.
func NewLoopManager(opts LoopManagerOpts) (*LoopManager, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("gateway: loop manager: db is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("gateway: loop manager: sender is required")
	}
	if opts.API == nil {
		return nil, fmt.Errorf("gateway: loop manager: api is required")
	}
	if opts.Polisher == nil {
		return nil, fmt.Errorf("gateway: loop manager: polisher is required")
	}
	interval := opts.TurnInterval
	if interval <= 0 {
		interval = DefaultTurnInterval
	}
	return &LoopManager{
		db:          opts.DB,
		sender:      opts.Sender,
		api:         opts.API,
		polisher:    opts.Polisher,
		hub:         opts.Hub,
		names:       opts.Names,
		interval:    interval,
		maxDuration: opts.MaxDuration,
		sleep:       sleepCtx,
		loops:       make(map[string]*activeLoop),
	}, nil
}

// Start takes the room's loop lease and runs the loop in the background.
// The loop outlives the caller's request; it ends when its duration
// elapses, on Stop, or on the first failed turn.
func (lm *LoopManager) Start(req LoopStart) (*models.LoopSession, error) {
	switch {
	case strings.TrimSpace(req.RoomID) == "":
		return nil, badRequest("room id is required")
	case strings.TrimSpace(req.AgentID) == "":
		return nil, badRequest("agentId is required")
	case strings.TrimSpace(req.Prompt) == "":
		return nil, badRequest("startPrompt is required")
	case req.Duration <= 0:
		return nil, badRequest("durationSeconds must be a positive integer")
	case lm.maxDuration > 0 && req.Duration > lm.maxDuration:
		return nil, badRequest(fmt.Sprintf("durationSeconds must be at most %d", int(lm.maxDuration/time.Second)))
	}

	sess, err := store.AcquireLoop(lm.db, req.RoomID, req.AgentID, req.Prompt, req.Mode, req.Duration)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithDeadline(context.Background(), sess.ExpiresAt)
	al := &activeLoop{session: sess, cancel: cancel, done: make(chan struct{})}
	lm.mu.Lock()
	lm.loops[req.RoomID] = al
	lm.mu.Unlock()

	log.Printf("gateway: loop %d started [room=%s agent=%s duration=%s]",
		sess.ID, sess.RoomID, sess.AgentID, req.Duration)
	lm.broadcast(EventLoopStarted, LoopEvent{RoomID: sess.RoomID, AgentID: sess.AgentID, AgentName: lm.name(sess.AgentID)})

	lm.wg.Add(1)
	go lm.run(ctx, al)
	return sess, nil
}

// Stop ends the loop in roomID and waits for it to finish. A room without a
// loop is not an error; the returned status says so.
func (lm *LoopManager) Stop(ctx context.Context, roomID string) (string, error) {
	lm.mu.Lock()
	al, ok := lm.loops[roomID]
	if ok {
		al.stopped = true
	}
	lm.mu.Unlock()

	if !ok {
		// A row can outlive its runner after a restart.
		sess, err := store.ActiveLoop(lm.db, roomID)
		if errors.Is(err, store.ErrNoLoop) {
			return "No active loop in this room.", nil
		}
		if err != nil {
			return "", err
		}
		if err := store.ReleaseLoop(lm.db, sess.ID, models.LoopStopped, ""); err != nil {
			return "", err
		}
		return "Loop stopped.", nil
	}

	al.cancel()
	select {
	case <-al.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "Loop stopped.", nil
}

// List returns recent loop sessions, newest first.
func (lm *LoopManager) List(activeOnly bool) ([]models.LoopSession, error) {
	return store.ListLoops(lm.db, activeOnly, 50)
}

// Active reports whether a loop is running in roomID in this process.
func (lm *LoopManager) Active(roomID string) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	_, ok := lm.loops[roomID]
	return ok
}

// Shutdown stops every loop and waits for them to finish.
func (lm *LoopManager) Shutdown() {
	lm.mu.Lock()
	for _, al := range lm.loops {
		al.stopped = true
		al.cancel()
	}
	lm.mu.Unlock()
	lm.wg.Wait()
}

func (lm *LoopManager) run(ctx context.Context, al *activeLoop) {
	defer lm.wg.Done()
	defer close(al.done)
	defer al.cancel()

	sess := al.session
	prompt := sess.StartPrompt
	var runErr error
	leaseLost := false

	for turn := 1; ctx.Err() == nil; turn++ {
		reply, err := lm.turn(ctx, sess, prompt)
		if err != nil {
			if ctx.Err() == nil {
				runErr = err
			}
			break
		}
		if err := store.RecordTurn(lm.db, sess.ID); err != nil {
			if errors.Is(err, store.ErrLeaseLost) {
				leaseLost = true
				break
			}
			log.Printf("gateway: loop %d: record turn: %v", sess.ID, err)
		}
		lm.broadcast(EventLoopTurn, LoopEvent{
			RoomID:    sess.RoomID,
			AgentID:   sess.AgentID,
			AgentName: lm.name(sess.AgentID),
			Turn:      turn,
			Reply:     reply,
		})

		next, err := lm.polisher.Polish(ctx, reply, sess.Mode)
		if err != nil {
			if ctx.Err() == nil {
				runErr = fmt.Errorf("polish: %w", err)
			}
			break
		}
		prompt = next

		if err := lm.sleep(ctx, lm.interval); err != nil {
			break
		}
	}

	lm.mu.Lock()
	stopped := al.stopped
	// A newer loop may already hold the room.
	if lm.loops[sess.RoomID] == al {
		delete(lm.loops, sess.RoomID)
	}
	lm.mu.Unlock()

	status, reason, lastErr := models.LoopExpired, "duration elapsed", ""
	switch {
	case leaseLost:
		reason = "lease lost"
	case runErr != nil:
		status, reason, lastErr = models.LoopFailed, runErr.Error(), runErr.Error()
	case stopped:
		status, reason = models.LoopStopped, "stopped"
	}
	if err := store.ReleaseLoop(lm.db, sess.ID, status, lastErr); err != nil {
		if errors.Is(err, store.ErrLeaseLost) {
			reason = "lease lost"
		} else {
			log.Printf("gateway: loop %d: release: %v", sess.ID, err)
		}
	}
	log.Printf("gateway: loop %d ended [room=%s status=%s]", sess.ID, sess.RoomID, status)
	lm.broadcast(EventLoopEnded, LoopEvent{RoomID: sess.RoomID, AgentID: sess.AgentID, Reason: reason})
}

// turn posts prompt to the room and returns the loop agent's reply.
func (lm *LoopManager) turn(ctx context.Context, sess *models.LoopSession, prompt string) (string, error) {
	if _, err := lm.sender.SendRoom(ctx, sess.RoomID, prompt, ModePlaintext); err != nil {
		return "", fmt.Errorf("send prompt: %w", err)
	}
	resp, err := lm.api.RequestReply(ctx, sess.RoomID, sess.AgentID)
	if err != nil {
		return "", fmt.Errorf("request reply: %w", err)
	}
	reply := resp.ReplyText()
	if strings.TrimSpace(reply) == "" {
		return "", errors.New("the agent did not reply")
	}
	return reply, nil
}

func (lm *LoopManager) name(agentID string) string {
	if lm.names == nil {
		return ""
	}
	return lm.names(agentID)
}

func (lm *LoopManager) broadcast(name string, ev LoopEvent) {
	if lm.hub != nil {
		lm.hub.Broadcast(name, ev)
	}
}
