package store

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Sweeper periodically expires loop sessions whose deadline has passed, so a
// crashed loop runner never holds a room's lease forever.
type Sweeper struct {
	db   *gorm.DB
	cron *cron.Cron
	// OnExpire, when set, is called after a sweep that expired sessions.
	OnExpire func(n int64)
}

// NewSweeper schedules a sweep on the given cron spec (5-field or @every).
func NewSweeper(db *gorm.DB, spec string) (*Sweeper, error) {
	if db == nil {
		return nil, fmt.Errorf("store: sweeper: db is required")
	}
	s := &Sweeper{db: db, cron: cron.New()}
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return nil, fmt.Errorf("store: sweeper: parse %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running scheduled sweeps in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one expiry pass immediately.
func (s *Sweeper) Sweep() {
	n, err := ExpireStale(s.db, time.Now())
	if err != nil {
		log.Printf("store: sweep: %v", err)
		return
	}
	if n > 0 {
		log.Printf("store: sweep expired %d loop session(s)", n)
		if s.OnExpire != nil {
			s.OnExpire(n)
		}
	}
}
