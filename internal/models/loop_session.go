package models

import "time"

// Loop session statuses.
const (
	LoopActive  = "active"
	LoopStopped = "stopped"
	LoopExpired = "expired"
	LoopFailed  = "failed"
)

// LoopSession tracks an automated conversation loop run by the gateway in a
// room. At most one active session may exist per room; the loop lease in the
// store package enforces this.
type LoopSession struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	RoomID      string    `gorm:"size:64;not null;index:idx_room_status"`
	AgentID     string    `gorm:"size:64;not null"`
	StartPrompt string    `gorm:"type:text"`
	Mode        string    `gorm:"size:16"`
	DurationSec int       `gorm:"not null"`
	Status      string    `gorm:"size:16;default:active;index:idx_room_status"` // active, stopped, expired, failed
	Turns       int       `gorm:"default:0"`
	LastError   string    `gorm:"size:512"`
	ExpiresAt   time.Time `gorm:"index"`
	CreatedAt   time.Time
	EndedAt     *time.Time
}

// Remaining returns how long the loop may still run at now.
func (s *LoopSession) Remaining(now time.Time) time.Duration {
	if s.Status != LoopActive {
		return 0
	}
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
