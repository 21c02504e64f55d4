package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// ErrLoopActive is returned when a room already has an active loop.
var ErrLoopActive = errors.New("loop already active")

// ErrNoLoop is returned when a room has no active loop to stop.
var ErrNoLoop = errors.New("no active loop")

// ErrLeaseLost is returned when a session is no longer active, because it
// was stopped, expired by a sweep, or taken over by a newer loop.
var ErrLeaseLost = errors.New("loop lease lost")

// AcquireLoop takes the loop lease for roomID. Sessions whose deadline has
// passed are expired first, then an existing active session on the same room
// blocks the new one.
func AcquireLoop(db *gorm.DB, roomID, agentID, prompt, mode string, duration time.Duration) (*models.LoopSession, error) {
	if roomID == "" {
		return nil, fmt.Errorf("store: acquire loop: room id is required")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("store: acquire loop: duration must be positive")
	}

	var session *models.LoopSession

	err := db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		if err := tx.Model(&models.LoopSession{}).
			Where("status = ? AND expires_at < ? AND room_id = ?", models.LoopActive, now, roomID).
			Updates(map[string]interface{}{
				"status":   models.LoopExpired,
				"ended_at": now,
			}).Error; err != nil {
			return fmt.Errorf("expire stale loops: %w", err)
		}

		var existing models.LoopSession
		result := tx.Where("status = ? AND room_id = ?", models.LoopActive, roomID).First(&existing)
		if result.Error == nil {
			return fmt.Errorf("%w in room %s (session %d)", ErrLoopActive, roomID, existing.ID)
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check existing loop: %w", result.Error)
		}

		session = &models.LoopSession{
			RoomID:      roomID,
			AgentID:     agentID,
			StartPrompt: prompt,
			Mode:        mode,
			DurationSec: int(duration / time.Second),
			Status:      models.LoopActive,
			ExpiresAt:   now.Add(duration),
		}
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("create loop: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: acquire loop: %w", err)
	}
	return session, nil
}

// ReleaseLoop ends an active session with the given final status.
func ReleaseLoop(db *gorm.DB, sessionID uint, status, lastErr string) error {
	updates := map[string]interface{}{
		"status":   status,
		"ended_at": time.Now(),
	}
	if lastErr != "" {
		if len(lastErr) > 512 {
			lastErr = lastErr[:512]
		}
		updates["last_error"] = lastErr
	}
	result := db.Model(&models.LoopSession{}).
		Where("id = ? AND status = ?", sessionID, models.LoopActive).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("store: release loop: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: release loop: session %d not found or not active: %w", sessionID, ErrLeaseLost)
	}
	return nil
}

// RecordTurn increments the turn counter of an active session.
func RecordTurn(db *gorm.DB, sessionID uint) error {
	result := db.Model(&models.LoopSession{}).
		Where("id = ? AND status = ?", sessionID, models.LoopActive).
		Update("turns", gorm.Expr("turns + 1"))
	if result.Error != nil {
		return fmt.Errorf("store: record turn: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: record turn: session %d not found or not active: %w", sessionID, ErrLeaseLost)
	}
	return nil
}

// ActiveLoop returns the unexpired active session for roomID, or ErrNoLoop.
func ActiveLoop(db *gorm.DB, roomID string) (*models.LoopSession, error) {
	var s models.LoopSession
	err := db.Where("status = ? AND room_id = ? AND expires_at >= ?", models.LoopActive, roomID, time.Now()).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoLoop
	}
	if err != nil {
		return nil, fmt.Errorf("store: active loop: %w", err)
	}
	return &s, nil
}

// ListLoops returns sessions newest first. With activeOnly, only sessions
// still holding a lease are returned.
func ListLoops(db *gorm.DB, activeOnly bool, limit int) ([]models.LoopSession, error) {
	q := db.Order("id DESC")
	if activeOnly {
		q = q.Where("status = ?", models.LoopActive)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var sessions []models.LoopSession
	if err := q.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("store: list loops: %w", err)
	}
	return sessions, nil
}

// ExpireStale marks every active session past its deadline as expired and
// returns how many were changed.
func ExpireStale(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Model(&models.LoopSession{}).
		Where("status = ? AND expires_at < ?", models.LoopActive, now).
		Updates(map[string]interface{}{
			"status":   models.LoopExpired,
			"ended_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("store: expire stale: %w", result.Error)
	}
	return result.RowsAffected, nil
}
