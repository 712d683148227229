package dispatch

import (
	"context"
	"strconv"
	"time"

	"Guardline/internal/models"
	"Guardline/pkg/errors"
	"Guardline/pkg/logger"
	"Guardline/pkg/notification"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBSilentMode records silent-mode sessions and tells the device to toggle
// its ringer through a data push.
type DBSilentMode struct {
	db   *gorm.DB
	push *notification.Dispatcher
	now  Clock
}

// NewDBSilentMode accepts a nil dispatcher, in which case sessions are only
// recorded.
func NewDBSilentMode(db *gorm.DB, push *notification.Dispatcher, now Clock) *DBSilentMode {
	if now == nil {
		now = SystemClock
	}
	return &DBSilentMode{db: db, push: push, now: now}
}

func (s *DBSilentMode) Activate(ctx context.Context, userID, requestID uuid.UUID, d time.Duration) error {
	session := models.SilentModeSession{
		UserID:    userID,
		RequestID: requestID,
		ExpiresAt: s.now().Add(d),
		Active:    true,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return errors.Wrap(err, "create silent mode session")
	}
	return s.notify(ctx, userID, map[string]string{
		"type":             "silent_mode",
		"action":           "activate",
		"request_id":       requestID.String(),
		"duration_seconds": strconv.Itoa(int(d / time.Second)),
	})
}

func (s *DBSilentMode) Deactivate(ctx context.Context, userID, requestID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.SilentModeSession{}).
		Where("user_id = ? AND request_id = ? AND active = ?", userID, requestID, true).
		Updates(map[string]any{"active": false, "deactivated_at": s.now()})
	if res.Error != nil {
		return errors.Wrap(res.Error, "deactivate silent mode session")
	}
	if res.RowsAffected == 0 {
		return nil
	}
	return s.notify(ctx, userID, map[string]string{
		"type":       "silent_mode",
		"action":     "deactivate",
		"request_id": requestID.String(),
	})
}

// SweepExpired closes sessions whose expiry has passed and returns how
// many were closed. The device restores its ringer on its own timer, so no
// push is sent.
func (s *DBSilentMode) SweepExpired(ctx context.Context) (int64, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.SilentModeSession{}).
		Where("active = ? AND expires_at <= ?", true, now).
		Updates(map[string]any{"active": false, "deactivated_at": now})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "sweep silent mode sessions")
	}
	if res.RowsAffected > 0 {
		logger.Info("expired silent mode sessions closed", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// Active lists the open sessions of a user.
func (s *DBSilentMode) Active(ctx context.Context, userID uuid.UUID) ([]models.SilentModeSession, error) {
	var rows []models.SilentModeSession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND active = ? AND expires_at > ?", userID, true, s.now()).
		Order("created_at DESC").Find(&rows).Error
	return rows, err
}

func (s *DBSilentMode) notify(ctx context.Context, userID uuid.UUID, data map[string]string) error {
	if s.push == nil {
		return nil
	}
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "push_token").First(&user, "id = ?", userID).Error; err != nil {
		return errors.Wrap(err, "load user")
	}
	if user.PushToken == "" {
		return nil
	}
	return s.push.PushData(ctx, user.PushToken, data).Err()
}
