package dispatch

import (
	"context"
	"time"

	"Guardline/internal/geo"
	"Guardline/internal/models"
	"Guardline/pkg/cache"
	"Guardline/pkg/errors"
	"Guardline/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	RateLimitKeyPrefix = "rate_limit:emergency:"
	RateLimitWindow    = 5 * time.Minute
	RateLimitMax       = 3

	DuplicateWindow   = 10 * time.Minute
	DuplicateRadiusKm = 0.1
)

// Guard applies the per-phone rate limit and the proximity duplicate check.
type Guard struct {
	cache cache.Cache
	db    *gorm.DB
	now   Clock
}

func NewGuard(c cache.Cache, db *gorm.DB, now Clock) *Guard {
	if now == nil {
		now = SystemClock
	}
	return &Guard{cache: c, db: db, now: now}
}

func RateLimitKey(phone string) string {
	return RateLimitKeyPrefix + phone
}

// CheckRateLimit fails when the phone already has RateLimitMax submissions
// in the current window. A cache outage is logged and lets the request
// through.
func (g *Guard) CheckRateLimit(ctx context.Context, phone string) error {
	n, err := cache.GetInt64(ctx, g.cache, RateLimitKey(phone))
	if err != nil {
		logger.Warn("rate limit counter unreadable", zap.String("phone", phone), zap.Error(err))
		return nil
	}
	if n >= RateLimitMax {
		return ErrRateLimited
	}
	return nil
}

// RecordSubmission counts an accepted submission. The window starts at the
// first submission and is not extended by later ones.
func (g *Guard) RecordSubmission(ctx context.Context, phone string) (int64, error) {
	return g.cache.IncrWithTTL(ctx, RateLimitKey(phone), 1, RateLimitWindow)
}

// CheckDuplicate fails when the phone has an active request of the same
// service type created within DuplicateWindow and within DuplicateRadiusKm
// of p.
func (g *Guard) CheckDuplicate(ctx context.Context, phone string, st models.ServiceType, p geo.Point) error {
	type candidate struct {
		ID  uuid.UUID
		Lat float64
		Lon float64
	}
	var recent []candidate
	err := g.db.WithContext(ctx).Model(&models.PanicRequest{}).
		Select("id", "lat", "lon").
		Where("phone = ? AND service_type = ? AND created_at >= ? AND status IN ?",
			phone, st, g.now().Add(-DuplicateWindow), models.ActiveStatuses).
		Order("created_at DESC").
		Scan(&recent).Error
	if err != nil {
		return errors.Wrap(err, "query recent requests")
	}

	for _, r := range recent {
		if d := geo.Distance(p, geo.Point{Lat: r.Lat, Lon: r.Lon}); d <= DuplicateRadiusKm {
			return errors.WithCodef(CodeDuplicateRequest,
				"an active %s request %s already exists %.0f m from this location", st, r.ID, d*1000).
				WithContext("request_id", r.ID.String())
		}
	}
	return nil
}
