package listeners

import (
	"context"
	"sync"
	"time"

	"Guardline/internal/dispatch"
	"Guardline/internal/models"
	"Guardline/pkg/logger"
	"Guardline/pkg/metrics"
	"Guardline/pkg/realtime"
	"Guardline/pkg/search"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// GroupDashboard receives every status event.
	GroupDashboard = "dashboard"

	EventStatus = "status"
)

func RequestGroup(id uuid.UUID) string { return "request:" + id.String() }
func TeamGroup(id uuid.UUID) string    { return "team:" + id.String() }

// StatusFanout delivers committed request changes to realtime subscribers
// and keeps the search index current.
type StatusFanout struct {
	hub     *realtime.Hub
	index   search.Engine
	metrics *metrics.Metrics

	// last UpdatedAt delivered per request; older events are dropped
	mu   sync.Mutex
	seen *lru.Cache[uuid.UUID, time.Time]
}

// seenRequests bounds the per-request ordering memory.
const seenRequests = 10000

// NewStatusFanout accepts a nil index or metrics.
func NewStatusFanout(hub *realtime.Hub, index search.Engine, m *metrics.Metrics) *StatusFanout {
	seen, _ := lru.New[uuid.UUID, time.Time](seenRequests)
	return &StatusFanout{hub: hub, index: index, metrics: m, seen: seen}
}

var _ dispatch.Publisher = (*StatusFanout)(nil)

func (f *StatusFanout) PublishStatus(ctx context.Context, ev dispatch.StatusEvent) error {
	if f.stale(ev) {
		logger.Debug("stale status event dropped",
			zap.String("request_id", ev.Request.ID.String()), zap.String("status", string(ev.Status)))
		return nil
	}
	n := f.hub.Publish(RequestGroup(ev.Request.ID), EventStatus, ev)
	n += f.hub.Publish(GroupDashboard, EventStatus, ev)
	if ev.Request.AssignedTeamID != nil {
		n += f.hub.Publish(TeamGroup(*ev.Request.AssignedTeamID), EventStatus, ev)
	}
	f.metrics.ObserveRealtime(n)

	if f.index == nil {
		return nil
	}
	return f.index.Index(ctx, RequestDoc(&ev.Request))
}

// stale reports whether a newer version of the request was already
// delivered, and records ev otherwise.
func (f *StatusFanout) stale(ev dispatch.StatusEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if last, ok := f.seen.Get(ev.Request.ID); ok && ev.Request.UpdatedAt.Before(last) {
		return true
	}
	f.seen.Add(ev.Request.ID, ev.Request.UpdatedAt)
	return false
}

// RequestDoc is the search document for a request.
func RequestDoc(r *models.PanicRequest) search.Doc {
	fields := map[string]any{
		"address":      r.Address,
		"description":  r.Description,
		"status":       string(r.Status),
		"service_type": string(r.ServiceType),
		"phone":        r.Phone,
		"group_id":     r.GroupID.String(),
		"created_at":   r.CreatedAt,
		"location":     map[string]any{"lat": r.Lat, "lon": r.Lon},
	}
	if r.AssignedTeamID != nil {
		fields["team_id"] = r.AssignedTeamID.String()
	}
	return search.Doc{ID: r.ID.String(), Type: search.TypePanicRequest, Fields: fields}
}

// Backfill indexes requests already in the database, newest first, up to
// max documents. It is used at startup when the index lives in memory.
func Backfill(ctx context.Context, db *gorm.DB, index search.Engine, max int) (int, error) {
	const page = 200
	done := 0
	for done < max {
		limit := min(page, max-done)
		rows, _, err := models.ListPanicRequests(db.WithContext(ctx), models.RequestFilter{Offset: done, Limit: limit})
		if err != nil {
			return done, err
		}
		for i := range rows {
			if err := index.Index(ctx, RequestDoc(&rows[i])); err != nil {
				return done, err
			}
			done++
		}
		if len(rows) < limit {
			break
		}
	}
	logger.Info("search index backfilled", zap.Int("documents", done))
	return done, nil
}
