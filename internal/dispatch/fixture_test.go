package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"Guardline/internal/geo"
	"Guardline/internal/models"
	"Guardline/internal/spatial"
	"Guardline/pkg/cache"
	"Guardline/pkg/notification"
	"Guardline/pkg/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var jhb = geo.Point{Lat: -26.2041, Lon: 28.0473}

const kmPerDegLat = 111.2

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sent struct {
	kind string
	to   []notification.Recipient
	req  models.PanicRequest
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (n *recordingNotifier) record(kind string, to []notification.Recipient, req *models.PanicRequest) (notification.Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{kind: kind, to: to, req: *req})
	return notification.Result{}, n.err
}

func (n *recordingNotifier) SendEmergencyConfirmation(_ context.Context, to notification.Recipient, req *models.PanicRequest) (notification.Result, error) {
	return n.record("confirmation", []notification.Recipient{to}, req)
}

func (n *recordingNotifier) SendProviderAssignment(_ context.Context, to notification.Recipient, req *models.PanicRequest) (notification.Result, error) {
	return n.record("provider", []notification.Recipient{to}, req)
}

func (n *recordingNotifier) SendAgentAssignment(_ context.Context, to []notification.Recipient, req *models.PanicRequest) (notification.Result, error) {
	return n.record("agent", to, req)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		out = append(out, s.kind)
	}
	return out
}

type silentCall struct {
	activate  bool
	userID    uuid.UUID
	requestID uuid.UUID
	d         time.Duration
}

type recordingSilentMode struct {
	mu    sync.Mutex
	calls []silentCall
	err   error
}

func (s *recordingSilentMode) Activate(_ context.Context, userID, requestID uuid.UUID, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, silentCall{activate: true, userID: userID, requestID: requestID, d: d})
	return s.err
}

func (s *recordingSilentMode) Deactivate(_ context.Context, userID, requestID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, silentCall{userID: userID, requestID: requestID})
	return s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (p *recordingPublisher) PublishStatus(_ context.Context, ev StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	t         *testing.T
	db        *gorm.DB
	cache     cache.Cache
	clock     *fakeClock
	notifier  *recordingNotifier
	silent    *recordingSilentMode
	publisher *recordingPublisher
	engine    *Engine
	assigner  *Assigner

	firm         *models.SecurityFirm
	subscription *models.Subscription
	group        *models.UserGroup
	owner        *models.User
	team         *models.Team
	agentUser    *models.User
	agent        *models.FirmPersonnel
	provider     *models.ServiceProvider
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := util.InitDatabase(util.DriverSQLite, "file::memory:", false)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func square(center geo.Point, halfDeg float64) geo.Polygon {
	return geo.NewPolygon(
		geo.Point{Lat: center.Lat - halfDeg, Lon: center.Lon - halfDeg},
		geo.Point{Lat: center.Lat - halfDeg, Lon: center.Lon + halfDeg},
		geo.Point{Lat: center.Lat + halfDeg, Lon: center.Lon + halfDeg},
		geo.Point{Lat: center.Lat + halfDeg, Lon: center.Lon - halfDeg},
	)
}

// newFixture seeds one verified firm covering jhb, a subscribed group owned
// by a user, a team with one field agent and an ambulance provider.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := cache.NewLocalCache(cache.DefaultLocalConfig())
	t.Cleanup(func() { _ = c.Close() })
	return newFixtureWithCache(t, c)
}

func newFixtureWithCache(t *testing.T, c cache.Cache) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		db:        openDB(t),
		cache:     c,
		clock:     &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		notifier:  &recordingNotifier{},
		silent:    &recordingSilentMode{},
		publisher: &recordingPublisher{},
	}
	f.engine = NewEngine(f.db, c, spatial.NewInProcess(f.db),
		WithNotifier(f.notifier),
		WithSilentMode(f.silent),
		WithPublisher(f.publisher),
		WithClock(f.clock.Now),
		WithSyncSideEffects(),
	)
	f.assigner = NewAssigner(f.engine)

	f.firm = f.createFirm("Alpha Security", square(jhb, 0.05))
	area := f.firstArea(f.firm.ID)

	product := &models.SubscriptionProduct{FirmID: f.firm.ID, Name: "Family", IsActive: true}
	f.mustCreate(product)
	f.subscription = &models.Subscription{ProductID: product.ID, IsActive: true, ExpiresAt: f.clock.Now().AddDate(0, 1, 0)}
	f.mustCreate(f.subscription)

	f.owner = &models.User{Phone: "+27820000001", Email: "owner@example.com", DisplayName: "Owner", PushToken: "tok-owner"}
	f.mustCreate(f.owner)
	f.group = &models.UserGroup{UserID: f.owner.ID, Name: "Home", Lat: jhb.Lat, Lon: jhb.Lon, SubscriptionID: &f.subscription.ID}
	f.mustCreate(f.group)
	f.mustCreate(&models.GroupMembership{GroupID: f.group.ID, UserID: f.owner.ID, Role: models.GroupRoleOwner})

	f.team = &models.Team{FirmID: f.firm.ID, Name: "Alpha Response", CoverageAreaID: &area.ID, IsActive: true}
	f.mustCreate(f.team)
	f.agentUser = &models.User{Phone: "+27820000100", DisplayName: "Agent", PushToken: "tok-agent"}
	f.mustCreate(f.agentUser)
	f.agent = &models.FirmPersonnel{FirmID: f.firm.ID, UserID: f.agentUser.ID, Role: models.RoleFieldAgent, TeamID: &f.team.ID, IsActive: true}
	f.mustCreate(f.agent)

	f.provider = &models.ServiceProvider{FirmID: f.firm.ID, Name: "Rapid Ambulance", ServiceType: models.ServiceAmbulance,
		Phone: "+27110000000", Email: "ops@rapid.example", Lat: jhb.Lat, Lon: jhb.Lon, IsActive: true}
	f.mustCreate(f.provider)
	return f
}

func (f *fixture) mustCreate(v any) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(v).Error)
}

func (f *fixture) createFirm(name string, area geo.Polygon) *models.SecurityFirm {
	f.t.Helper()
	firm := &models.SecurityFirm{Name: name, VerificationStatus: models.VerificationApproved, IsActive: true}
	f.mustCreate(firm)
	f.mustCreate(&models.CoverageArea{FirmID: firm.ID, Name: name + " area", Boundary: datatypes.NewJSONType(area), IsActive: true})
	return firm
}

func (f *fixture) firstArea(firmID uuid.UUID) *models.CoverageArea {
	f.t.Helper()
	var a models.CoverageArea
	require.NoError(f.t, f.db.First(&a, "firm_id = ?", firmID).Error)
	return &a
}

func (f *fixture) input(st string, p geo.Point) SubmitInput {
	return SubmitInput{
		Phone:       f.owner.Phone,
		GroupID:     f.group.ID,
		ServiceType: st,
		Lat:         p.Lat,
		Lon:         p.Lon,
		Address:     "1 Main Rd",
	}
}

func (f *fixture) submit(st string) *models.PanicRequest {
	f.t.Helper()
	req, err := f.engine.Submit(context.Background(), f.input(st, jhb))
	require.NoError(f.t, err)
	return req
}

func (f *fixture) history(id uuid.UUID) []models.RequestStatusUpdate {
	f.t.Helper()
	rows, err := f.engine.History(context.Background(), id)
	require.NoError(f.t, err)
	return rows
}

func (f *fixture) reload(id uuid.UUID) *models.PanicRequest {
	f.t.Helper()
	req, err := f.engine.Get(context.Background(), id)
	require.NoError(f.t, err)
	return req
}

// north returns p moved km kilometres north.
func north(p geo.Point, km float64) geo.Point {
	return geo.Point{Lat: p.Lat + km/kmPerDegLat, Lon: p.Lon}
}

func intp(v int) *int { return &v }
