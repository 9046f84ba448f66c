package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/premiumeclipse/essencefurro/internal/app"
	"github.com/premiumeclipse/essencefurro/internal/domain"
	"github.com/premiumeclipse/essencefurro/internal/platform/adminauth"
	"github.com/premiumeclipse/essencefurro/internal/platform/config"
	"github.com/stretchr/testify/require"
)

const testAdminSecret = "test-admin-secret-at-least-32-bytes"

// --- Mock implementations ---

type mockStatsService struct {
	getFn   func(ctx context.Context) (domain.Stats, error)
	mergeFn func(ctx context.Context, patch domain.StatsPatch) (domain.Stats, error)
}

func (m *mockStatsService) Get(ctx context.Context) (domain.Stats, error) {
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	return domain.Stats{}, nil
}

func (m *mockStatsService) Merge(ctx context.Context, patch domain.StatsPatch) (domain.Stats, error) {
	if m.mergeFn != nil {
		return m.mergeFn(ctx, patch)
	}
	return patch.Apply(domain.Stats{}), nil
}

type mockIncidentService struct {
	createFn     func(ctx context.Context, req app.CreateIncidentRequest) (domain.Incident, error)
	updateFn     func(ctx context.Context, id int64, req app.UpdateIncidentRequest) (domain.Incident, error)
	listPublicFn func(ctx context.Context) ([]domain.Incident, error)
	listAllFn    func(ctx context.Context) ([]domain.Incident, error)
}

func (m *mockIncidentService) Create(ctx context.Context, req app.CreateIncidentRequest) (domain.Incident, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return domain.Incident{}, errors.New("not implemented")
}

func (m *mockIncidentService) Update(ctx context.Context, id int64, req app.UpdateIncidentRequest) (domain.Incident, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, req)
	}
	return domain.Incident{}, errors.New("not implemented")
}

func (m *mockIncidentService) ListPublic(ctx context.Context) ([]domain.Incident, error) {
	if m.listPublicFn != nil {
		return m.listPublicFn(ctx)
	}
	return []domain.Incident{}, nil
}

func (m *mockIncidentService) ListAll(ctx context.Context) ([]domain.Incident, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return []domain.Incident{}, nil
}

type mockRelay struct {
	status domain.BotStatus
	users  []domain.UserSession
	err    error
}

func (m *mockRelay) BotStatus(context.Context) (domain.BotStatus, error) {
	return m.status, m.err
}

func (m *mockRelay) ActiveUsers(context.Context) ([]domain.UserSession, error) {
	return m.users, m.err
}

type fixedLoad struct{ current, limit int64 }

func (l fixedLoad) Current() int64 { return l.current }
func (l fixedLoad) Max() int64     { return l.limit }

// --- Test helpers ---

type testServer struct {
	*Server
	clock  *clockwork.FakeClock
	tokens *adminauth.Tokens
}

type testSetup struct {
	deps Dependencies
	cfg  *config.Config
}

type testOption func(*testSetup)

func newTestServer(t *testing.T, opts ...testOption) *testServer {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tokens := adminauth.New(testAdminSecret, clock)

	setup := &testSetup{
		deps: Dependencies{
			Stats:     &mockStatsService{},
			Incidents: &mockIncidentService{},
			Relay:     &mockRelay{users: []domain.UserSession{}},
			Admin:     tokens,
			Clock:     clock,
		},
		cfg: &config.Config{
			Port:           "0",
			AdminJWTSecret: testAdminSecret,
			APIRateLimit:   100,
			APIRateBurst:   100,
		},
	}
	for _, opt := range opts {
		opt(setup)
	}

	return &testServer{Server: NewServer(setup.cfg, setup.deps), clock: clock, tokens: tokens}
}

func withStats(svc statsService) testOption {
	return func(s *testSetup) { s.deps.Stats = svc }
}

func withIncidents(svc incidentService) testOption {
	return func(s *testSetup) { s.deps.Incidents = svc }
}

func withRelay(r relayStatus) testOption {
	return func(s *testSetup) { s.deps.Relay = r }
}

func withConnections(current, limit int64) testOption {
	return func(s *testSetup) { s.deps.Connections = fixedLoad{current: current, limit: limit} }
}

func withHealthChecks(checks ...HealthCheck) testOption {
	return func(s *testSetup) { s.deps.HealthChecks = checks }
}

func withRateLimit(perSecond float64, burst int) testOption {
	return func(s *testSetup) {
		s.cfg.APIRateLimit = perSecond
		s.cfg.APIRateBurst = burst
	}
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	token, err := s.tokens.Issue("ops", time.Hour)
	require.NoError(t, err)
	return token
}

// do runs a request through the full router, middleware included.
func (s *testServer) do(method, target, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}
