package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/circleup-app/circleup-backend/api/controllers"
	"github.com/circleup-app/circleup-backend/internal/dispatch"
	"github.com/circleup-app/circleup-backend/internal/inbox"
	"github.com/circleup-app/circleup-backend/internal/scheduler"
	pkgAuth "github.com/circleup-app/circleup-backend/pkg/auth"
	"github.com/circleup-app/circleup-backend/pkg/config"
	"github.com/circleup-app/circleup-backend/pkg/db/models"
	"github.com/circleup-app/circleup-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubSchedulerService struct{}

func (stubSchedulerService) ScheduleOnce(ctx context.Context, params scheduler.OnceParams) (*models.ScheduledNotification, error) {
	return &models.ScheduledNotification{ID: uuid.New()}, nil
}

func (stubSchedulerService) ScheduleRecurring(ctx context.Context, params scheduler.RecurringParams) (*models.ScheduledNotification, error) {
	return &models.ScheduledNotification{ID: uuid.New()}, nil
}

func (stubSchedulerService) Get(ctx context.Context, id uuid.UUID) (*models.ScheduledNotification, error) {
	return &models.ScheduledNotification{ID: id}, nil
}

func (stubSchedulerService) List(ctx context.Context, params scheduler.ListParams) (*scheduler.ListResult, error) {
	return &scheduler.ListResult{}, nil
}

func (stubSchedulerService) Cancel(ctx context.Context, id uuid.UUID) (*models.ScheduledNotification, error) {
	return &models.ScheduledNotification{ID: id}, nil
}

func (stubSchedulerService) Delete(ctx context.Context, id uuid.UUID) error {
	return nil
}

type stubInboxService struct{}

func (stubInboxService) List(ctx context.Context, params inbox.ListParams) (*inbox.ListResult, error) {
	return &inbox.ListResult{}, nil
}

func (stubInboxService) ListGroup(ctx context.Context, params inbox.GroupFeedParams) (*inbox.ListResult, error) {
	return &inbox.ListResult{}, nil
}

func (stubInboxService) MarkRead(ctx context.Context, userID, itemID uuid.UUID) error {
	return nil
}

func (stubInboxService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

type stubDispatcher struct{}

func (stubDispatcher) ProcessDue(ctx context.Context, trigger string) (*dispatch.Report, error) {
	return &dispatch.Report{}, nil
}

func routerTestConfig(adminSubjects ...string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		Auth: config.AuthConfig{
			JWTSecret:     "router-test-secret",
			JWTIssuer:     "circleup-test",
			AdminSubjects: adminSubjects,
			DispatchToken: "dispatch-secret",
		},
	}
}

func newTestRouter(cfg *config.Config, registry *prometheus.Registry) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(RouterParams{
		Config:     cfg,
		Logger:     logg,
		Pingers:    map[string]controllers.Pinger{"database": stubPinger{}},
		Scheduler:  stubSchedulerService{},
		Inbox:      stubInboxService{},
		Dispatcher: stubDispatcher{},
		Registry:   registry,
	})
}

func mintToken(t *testing.T, cfg *config.Config, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.Auth, time.Now(), userID, time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(routerTestConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestInboxRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(routerTestConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inbox", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestInboxSucceedsWithJWT(t *testing.T) {
	cfg := routerTestConfig()
	router := newTestRouter(cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inbox", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, uuid.New()))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestGroupInboxBehindAuth(t *testing.T) {
	cfg := routerTestConfig()
	router := newTestRouter(cfg, nil)
	path := "/api/v1/groups/" + uuid.NewString() + "/inbox"

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, uuid.New()))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminSchedulesRequireAllowListedSubject(t *testing.T) {
	userID := uuid.New()
	cfg := routerTestConfig(uuid.NewString())
	router := newTestRouter(cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/schedules", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, userID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAdminSchedulesAllowAdminSubject(t *testing.T) {
	userID := uuid.New()
	cfg := routerTestConfig(userID.String())
	router := newTestRouter(cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/schedules", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, userID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestDispatchRunRequiresToken(t *testing.T) {
	router := newTestRouter(routerTestConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/internal/v1/dispatch/run", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestDispatchRunAcceptsToken(t *testing.T) {
	router := newTestRouter(routerTestConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/internal/v1/dispatch/run", nil)
	req.Header.Set("Authorization", "Bearer dispatch-secret")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestMetricsExposedWhenRegistryProvided(t *testing.T) {
	router := newTestRouter(routerTestConfig(), prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
