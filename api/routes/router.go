package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/circleup-app/circleup-backend/api/controllers"
	"github.com/circleup-app/circleup-backend/api/middleware"
	"github.com/circleup-app/circleup-backend/internal/inbox"
	"github.com/circleup-app/circleup-backend/internal/scheduler"
	"github.com/circleup-app/circleup-backend/pkg/config"
	"github.com/circleup-app/circleup-backend/pkg/logger"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	Pingers    map[string]controllers.Pinger
	Scheduler  scheduler.Service
	Inbox      inbox.Service
	Dispatcher controllers.Dispatcher
	Registry   *prometheus.Registry
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Pingers))
	})

	if params.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/internal/v1/dispatch", func(r chi.Router) {
		r.Use(middleware.DispatchToken(cfg.Auth.DispatchToken, logg))
		r.Get("/", controllers.DispatchPing())
		r.Post("/run", controllers.TriggerDispatch(params.Dispatcher, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth, logg))

		r.Route("/inbox", func(r chi.Router) {
			r.Get("/", controllers.ListInbox(params.Inbox, logg))
			r.Post("/read-all", controllers.MarkAllInboxRead(params.Inbox, logg))
			r.Post("/{itemId}/read", controllers.MarkInboxRead(params.Inbox, logg))
		})

		r.Get("/groups/{groupId}/inbox", controllers.ListGroupInbox(params.Inbox, logg))

		r.Route("/admin/schedules", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))
			r.Post("/", controllers.CreateSchedule(params.Scheduler, logg))
			r.Post("/recurring", controllers.CreateRecurringSchedule(params.Scheduler, logg))
			r.Get("/", controllers.ListSchedules(params.Scheduler, logg))
			r.Get("/{scheduleId}", controllers.GetSchedule(params.Scheduler, logg))
			r.Post("/{scheduleId}/cancel", controllers.CancelSchedule(params.Scheduler, logg))
			r.Delete("/{scheduleId}", controllers.DeleteSchedule(params.Scheduler, logg))
		})
	})

	return r
}
