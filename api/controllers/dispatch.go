package controllers

import (
	"context"
	"net/http"

	"github.com/circleup-app/circleup-backend/api/responses"
	"github.com/circleup-app/circleup-backend/internal/dispatch"
	pkgerrors "github.com/circleup-app/circleup-backend/pkg/errors"
	"github.com/circleup-app/circleup-backend/pkg/logger"
)

const triggerCron = "cron"

// Dispatcher runs one dispatch batch.
type Dispatcher interface {
	ProcessDue(ctx context.Context, trigger string) (*dispatch.Report, error)
}

// TriggerDispatch runs a batch on behalf of the external cron scheduler and
// returns the batch report.
func TriggerDispatch(processor Dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if processor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch processor unavailable"))
			return
		}

		report, err := processor.ProcessDue(r.Context(), triggerCron)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dispatch batch failed"))
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// DispatchPing lets the cron scheduler verify the endpoint is reachable
// without running a batch.
func DispatchPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
