package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"server/internal/dispatch"
	"server/internal/domain"
	"server/internal/fileproxy"
	"server/internal/infra"
	"server/internal/runner"
	"server/internal/storage"
)

// JobDispatcher is the slice of the dispatcher the handlers call.
type JobDispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*runner.Result, error)
}

// RunnerHealth is the probe used by the service health endpoint.
type RunnerHealth interface {
	CheckHealth(ctx context.Context) error
}

// App is the handler container. Every dependency is injected so tests
// can swap stubs in.
type App struct {
	Config       *infra.Config
	Logger       infra.Logger
	Users        domain.UserRepository
	Jobs         domain.JobRepository
	Ledger       domain.Ledger
	Dispatcher   JobDispatcher
	Signer       *fileproxy.Signer
	Store        *storage.FileStore
	FileProxy    http.Handler
	RunnerHealth RunnerHealth
	HTTPClient   *http.Client
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{"success": false, "code": errCode, "error": message})
}

// fail maps a domain error onto the HTTP error taxonomy. Validation and
// runner-bad-request messages are crafted in-process and safe to show;
// everything else gets a canned message so internal detail never leaks.
func (a *App) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "validation_error", userMessage(err))
	case errors.Is(err, domain.ErrRunnerBadRequest):
		a.error(w, http.StatusBadRequest, "bad_request", userMessage(err))
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, domain.ErrInsufficientBalance):
		a.error(w, http.StatusPaymentRequired, "insufficient_balance", "not enough coins remaining")
	case errors.Is(err, domain.ErrInvalidSignature):
		a.error(w, http.StatusForbidden, "forbidden", "invalid signature")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrRunnerUnavailable):
		a.error(w, http.StatusServiceUnavailable, "runner_offline", "processing service is unavailable, please try again shortly")
	case errors.Is(err, domain.ErrRunnerAuth):
		a.Logger.Error().Err(err).Msg("runner credential rejected")
		a.error(w, http.StatusInternalServerError, "runner_auth", "processing service configuration error")
	case errors.Is(err, domain.ErrRunnerProcessing):
		a.error(w, http.StatusBadGateway, "processing_failed", userMessage(err))
	default:
		a.Logger.Error().Err(err).Msg("unhandled error")
		a.error(w, http.StatusInternalServerError, "internal", "unexpected server error")
	}
}

// userMessage strips the sentinel prefix so the client sees only the
// human-readable remainder.
func userMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{domain.ErrValidation, domain.ErrRunnerBadRequest, domain.ErrRunnerProcessing} {
		prefix := sentinel.Error() + ": "
		if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return msg
}
