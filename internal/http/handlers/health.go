package handlers

import (
	"context"
	"net/http"
	"time"
)

// Health reports service liveness. Runner reachability is included as a
// diagnostic but never fails the check: the API stays up while the
// runner sleeps.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	runnerState := "unknown"
	if a.RunnerHealth != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.RunnerHealth.CheckHealth(ctx); err != nil {
			runnerState = "unreachable"
		} else {
			runnerState = "ok"
		}
	}
	a.json(w, http.StatusOK, map[string]any{
		"status": "ok",
		"runner": runnerState,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
