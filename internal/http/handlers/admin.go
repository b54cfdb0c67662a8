package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/middleware"
)

// AdminDeleteJob removes a job row. Admin sessions only; the owning
// user's coin usage history is left intact.
func (a *App) AdminDeleteJob(w http.ResponseWriter, r *http.Request) {
	if !middleware.IsAdminFromContext(r.Context()) {
		a.error(w, http.StatusForbidden, "forbidden", "admin access required")
		return
	}
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "validation_error", "missing job id")
		return
	}
	if err := a.Jobs.Delete(r.Context(), jobID); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true})
}
