package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/middleware"
	"server/pkg/zip"
)

type jobView struct {
	ID        string  `json:"id"`
	Filename  string  `json:"filename"`
	OutputURL string  `json:"output_url,omitempty"`
	Mode      string  `json:"mode"`
	Status    string  `json:"status"`
	Cost      float64 `json:"cost"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

func viewOf(job *domain.Job) jobView {
	return jobView{
		ID:        job.ID,
		Filename:  job.InputPath,
		OutputURL: job.OutputPath,
		Mode:      string(job.Mode),
		Status:    string(job.Status),
		Cost:      job.Cost,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// JobStatus returns one job owned by the caller. Jobs belonging to
// other users read as not found so ids cannot be probed.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.ownedJob(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "job": viewOf(job)})
}

// JobsList returns the caller's recent jobs, newest first.
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			a.error(w, http.StatusBadRequest, "validation_error", "limit must be between 1 and 200")
			return
		}
		limit = n
	}
	jobs, err := a.Jobs.ListByUser(r.Context(), userID, limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	views := make([]jobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, viewOf(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "jobs": views})
}

// JobDownload redirects to the job's output. Runner-hosted outputs
// redirect as-is; locally stored outputs get a fresh signed proxy URL.
func (a *App) JobDownload(w http.ResponseWriter, r *http.Request) {
	job, err := a.ownedJob(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	if job.Status != domain.JobStatusDone || job.OutputPath == "" {
		a.error(w, http.StatusNotFound, "not_found", "job has no output yet")
		return
	}
	target := job.OutputPath
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = a.Signer.SignedURL(a.Config.AppBaseURL, path.Base(target))
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// JobsExport streams a zip archive of every finished output the caller
// owns. Outputs are fetched one at a time; jobs whose output can no
// longer be retrieved are skipped.
func (a *App) JobsExport(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	jobs, err := a.Jobs.ListByUser(r.Context(), userID, 200)
	if err != nil {
		a.fail(w, err)
		return
	}

	assets := make([]zip.Asset, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		if job.Status != domain.JobStatusDone || job.OutputPath == "" {
			continue
		}
		data, err := a.fetchOutput(r.Context(), job.OutputPath)
		if err != nil {
			a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("export: output unavailable")
			continue
		}
		assets = append(assets, zip.Asset{Filename: exportName(job), Data: data})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no finished jobs to export")
		return
	}

	archive := zip.ArchiveAssets(assets)
	if archive == nil {
		a.error(w, http.StatusInternalServerError, "internal", "could not build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="vectorized.zip"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// Balance returns the caller's remaining coins.
func (a *App) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	balance, err := a.Users.Balance(r.Context(), userID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "coins_remaining": balance})
}

// ownedJob loads the path job and enforces ownership. Admins may read
// any job.
func (a *App) ownedJob(r *http.Request) (*domain.Job, error) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		return nil, fmt.Errorf("%w: missing job id", domain.ErrValidation)
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != middleware.UserIDFromContext(r.Context()) && !middleware.IsAdminFromContext(r.Context()) {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

// fetchOutput resolves an output reference to bytes, from local storage
// when possible, otherwise over HTTP.
func (a *App) fetchOutput(ctx context.Context, ref string) ([]byte, error) {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		f, err := a.Store.Open(path.Base(ref))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, 32<<20))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	client := a.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch output: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

func exportName(job *domain.Job) string {
	base := strings.TrimSuffix(path.Base(job.InputPath), path.Ext(job.InputPath))
	if base == "" || base == "." {
		base = job.ID
	}
	return base + "_" + string(job.Mode) + ".svg"
}
