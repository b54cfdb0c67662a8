package handlers

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"server/internal/dispatch"
	"server/internal/domain"
	"server/internal/middleware"
)

// Vectorize accepts one multipart image under "vectorize_file" and runs
// it through the pipeline synchronously. Unknown requested_mode values
// are rejected before any runner traffic.
func (a *App) Vectorize(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, dispatch.MaxFileSize+1<<20)
	if err := r.ParseMultipartForm(dispatch.MaxFileSize); err != nil {
		a.error(w, http.StatusBadRequest, "validation_error", "file too large, maximum size is 5MB")
		return
	}
	mode, ok := requestedMode(r)
	if !ok {
		a.error(w, http.StatusBadRequest, "validation_error", "invalid mode, expected bw or color")
		return
	}

	file, header, err := r.FormFile("vectorize_file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "validation_error", "no file uploaded")
		return
	}
	defer file.Close()

	out, err := a.runJob(r.Context(), userID, mode, file, header)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":         true,
		"job_id":          out.JobID,
		"file_url":        out.FileURL,
		"coins_remaining": out.Balance,
	})
}

// VectorizeBulk processes up to MaxBulkFiles images sequentially under
// one group id. Per-file failures do not abort the batch.
func (a *App) VectorizeBulk(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, int64(dispatch.MaxBulkFiles)*(dispatch.MaxFileSize+64<<10))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		a.error(w, http.StatusBadRequest, "validation_error", "upload too large")
		return
	}
	mode, ok := requestedMode(r)
	if !ok {
		a.error(w, http.StatusBadRequest, "validation_error", "invalid mode, expected bw or color")
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		a.error(w, http.StatusBadRequest, "validation_error", "no files uploaded")
		return
	}
	if len(files) > dispatch.MaxBulkFiles {
		a.error(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("too many files, maximum is %d per batch", dispatch.MaxBulkFiles))
		return
	}

	groupID := r.FormValue("group_id")
	if groupID == "" {
		groupID = uuid.NewString()
	}

	type bulkItem struct {
		Position int     `json:"position"`
		Filename string  `json:"filename"`
		Success  bool    `json:"success"`
		JobID    string  `json:"job_id,omitempty"`
		FileURL  string  `json:"file_url,omitempty"`
		Error    string  `json:"error,omitempty"`
		Balance  float64 `json:"coins_remaining,omitempty"`
	}
	results := make([]bulkItem, 0, len(files))
	var lastBalance float64
	for i, header := range files {
		item := bulkItem{Position: i, Filename: filepath.Base(header.Filename)}
		file, err := header.Open()
		if err != nil {
			item.Error = "could not read uploaded file"
			results = append(results, item)
			continue
		}
		out, err := a.runJob(r.Context(), userID, mode, file, header)
		file.Close()
		if err != nil {
			item.Error = userMessage(err)
			results = append(results, item)
			continue
		}
		item.Success = true
		item.JobID = out.JobID
		item.FileURL = out.FileURL
		item.Balance = out.Balance
		lastBalance = out.Balance
		results = append(results, item)
	}

	a.json(w, http.StatusOK, map[string]any{
		"success":         true,
		"group_id":        groupID,
		"results":         results,
		"coins_remaining": lastBalance,
	})
}

// requestedMode validates the optional requested_mode form field.
func requestedMode(r *http.Request) (domain.Mode, bool) {
	raw := r.FormValue("requested_mode")
	if raw == "" {
		return domain.ModeColor, true
	}
	if !domain.ValidMode(raw) {
		return "", false
	}
	return domain.ParseMode(raw), true
}

type jobOutcome struct {
	JobID   string
	FileURL string
	Balance float64
}

// runJob creates the job row, dispatches it to the runner and, on a
// confirmed output, records the result and debits the cost in one
// transaction. Any failure after the row exists marks the job failed.
func (a *App) runJob(ctx context.Context, userID string, mode domain.Mode, file multipart.File, header *multipart.FileHeader) (*jobOutcome, error) {
	originalName := filepath.Base(header.Filename)
	job := &domain.Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		InputPath: originalName,
		Mode:      mode,
		Status:    domain.JobStatusQueued,
		Cost:      mode.Cost(),
	}
	if err := a.Jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	result, err := a.Dispatcher.Dispatch(ctx, dispatch.Request{
		Upload: &dispatch.Upload{Filename: originalName, Size: header.Size, Data: file},
		Mode:   mode,
	})
	if err != nil {
		a.markFailed(ctx, job.ID)
		return nil, err
	}
	if result.Status == domain.JobStatusFailed {
		a.markFailed(ctx, job.ID)
		reason := result.Reason
		if reason == "" {
			reason = "processing failed"
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrRunnerProcessing, reason)
	}
	if result.OutputRef == "" {
		a.markFailed(ctx, job.ID)
		return nil, fmt.Errorf("%w: runner reported success without an output", domain.ErrRunnerProcessing)
	}

	_, balance, err := a.Ledger.Record(ctx, userID, domain.LedgerEntry{
		JobID:     job.ID,
		InputRef:  originalName,
		OutputRef: result.OutputRef,
		Mode:      mode,
		Cost:      mode.Cost(),
	})
	if err != nil {
		a.markFailed(ctx, job.ID)
		return nil, err
	}
	return &jobOutcome{JobID: job.ID, FileURL: result.OutputRef, Balance: balance}, nil
}

func (a *App) markFailed(ctx context.Context, jobID string) {
	if err := a.Jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, ""); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("mark job failed")
	}
}
