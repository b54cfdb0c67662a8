package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/fileproxy"
	"server/internal/infra"
	"server/internal/runner"
	"server/internal/storage"
)

const (
	// MaxFileSize is the ceiling for one interactive upload.
	MaxFileSize = 5 << 20
	// MaxBulkFiles is the batch ceiling for bulk upload.
	MaxBulkFiles = 12
)

// allowedTypes is the closed set of accepted upload MIME types.
var allowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// RunnerAPI is the slice of the runner client the dispatcher needs.
type RunnerAPI interface {
	Start(ctx context.Context, req runner.StartRequest) (*runner.Response, error)
	Status(ctx context.Context, jobID, statusURL string) (*runner.Response, error)
}

// Availability gates dispatch on runner readiness.
type Availability interface {
	Ensure(ctx context.Context) error
}

// Upload carries one uploaded file into the dispatcher.
type Upload struct {
	Filename string
	Size     int64
	Data     io.Reader
}

// Request describes one dispatch. Exactly one of Upload or InputURL is
// set: either a fresh multipart upload that must be staged, or an
// already-hosted image reference.
type Request struct {
	Upload   *Upload
	InputURL string
	Mode     domain.Mode
}

// Options wires a Dispatcher.
type Options struct {
	Guard         Availability
	Client        RunnerAPI
	Store         *storage.FileStore
	Signer        *fileproxy.Signer
	AppBaseURL    string
	RunnerBaseURL string
	Logger        *infra.Logger
	PollInterval  time.Duration
	MaxPolls      int
	Sleep         func(ctx context.Context, d time.Duration) error
}

// Dispatcher turns a validated upload into a normalized runner result.
// It stages the file locally, exposes it to the runner through a signed
// proxy URL, ensures the runner is awake, starts the job and polls it
// to a terminal state. The staging file is removed on every exit path.
type Dispatcher struct {
	guard         Availability
	client        RunnerAPI
	store         *storage.FileStore
	signer        *fileproxy.Signer
	appBaseURL    string
	runnerBaseURL string
	logger        *infra.Logger
	pollInterval  time.Duration
	maxPolls      int
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewDispatcher constructs a Dispatcher with production defaults:
// 2s status-poll interval, 60 polls.
func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		guard:         opts.Guard,
		client:        opts.Client,
		store:         opts.Store,
		signer:        opts.Signer,
		appBaseURL:    strings.TrimRight(opts.AppBaseURL, "/"),
		runnerBaseURL: opts.RunnerBaseURL,
		logger:        opts.Logger,
		pollInterval:  opts.PollInterval,
		maxPolls:      opts.MaxPolls,
		sleep:         opts.Sleep,
	}
	if d.pollInterval <= 0 {
		d.pollInterval = 2 * time.Second
	}
	if d.maxPolls <= 0 {
		d.maxPolls = 60
	}
	if d.sleep == nil {
		d.sleep = func(ctx context.Context, dur time.Duration) error {
			timer := time.NewTimer(dur)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
	if d.logger == nil {
		discard := zerolog.Nop()
		d.logger = &discard
	}
	return d
}

// Dispatch runs one job end to end and returns the normalized result.
// Validation failures wrap domain.ErrValidation; runner failures keep
// their domain error class. A job the runner reports as failed comes
// back as a Result with a failed status and a reason, not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*runner.Result, error) {
	inputURL := strings.TrimSpace(req.InputURL)
	filename := "image.png"

	if req.Upload != nil {
		staged, name, err := d.stage(ctx, req.Upload)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := d.store.Remove(staged); err != nil {
				d.logger.Warn().Err(err).Str("key", staged).Msg("staging cleanup failed")
			}
		}()
		inputURL = d.signer.SignedURL(d.appBaseURL, staged)
		filename = name
	} else if inputURL == "" {
		return nil, fmt.Errorf("%w: no file or input url provided", domain.ErrValidation)
	} else {
		filename = filepath.Base(inputURL)
	}

	if err := d.guard.Ensure(ctx); err != nil {
		return nil, err
	}

	resp, err := d.client.Start(ctx, runner.StartRequest{
		InputURL: inputURL,
		Mode:     req.Mode,
		Filename: filename,
	})
	if err != nil {
		return nil, err
	}
	result, err := runner.Normalize(resp, d.runnerBaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRunnerProcessing, err)
	}

	statusURL := resp.StatusURL
	for polls := 0; !result.Status.Terminal(); polls++ {
		if polls >= d.maxPolls {
			return nil, fmt.Errorf("%w: job %s not terminal after %d polls", domain.ErrRunnerProcessing, result.JobID, d.maxPolls)
		}
		if err := d.sleep(ctx, d.pollInterval); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrRunnerUnavailable, err)
		}
		resp, err = d.client.Status(ctx, result.JobID, statusURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusURL != "" {
			statusURL = resp.StatusURL
		}
		next, err := runner.Normalize(resp, d.runnerBaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrRunnerProcessing, err)
		}
		if next.JobID == "" {
			next.JobID = result.JobID
		}
		result = next
	}

	if result.Filename == "" {
		result.Filename = filename
	}
	d.logger.Info().
		Str("job_id", result.JobID).
		Str("status", string(result.Status)).
		Int64("duration_ms", result.DurationMs).
		Msg("dispatch finished")
	return result, nil
}

// stage validates the upload and writes it under a unique staging key.
func (d *Dispatcher) stage(ctx context.Context, up *Upload) (key, filename string, err error) {
	if up == nil || up.Data == nil {
		return "", "", fmt.Errorf("%w: no file uploaded", domain.ErrValidation)
	}
	if up.Size > MaxFileSize {
		return "", "", fmt.Errorf("%w: file too large, maximum size is 5MB", domain.ErrValidation)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(up.Data, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", "", fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return "", "", fmt.Errorf("%w: uploaded file is empty", domain.ErrValidation)
	}
	contentType := http.DetectContentType(head[:n])
	if _, ok := allowedTypes[contentType]; !ok {
		return "", "", fmt.Errorf("%w: invalid file type, upload a JPEG, PNG, GIF or WebP image", domain.ErrValidation)
	}

	// Size comes from the multipart header and can lie; budget one byte
	// past the ceiling so an oversized stream is detected, not truncated.
	body := &countingReader{r: io.MultiReader(
		bytes.NewReader(head[:n]),
		io.LimitReader(up.Data, MaxFileSize+1-int64(n)),
	)}
	ext := strings.ToLower(filepath.Ext(up.Filename))
	if ext == "" {
		ext = extensionFor(contentType)
	}
	key = "upload_" + uuid.NewString() + ext
	if _, err := d.store.Write(ctx, key, body); err != nil {
		return "", "", err
	}
	if body.n > MaxFileSize {
		if err := d.store.Remove(key); err != nil {
			d.logger.Warn().Err(err).Str("key", key).Msg("staging cleanup failed")
		}
		return "", "", fmt.Errorf("%w: file too large, maximum size is 5MB", domain.ErrValidation)
	}
	name := filepath.Base(up.Filename)
	if name == "." || name == "" {
		name = key
	}
	return key, name, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
