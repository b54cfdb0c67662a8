package runner

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"server/internal/domain"
)

// ErrUnrecognizedShape is returned when a runner response claims
// success but carries no usable output reference in any known field.
var ErrUnrecognizedShape = errors.New("runner: unrecognized response shape")

// Response mirrors every field the runner has been observed to return.
// The runner's payloads are loosely shaped; depending on version the
// output lands in output.local_path, download_url or output_url.
// Nothing outside this package should read these fields directly;
// Normalize folds them into a Result at the boundary.
type Response struct {
	Success     *bool  `json:"success"`
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	StatusURL   string `json:"status_url"`
	Error       string `json:"error"`
	DownloadURL string `json:"download_url"`
	OutputURL   string `json:"output_url"`
	SVGFilename string `json:"svg_filename"`
	DurationMs  int64  `json:"duration_ms"`
	Output      struct {
		LocalPath   string `json:"local_path"`
		URL         string `json:"url"`
		SVGFilename string `json:"svg_filename"`
	} `json:"output"`
}

// Result is the single canonical job-result shape the rest of the
// system persists and serves.
type Result struct {
	JobID      string
	Status     domain.JobStatus
	OutputRef  string
	Filename   string
	DurationMs int64
	Reason     string
}

// Normalize maps a raw runner response into a Result. Relative output
// references are resolved against the runner base URL. A successful
// response without any recognizable output reference is an error, not
// a silently empty result.
func Normalize(resp *Response, baseURL string) (*Result, error) {
	if resp == nil {
		return nil, ErrUnrecognizedShape
	}

	out := &Result{
		JobID:      resp.JobID,
		DurationMs: resp.DurationMs,
		Reason:     resp.Error,
	}
	out.Filename = resp.Output.SVGFilename
	if out.Filename == "" {
		out.Filename = resp.SVGFilename
	}

	ref := firstNonEmpty(resp.Output.LocalPath, resp.Output.URL, resp.DownloadURL, resp.OutputURL)
	if ref != "" {
		resolved, err := resolveRef(ref, baseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		out.OutputRef = resolved
	}

	status, ok := mapStatus(resp)
	if !ok {
		return nil, ErrUnrecognizedShape
	}
	out.Status = status

	if out.Status == domain.JobStatusDone && out.OutputRef == "" {
		return nil, ErrUnrecognizedShape
	}
	return out, nil
}

func mapStatus(resp *Response) (domain.JobStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(resp.Status)) {
	case "done", "completed", "success", "succeeded":
		return domain.JobStatusDone, true
	case "failed", "error":
		return domain.JobStatusFailed, true
	case "queued", "pending":
		return domain.JobStatusQueued, true
	case "processing", "running":
		return domain.JobStatusProcessing, true
	case "":
		// Older runner builds report only a success flag.
		if resp.Success != nil {
			if *resp.Success {
				return domain.JobStatusDone, true
			}
			return domain.JobStatusFailed, true
		}
		return "", false
	default:
		return "", false
	}
}

func resolveRef(ref, baseURL string) (string, error) {
	ref = strings.TrimSpace(ref)
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid output reference %q", ref)
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base url %q", baseURL)
	}
	return base.ResolveReference(&url.URL{Path: strings.TrimLeft(parsed.Path, "/"), RawQuery: parsed.RawQuery}).String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
