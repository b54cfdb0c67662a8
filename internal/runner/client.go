package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
)

var (
	// ErrMissingBaseURL indicates the client was configured without a runner endpoint.
	ErrMissingBaseURL = errors.New("runner: base url is required")
	// ErrMissingToken indicates the client was configured without credentials.
	ErrMissingToken = errors.New("runner: shared token is required")
)

// Options configures the GPU runner client.
type Options struct {
	BaseURL       string
	Token         string
	HTTPClient    *http.Client
	Logger        *infra.Logger
	HealthTimeout time.Duration
	StartTimeout  time.Duration
	StatusTimeout time.Duration
}

// Client performs HTTP calls against the external vectorization runner.
// It holds no state between calls; every failure is translated into one
// of the domain runner errors so callers can branch on errors.Is.
type Client struct {
	baseURL       string
	host          string
	token         string
	httpClient    *http.Client
	logger        *infra.Logger
	healthTimeout time.Duration
	startTimeout  time.Duration
	statusTimeout time.Duration
}

// StartRequest captures the inputs for a vectorization dispatch.
type StartRequest struct {
	InputURL string      `json:"input_url"`
	Mode     domain.Mode `json:"mode"`
	Filename string      `json:"filename"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, ErrMissingToken
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("runner: invalid base url %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.Nop()
		logger = &discard
	}
	c := &Client{
		baseURL:       baseURL,
		host:          parsed.Host,
		token:         token,
		httpClient:    httpClient,
		logger:        logger,
		healthTimeout: opts.HealthTimeout,
		startTimeout:  opts.StartTimeout,
		statusTimeout: opts.StatusTimeout,
	}
	if c.healthTimeout <= 0 {
		c.healthTimeout = 10 * time.Second
	}
	if c.startTimeout <= 0 {
		c.startTimeout = 15 * time.Second
	}
	if c.statusTimeout <= 0 {
		c.statusTimeout = 30 * time.Second
	}
	return c, nil
}

// CheckHealth probes the runner's health endpoint. A nil return means
// the runner answered 200.
func (c *Client) CheckHealth(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, c.baseURL+"/health", nil, c.healthTimeout)
	return err
}

// Start submits a vectorization job and returns the runner's raw response.
func (c *Client) Start(ctx context.Context, req StartRequest) (*Response, error) {
	if req.InputURL == "" {
		return nil, fmt.Errorf("%w: input url is required", domain.ErrRunnerBadRequest)
	}
	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/run", req, c.startTimeout)
	if err != nil {
		return nil, err
	}
	return decodeResponse(raw)
}

// Status polls a job. A runner-supplied status URL is honored only when
// it points at the configured runner host; anything else falls back to
// the /status/{id} path to keep the poll from being steered elsewhere.
func (c *Client) Status(ctx context.Context, jobID, statusURL string) (*Response, error) {
	endpoint := ""
	if u := strings.TrimSpace(statusURL); u != "" {
		if parsed, err := url.Parse(u); err == nil &&
			(parsed.Scheme == "http" || parsed.Scheme == "https") &&
			parsed.Host == c.host {
			endpoint = parsed.String()
		}
	}
	if endpoint == "" {
		jobID = strings.Trim(jobID, " \t\n\r\"'")
		if jobID == "" {
			return nil, fmt.Errorf("%w: job id is required", domain.ErrRunnerBadRequest)
		}
		endpoint = c.baseURL + "/status/" + url.PathEscape(jobID)
	}
	raw, err := c.do(ctx, http.MethodGet, endpoint, nil, c.statusTimeout)
	if err != nil {
		return nil, err
	}
	return decodeResponse(raw)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("runner: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("runner: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRunnerUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrRunnerUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return raw, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: unauthorized", domain.ErrRunnerAuth)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", domain.ErrRunnerBadRequest, errorText(raw))
	case resp.StatusCode >= 500:
		c.logger.Warn().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("runner 5xx")
		return nil, fmt.Errorf("%w: %s", domain.ErrRunnerProcessing, errorText(raw))
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrRunnerProcessing, resp.StatusCode)
	}
}

func errorText(raw []byte) string {
	var detail struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Error != "" {
		return detail.Error
	}
	if trimmed := strings.TrimSpace(string(raw)); trimmed != "" {
		return trimmed
	}
	return "runner error"
}

func decodeResponse(raw []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrRunnerProcessing, err)
	}
	return &resp, nil
}
