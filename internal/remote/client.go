// Package remote talks to an external analysis and planning service over
// HTTP JSON. It implements backend.Analyzer and backend.Planner so the
// local engine can delegate analysis while still applying changes itself.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

var (
	_ backend.Analyzer = (*Client)(nil)
	_ backend.Planner  = (*Client)(nil)
)

// ErrNetwork wraps transport failures that survived every retry.
var ErrNetwork = errors.New("backend unreachable")

// StatusError is a non-2xx response from the service.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Client calls the service's /v1 endpoints. Every endpoint is read-only on
// the service side, so transport failures and 5xx responses are retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger

	Retries uint64
	Backoff time.Duration
}

// New creates a client for baseURL. A zero timeout means no client timeout;
// callers still bound requests through their context.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With(zap.String("component", "remote")),
		Retries:    2,
		Backoff:    250 * time.Millisecond,
	}
}

type analyzeRequest struct {
	Path string `json:"path"`
}

type generateRequest struct {
	Path   string                 `json:"path"`
	Report *backend.AnalyzeReport `json:"report"`
	Mode   backend.GenerateMode   `json:"mode"`
}

// AnalyzeProject posts to /v1/analyze.
func (c *Client) AnalyzeProject(ctx context.Context, path string) (*backend.AnalyzeReport, error) {
	var report backend.AnalyzeReport
	if err := c.post(ctx, "/v1/analyze", analyzeRequest{Path: path}, &report); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", path, err)
	}
	return &report, nil
}

// GenerateActionsFromReport posts to /v1/actions/generate.
func (c *Client) GenerateActionsFromReport(ctx context.Context, path string, report *backend.AnalyzeReport, mode backend.GenerateMode) (*backend.GenerateResult, error) {
	var res backend.GenerateResult
	if err := c.post(ctx, "/v1/actions/generate", generateRequest{Path: path, Report: report, Mode: mode}, &res); err != nil {
		return nil, fmt.Errorf("generate actions: %w", err)
	}
	if res.Actions == nil {
		res.Actions = []backend.Action{}
	}
	return &res, nil
}

// ProposeActions posts to /v1/actions/propose.
func (c *Client) ProposeActions(ctx context.Context, req backend.ProposeRequest) (*backend.ProposeResult, error) {
	var res backend.ProposeResult
	if err := c.post(ctx, "/v1/actions/propose", req, &res); err != nil {
		return nil, fmt.Errorf("propose actions: %w", err)
	}
	if res.Actions == nil {
		res.Actions = []backend.Action{}
	}
	return &res, nil
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	attempt := 0
	backoff := retry.WithMaxRetries(c.Retries, retry.NewExponential(c.Backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.do(ctx, endpoint, body, out)
		if err == nil || ctx.Err() != nil || !transient(err) {
			return err
		}
		c.log.Warn("backend request failed",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return retry.RetryableError(err)
	})
}

func (c *Client) do(ctx context.Context, endpoint string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func transient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	return errors.Is(err, ErrNetwork)
}

// errorMessage extracts {"error": "..."} from a failed response, falling
// back to the start of the raw body.
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}
