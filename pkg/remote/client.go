// Package remote is the request/response HTTP side of the server: project
// settings, compiles, output downloads and the project list.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"

	"github.com/olsync/olsync/internal/rand"
	"github.com/olsync/olsync/pkg/constants"
	"github.com/olsync/olsync/pkg/logger"
	"github.com/olsync/olsync/pkg/models"
)

// Identity is an authenticated browser session.
type Identity struct {
	CSRFToken string `json:"csrfToken" mapstructure:"csrf_token" yaml:"csrf_token"`
	Cookies   string `json:"cookies" mapstructure:"cookies" yaml:"cookies"`
}

// API is what the engine needs from the server's HTTP side.
type API interface {
	GetProjectSettings(ctx context.Context, identity Identity, projectID string) (*models.ProjectSettings, error)
	GetFileFromClsi(ctx context.Context, identity Identity, fileURL, compileGroup string) ([]byte, error)
	Compile(ctx context.Context, identity Identity, projectID, rootDocID string) (*CompileResult, error)
	ListProjects(ctx context.Context, identity Identity) ([]models.ProjectSummary, error)
}

type HTTPError struct {
	StatusCode int
	Message    string
	Path       string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Path, e.Message)
	}
	return fmt.Sprintf("http %d %s", e.StatusCode, e.Path)
}

// Unwrap makes a 404 match constants.ErrNotFound.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return constants.ErrNotFound
	}
	return nil
}

// CompileResult is the reply of a compile request.
type CompileResult struct {
	Status       string               `json:"status"`
	OutputFiles  []*models.OutputFile `json:"outputFiles"`
	CompileGroup string               `json:"compileGroup"`
	ClsiServerID string               `json:"clsiServerId,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     logger.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetries sets how many times a 429 or 5xx answer, or a transport
// error, is retried.
func WithRetries(n int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, constants.ErrNoBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: constants.DefaultHTTPTimeout},
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetProjectSettings fetches the spell-check words, languages and compilers
// of a project.
func (c *Client) GetProjectSettings(ctx context.Context, identity Identity, projectID string) (*models.ProjectSettings, error) {
	body, err := c.do(ctx, identity, http.MethodGet, "/project/"+url.PathEscape(projectID)+"/settings", nil)
	if err != nil {
		return nil, err
	}

	// The settings may come wrapped in a {"settings": ...} envelope.
	raw, dataType, _, err := jsonparser.Get(body, "settings")
	switch {
	case err == nil && dataType == jsonparser.Object:
		body = raw
	case err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError):
		return nil, fmt.Errorf("project %s settings: %w", projectID, err)
	}

	var settings models.ProjectSettings
	if err := json.Unmarshal(body, &settings); err != nil {
		return nil, fmt.Errorf("project %s settings: %w", projectID, err)
	}
	return &settings, nil
}

// GetFileFromClsi downloads a compile output. fileURL is server relative.
func (c *Client) GetFileFromClsi(ctx context.Context, identity Identity, fileURL, compileGroup string) ([]byte, error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return nil, fmt.Errorf("invalid output url %q: %w", fileURL, err)
	}
	if compileGroup != "" {
		q := u.Query()
		q.Set("compileGroup", compileGroup)
		u.RawQuery = q.Encode()
	}
	p := u.String()
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return c.do(ctx, identity, http.MethodGet, p, nil)
}

func (c *Client) Compile(ctx context.Context, identity Identity, projectID, rootDocID string) (*CompileResult, error) {
	req := map[string]any{
		"rootDoc_id":                 rootDocID,
		"draft":                      false,
		"check":                      "silent",
		"incrementalCompilesEnabled": true,
	}
	body, err := c.do(ctx, identity, http.MethodPost, "/project/"+url.PathEscape(projectID)+"/compile?auto_compile=true", req)
	if err != nil {
		return nil, err
	}

	var res CompileResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("project %s compile: %w", projectID, err)
	}
	models.NormalizeOutputs(res.OutputFiles)
	return &res, nil
}

func (c *Client) ListProjects(ctx context.Context, identity Identity) ([]models.ProjectSummary, error) {
	body, err := c.do(ctx, identity, http.MethodGet, "/user/projects", nil)
	if err != nil {
		return nil, err
	}

	var projects []models.ProjectSummary
	_, err = jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		var p models.ProjectSummary
		if err := json.Unmarshal(value, &p); err != nil {
			c.logger.Warn("skipping undecodable project", "error", err)
			return
		}
		projects = append(projects, p)
	}, "projects")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (c *Client) do(ctx context.Context, identity Identity, method, requestPath string, body any) ([]byte, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Cookie", identity.Cookies)
		req.Header.Set("X-Csrf-Token", identity.CSRFToken)
		req.Header.Set("X-Correlation-Id", rand.NewRequestID(constants.RequestIDLength))
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				c.logger.Debug("request failed, retrying", "path", requestPath, "attempt", attempt+1, "error", err)
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return payload, nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			c.logger.Debug("retrying", "path", requestPath, "status", resp.StatusCode, "attempt", attempt+1)
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		message, _ := jsonparser.GetString(payload, "message")
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: message, Path: requestPath}
	}
}

func (c *Client) retryDelay(attempt int, retryAfter string) time.Duration {
	if d := parseRetryAfter(retryAfter); d > 0 {
		return min(d, c.maxDelay)
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return min(delay, c.maxDelay)
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
