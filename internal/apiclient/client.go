// Package apiclient is the authenticated HTTP client for the job tracker
// backend. The base URL and bearer token are read from durable storage on
// every call, so changes made by the user apply without a restart.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/applytrack/internal/api/dto"
	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/cuongbtq/applytrack/internal/kvstore"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultProductionURL  = "https://humorous-solace-production.up.railway.app"
	DefaultDevelopmentURL = "http://localhost:4000"
	defaultTimeout        = 15 * time.Second
)

// Config holds backend client configuration
type Config struct {
	ProductionURL  string
	DevelopmentURL string
	Timeout        time.Duration
	// VerifyToken makes Authenticated call GET /api/auth/me
	VerifyToken bool
}

// HTTPError is a non-2xx backend response
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	kv     kvstore.Store
	cfg    Config
	http   *resty.Client
	logger *slog.Logger
}

func New(kv kvstore.Store, cfg *Config, logger *slog.Logger) *Client {
	c := *cfg
	if c.ProductionURL == "" {
		c.ProductionURL = DefaultProductionURL
	}
	if c.DevelopmentURL == "" {
		c.DevelopmentURL = DefaultDevelopmentURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	return &Client{
		kv:  kv,
		cfg: c,
		http: resty.New().
			SetTimeout(c.Timeout).
			SetHeader("Accept", "application/json"),
		logger: logger,
	}
}

// BaseURL resolves the backend address: the stored apiUrl override, then
// the development URL when devMode is set, then production
func (c *Client) BaseURL(ctx context.Context) string {
	var override string
	if _, err := c.kv.Get(ctx, domain.KeyAPIURL, &override); err != nil {
		c.logger.Error("Failed to read api url", slog.Any("error", err))
		return c.cfg.ProductionURL
	}
	if override = strings.TrimSpace(override); override != "" {
		return strings.TrimRight(override, "/")
	}

	var devMode bool
	if _, err := c.kv.Get(ctx, domain.KeyDevMode, &devMode); err != nil {
		c.logger.Error("Failed to read dev mode", slog.Any("error", err))
		return c.cfg.ProductionURL
	}
	if devMode {
		return c.cfg.DevelopmentURL
	}

	return c.cfg.ProductionURL
}

func (c *Client) token(ctx context.Context) (string, error) {
	var token string
	if _, err := c.kv.Get(ctx, domain.KeyAuthToken, &token); err != nil {
		return "", fmt.Errorf("failed to read auth token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return "", domain.ErrNotAuthenticated
	}
	return token, nil
}

// Authenticated returns nil when a token is stored and, with VerifyToken,
// accepted by the backend. It returns an error wrapping
// domain.ErrNotAuthenticated otherwise.
func (c *Client) Authenticated(ctx context.Context) error {
	if _, err := c.token(ctx); err != nil {
		return err
	}
	if !c.cfg.VerifyToken {
		return nil
	}

	_, err := c.Me(ctx)
	return err
}

func (c *Client) request(ctx context.Context) (*resty.Request, string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, "", err
	}

	var errBody dto.ErrorResponse
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetError(&errBody)

	return req, c.BaseURL(ctx), nil
}

// check turns a failed response into an error; 401 maps to ErrNotAuthenticated
func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	if !resp.IsError() {
		return nil
	}

	msg := http.StatusText(resp.StatusCode())
	if e, ok := resp.Error().(*dto.ErrorResponse); ok && e.Error != "" {
		msg = e.Error
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", domain.ErrNotAuthenticated, msg)
	}
	return &HTTPError{StatusCode: resp.StatusCode(), Message: msg}
}

// SaveJob posts rec to /api/jobs. The backend upserts by (user, jobUrl).
func (c *Client) SaveJob(ctx context.Context, rec domain.JobRecord) error {
	req, base, err := c.request(ctx)
	if err != nil {
		return err
	}

	platform := rec.Platform
	if platform == "" {
		platform = domain.PlatformLinkedIn
	}

	body := dto.CreateJobRequest{
		CompanyName: rec.CompanyName,
		JobTitle:    rec.JobTitle,
		Location:    optional(rec.Location),
		Description: optional(rec.Description),
		JobURL:      rec.JobURL,
		Platform:    string(platform),
		AppliedAt:   rec.AppliedAt,
	}

	var saved dto.JobDTO
	resp, err := req.SetBody(body).SetResult(&saved).Post(base + "/api/jobs")
	if err := check(resp, err); err != nil {
		return err
	}

	c.logger.Info("Job saved to backend",
		slog.String("job_id", saved.ID),
		slog.Int("status", resp.StatusCode()),
	)
	return nil
}

// ListQuery selects a page of jobs; empty filters mean ALL
type ListQuery struct {
	Page     int
	Limit    int
	Platform string
	Status   string
}

func (c *Client) ListJobs(ctx context.Context, q ListQuery) (*dto.ListJobsResponse, error) {
	req, base, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Platform != "" {
		params.Set("platform", q.Platform)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}

	var out dto.ListJobsResponse
	resp, err := req.SetQueryParamsFromValues(params).SetResult(&out).Get(base + "/api/jobs")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateJobStatus(ctx context.Context, id, status string) (*dto.JobDTO, error) {
	req, base, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var out dto.JobDTO
	resp, err := req.
		SetBody(dto.UpdateJobRequest{Status: status}).
		SetResult(&out).
		Patch(base + "/api/jobs/" + url.PathEscape(id))
	if err := check(resp, err); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, err
	}
	return &out, nil
}

// Me validates the stored token and returns the caller's user id
func (c *Client) Me(ctx context.Context) (string, error) {
	req, base, err := c.request(ctx)
	if err != nil {
		return "", err
	}

	var out dto.MeResponse
	resp, err := req.SetResult(&out).Get(base + "/api/auth/me")
	if err := check(resp, err); err != nil {
		return "", err
	}
	return out.UserID, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
