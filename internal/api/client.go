package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"kiln/internal/worker"
)

// ErrNotFound reports a run id the ledger does not know.
var ErrNotFound = errors.New("run not found")

// Client talks to a running kilnd over its HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for the given bind address or URL. An empty bind
// returns nil, nil: the API is disabled in configuration and callers decide
// how to report that.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	// No client timeout: run submissions block until the render finishes.
	// Callers bound the fast requests with their contexts.
	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{},
	}, nil
}

// Health fetches the worker health summary.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var status HealthStatus
	err := c.get(ctx, "/api/health", nil, &status)
	return status, err
}

// Runs fetches the most recent runs, newest first.
func (c *Client) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var payload RunListResponse
	if err := c.get(ctx, "/api/runs", query, &payload); err != nil {
		return nil, err
	}
	return payload.Runs, nil
}

// RunByID fetches one run. Unknown ids yield ErrNotFound.
func (c *Client) RunByID(ctx context.Context, id string) (Run, error) {
	var payload RunResponse
	if err := c.get(ctx, "/api/runs/"+strings.TrimSpace(id), nil, &payload); err != nil {
		return Run{}, err
	}
	return payload.Run, nil
}

// Stats fetches worker runtime statistics.
func (c *Client) Stats(ctx context.Context) (WorkerStats, error) {
	var stats WorkerStats
	err := c.get(ctx, "/api/stats", nil, &stats)
	return stats, err
}

// SubmitRun posts a job and waits for its outcome. Failed runs come back as
// outcomes carrying error detail, not as transport errors.
func (c *Client) SubmitRun(ctx context.Context, job worker.Job) (*worker.Outcome, error) {
	if c == nil {
		return nil, errors.New("worker api disabled")
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}

	resp, err := c.send(ctx, http.MethodPost, "/api/run", nil, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkAuth(resp); err != nil {
		return nil, err
	}
	var outcome worker.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return nil, fmt.Errorf("decode outcome (status %d): %w", resp.StatusCode, err)
	}
	return &outcome, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, into any) error {
	if c == nil {
		return errors.New("worker api disabled")
	}

	resp, err := c.send(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkAuth(resp); err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		if msg := apiErrorMessage(resp.Body); msg != "" {
			return fmt.Errorf("api error (status %d): %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

func checkAuth(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return errors.New("unauthorized: check the api token")
	}
	return nil
}

func apiErrorMessage(r io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Error)
}
