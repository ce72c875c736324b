// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package client talks to a fanout server. Requests are retried on connection errors, and on
// server errors when they are safe to repeat.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/matt-FFFFFF/fanout/internal/batch"
	"github.com/matt-FFFFFF/fanout/internal/current"
	"github.com/matt-FFFFFF/fanout/internal/mailbox"
)

const (
	// DefaultBaseURL is the address of a server started with default settings.
	DefaultBaseURL = "http://127.0.0.1:7117"
	// DefaultPollWait is the per-request wait used while following a batch.
	DefaultPollWait = 30 * time.Second
	requestTimeout  = 30 * time.Second
	// Long-polls may legitimately take the whole wait, so the timeout adds this on top.
	longPollSlack = 10 * time.Second
)

// ErrUnexpectedResponse is returned when a response body cannot be decoded.
var ErrUnexpectedResponse = errors.New("unexpected response from server")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client is a fanout API client.
type Client struct {
	baseURL *url.URL
	http    *retryablehttp.Client
}

// Option configures a Client.
type Option func(*retryablehttp.Client)

// WithRetryMax sets how many times a failed request is retried.
func WithRetryMax(n int) Option {
	return func(c *retryablehttp.Client) {
		c.RetryMax = n
	}
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(lo, hi time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = lo
		c.RetryWaitMax = hi
	}
}

// WithLogger routes retry logging to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *retryablehttp.Client) {
		c.Logger = logger
	}
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server URL %q", baseURL)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	for _, opt := range opts {
		opt(rc)
	}

	return &Client{baseURL: u, http: rc}, nil
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// checkRetry never repeats a request that reached the server unless it is a GET, so a batch
// is not created twice.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.Request != nil && resp.Request.Method != http.MethodGet {
		return false, nil
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// endpoint builds a URL from already escaped path segments.
func (c *Client) endpoint(query url.Values, segments ...string) string {
	u := c.baseURL.JoinPath(segments...)

	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	return u.String()
}

// do sends a request and decodes a JSON response into out, which may be nil.
func (c *Client) do(ctx context.Context, method, target string, body any, header http.Header, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var payload io.Reader

	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}

		payload = bytes.NewReader(b)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")

	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}

	return nil
}

func decodeError(status int, data []byte) error {
	var body struct {
		Error string `json:"error"`
	}

	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	return &APIError{Status: status, Message: msg}
}

func preferWait(wait time.Duration) http.Header {
	h := http.Header{}
	h.Set("Prefer", "wait="+strconv.FormatInt(int64(wait/time.Second), 10))

	return h
}

// CreateBatch creates and starts a batch.
func (c *Client) CreateBatch(ctx context.Context, req batch.Request) (*batch.Response, error) {
	var out batch.Response
	if err := c.do(ctx, http.MethodPost, c.endpoint(nil, "batch"), req, nil, requestTimeout, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetBatch returns a snapshot. With wait > 0 the server holds the request until more than
// completed runs are terminal or the wait runs out.
func (c *Client) GetBatch(ctx context.Context, id string, completed int, wait time.Duration) (*batch.Response, error) {
	var (
		query  url.Values
		header http.Header
	)

	if wait > 0 {
		query = url.Values{"completed": {strconv.Itoa(completed)}}
		header = preferWait(wait)
	}

	var out batch.Response
	if err := c.do(ctx, http.MethodGet, c.endpoint(query, "batch", url.PathEscape(id)), nil, header, wait+longPollSlack+requestTimeout, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListBatches returns every batch known to the server.
func (c *Client) ListBatches(ctx context.Context) (*batch.ListResponse, error) {
	var out batch.ListResponse
	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, "batch"), nil, nil, requestTimeout, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// CancelBatch cancels every unfinished run of the batch.
func (c *Client) CancelBatch(ctx context.Context, id string) (*batch.Response, error) {
	var out batch.Response
	if err := c.do(ctx, http.MethodPost, c.endpoint(nil, "batch", url.PathEscape(id), "cancel"), nil, nil, requestTimeout, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Output reads the stdout of a run from offset.
func (c *Client) Output(ctx context.Context, id string, run int, offset int64) (*batch.OutputChunk, error) {
	query := url.Values{
		"run":    {strconv.Itoa(run)},
		"offset": {strconv.FormatInt(offset, 10)},
	}

	var out batch.OutputChunk
	if err := c.do(ctx, http.MethodGet, c.endpoint(query, "batch", url.PathEscape(id), "output"), nil, nil, requestTimeout, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// WaitForBatch long-polls until the batch is done, calling onProgress with every snapshot.
// Each poll waits up to wait, or DefaultPollWait when wait is not positive.
func (c *Client) WaitForBatch(ctx context.Context, id string, wait time.Duration, onProgress func(*batch.Response)) (*batch.Response, error) {
	if wait <= 0 {
		wait = DefaultPollWait
	}

	resp, err := c.GetBatch(ctx, id, 0, 0)
	if err != nil {
		return nil, err
	}

	for {
		if onProgress != nil {
			onProgress(resp)
		}

		if resp.Done {
			return resp, nil
		}

		if err := ctx.Err(); err != nil {
			return resp, err
		}

		next, err := c.GetBatch(ctx, id, resp.Completed, wait)
		if err != nil {
			return resp, err
		}

		resp = next
	}
}

// Subjects lists the subjects that have live consumers.
func (c *Client) Subjects(ctx context.Context) ([]string, error) {
	var out struct {
		Subjects []string `json:"subjects"`
	}

	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, "messages"), nil, nil, requestTimeout, &out); err != nil {
		return nil, err
	}

	return out.Subjects, nil
}

// PollMessages collects notifications queued for (subject, role), waiting up to wait.
func (c *Client) PollMessages(ctx context.Context, subject, role string, wait time.Duration) ([]mailbox.Notification, error) {
	query := url.Values{"role": {role}}

	var out []mailbox.Notification
	if err := c.do(ctx, http.MethodGet, c.endpoint(query, "messages", url.PathEscape(subject)), nil, preferWait(wait), wait+longPollSlack, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// Publish sends n to the consumers of subject selected by target, a role or "*".
func (c *Client) Publish(ctx context.Context, subject, target string, n mailbox.Notification) error {
	body := mailbox.PublishRequest{Target: target, Message: n}

	return c.do(ctx, http.MethodPost, c.endpoint(nil, "messages", url.PathEscape(subject)), body, nil, requestTimeout, nil)
}

// SetCurrent selects key. An empty key clears the selection.
func (c *Client) SetCurrent(ctx context.Context, key string) error {
	if key == "" {
		return c.do(ctx, http.MethodDelete, c.endpoint(nil, "current"), nil, nil, requestTimeout, nil)
	}

	body := map[string]string{"current": key}

	return c.do(ctx, http.MethodPut, c.endpoint(nil, "current"), body, nil, requestTimeout, nil)
}

// PollCurrent waits up to wait for the current key to differ from clientCurrent.
func (c *Client) PollCurrent(ctx context.Context, clientCurrent string, wait time.Duration) (current.State, error) {
	query := url.Values{}
	if clientCurrent != "" {
		query.Set("current", clientCurrent)
	}

	var out current.State
	err := c.do(ctx, http.MethodGet, c.endpoint(query, "current"), nil, preferWait(wait), wait+longPollSlack, &out)

	return out, err
}
