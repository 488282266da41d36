// Package widgetclient talks to the public widget endpoints and drives a
// flow.Machine from their responses.
package widgetclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/intake/intake/internal/domain/submission"
	"github.com/intake/intake/internal/domain/widget"
)

const defaultTimeout = 15 * time.Second

// FetchError is a failed call: transport error or a non-2xx response.
// Status is zero when no response arrived.
type FetchError struct {
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("widget request failed: %v", e.Err)
	}
	return fmt.Sprintf("widget request failed: %d %s", e.Status, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubmitError carries the field errors of a rejected submission.
type SubmitError struct {
	Details map[string]string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submission rejected: %d invalid field(s)", len(e.Details))
}

type apiError struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

type submitResponse struct {
	Success bool      `json:"success"`
	ID      uuid.UUID `json:"id"`
}

type Option func(*resty.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

type Client struct {
	http *resty.Client
}

func New(baseURL string, opts ...Option) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")
	for _, o := range opts {
		o(c)
	}
	return &Client{http: c}
}

// FetchConfig loads the public widget config for slug.
func (c *Client) FetchConfig(ctx context.Context, slug string) (*widget.ConfigResponse, error) {
	var cfg widget.ConfigResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("slug", slug).
		SetResult(&cfg).
		SetError(&apiErr).
		Get("/widget/config")
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	if resp.IsError() {
		return nil, &FetchError{Status: resp.StatusCode(), Message: apiErr.Error}
	}
	return &cfg, nil
}

// Submit posts a submission and returns the stored id.
func (c *Client) Submit(ctx context.Context, req submission.Request) (uuid.UUID, error) {
	var out submitResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/widget/submit")
	if err != nil {
		return uuid.Nil, &FetchError{Err: err}
	}
	if resp.StatusCode() == http.StatusBadRequest && len(apiErr.Details) > 0 {
		return uuid.Nil, &SubmitError{Details: apiErr.Details}
	}
	if resp.IsError() || !out.Success {
		return uuid.Nil, &FetchError{Status: resp.StatusCode(), Message: apiErr.Error}
	}
	return out.ID, nil
}
