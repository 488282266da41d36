package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const DefaultTimeout = 10 * time.Second

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Request is one outbound delivery.
type Request struct {
	URL    string
	Secret string
	Body   []byte
}

// Result is the outcome of a single attempt. StatusCode is zero when no
// response was received.
type Result struct {
	Status       Status
	StatusCode   int
	ResponseBody string
	Error        string
	Duration     time.Duration
	AttemptedAt  time.Time
}

type DelivererOption func(*Deliverer)

func WithHTTPClient(c *http.Client) DelivererOption {
	return func(d *Deliverer) { d.httpClient = c }
}

// WithTimeout bounds the whole attempt, including reading the response.
func WithTimeout(timeout time.Duration) DelivererOption {
	return func(d *Deliverer) { d.timeout = timeout }
}

func withClock(now func() time.Time) DelivererOption {
	return func(d *Deliverer) { d.now = now }
}

type Deliverer struct {
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

func NewDeliverer(opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		now:        time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Deliver POSTs req.Body once. Any 2xx response is StatusSent; a non-2xx
// response, transport error or timeout is StatusFailed.
func (d *Deliverer) Deliver(ctx context.Context, req Request) Result {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	res := Result{Status: StatusFailed, AttemptedAt: d.now()}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		res.Error = fmt.Sprintf("build request: %v", err)
		return res
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", UserAgent)
	if req.Secret != "" {
		httpReq.Header.Set(SignatureHeader, SignatureValue(req.Body, req.Secret))
		httpReq.Header.Set(TimestampHeader, strconv.FormatInt(res.AttemptedAt.Unix(), 10))
	}

	start := time.Now()
	resp, err := d.httpClient.Do(httpReq)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	res.ResponseBody = string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		res.Status = StatusSent
	} else {
		res.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}
	return res
}
