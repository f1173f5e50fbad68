package interop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/executor"
	"github.com/vk/dlsgrid/internal/output"
	"github.com/vk/dlsgrid/internal/tracing"
)

// maxErrorBody bounds how much of a failed response is kept in a StatusError.
const maxErrorBody = 4 << 10

// StatusError is returned when the remote host answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dispatch to %s returned %d: %s", e.URL, e.Code, e.Body)
}

// Client sends hand-overs over HTTP. It implements executor.Dispatcher.
type Client struct {
	http   *http.Client
	tracer tracing.Carrier
}

// NewClient returns a client sending requests through httpClient and
// injecting the trace context with tracer. A nil httpClient means
// http.DefaultClient.
func NewClient(httpClient *http.Client, tracer tracing.Carrier) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if tracer == nil {
		tracer = tracing.NewOpenTracing(nil)
	}
	return &Client{http: httpClient, tracer: tracer}
}

// DispatchURL builds the endpoint of a hand-over.
func DispatchURL(req *executor.DispatchRequest) string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(req.Target.Address, strconv.Itoa(req.Target.Port)),
	}
	u = *u.JoinPath("dispatch", req.Group, req.StartTask, req.Originator, req.Segment)
	return u.String()
}

func (c *Client) Dispatch(ctx context.Context, req *executor.DispatchRequest) (*executor.DispatchResponse, error) {
	logger := ctxlog.FromContext(ctx)
	target := DispatchURL(req)

	body, err := json.Marshal(req.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build dispatch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderExecutedSpans, JoinExecuted(req.Executed))
	if err := c.tracer.Inject(ctx, httpReq.Header); err != nil {
		logger.Warn("Failed to inject trace context.", "error", err)
	}

	logger.Debug("Sending dispatch request.", "url", target, "executed", req.Executed)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch request to %s failed: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{URL: target, Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	out := output.New()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("failed to decode dispatch response from %s: %w", target, err)
	}

	executed := ParseExecuted(resp.Header.Get(HeaderExecutedSpans))
	logger.Debug("Received dispatch response.", "url", target, "executed", executed)
	return &executor.DispatchResponse{Output: out, Executed: executed}, nil
}
