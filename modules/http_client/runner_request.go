package http_client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/output"
	"github.com/vk/dlsgrid/internal/registry"
)

// Output keys read and written by HttpRequest.
const (
	URLKey      = "http_url"
	ResponseKey = "http_response"
)

// Response is what HttpRequest records under ResponseKey.
type Response struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

// onRunHttpRequest issues a GET for the URL found under URLKey. A relative
// URL is resolved against the base URL of the host running the span.
func onRunHttpRequest(ctx context.Context, res *registry.Resources, out *output.Output) error {
	client, err := registry.Lookup[*http.Client](res, ClientResource)
	if err != nil {
		return fmt.Errorf("http client dependency was not injected: %w", err)
	}

	var target string
	found, err := out.Get(URLKey, &target)
	if err != nil {
		return err
	}
	if !found || target == "" {
		return errors.New("no URL to request: output key '" + URLKey + "' is empty")
	}
	if strings.HasPrefix(target, "/") {
		base, err := registry.Lookup[string](res, BaseURLResource)
		if err != nil {
			return err
		}
		target = base + target
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request.", "method", http.MethodGet, "url", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.Info("Received HTTP response.", "status", resp.Status)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return out.Set(ResponseKey, Response{StatusCode: resp.StatusCode, Body: string(body)})
}
