package http_client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/registry"
)

// Resource names the HttpClient factory stores its values under.
const (
	ClientResource  = "http_client"
	BaseURLResource = "http_base_url"
)

// createHttpClient is the HttpClient resource factory. It stores a shared
// *http.Client and the base URL of the host the group runs on.
func (m *Module) createHttpClient(ctx context.Context, res *registry.Resources, hostAddress string) error {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	res.Set(ClientResource, client)
	res.Set(BaseURLResource, fmt.Sprintf("http://%s", hostAddress))

	ctxlog.FromContext(ctx).Debug("HTTP client created.", "timeout", timeout, "address", hostAddress)
	return nil
}
