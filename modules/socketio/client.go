package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/registry"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// ClientResource is the resource name SocketIOClient stores its client under.
const ClientResource = "socketio_client"

// Client is a socket.io connection shared by the spans of one host. It
// connects on first use and reconnects when the socket dropped.
type Client struct {
	url       *url.URL
	namespace string
	timeout   time.Duration
	insecure  bool

	mu sync.Mutex
	io *socket.Socket
}

// URL returns the endpoint the client connects to.
func (c *Client) URL() string { return c.url.String() }

// Socket returns the connected socket, connecting first if needed.
func (c *Client) Socket(ctx context.Context) (*socket.Socket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.io != nil && c.io.Connected() {
		return c.io, nil
	}
	io, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.io = io
	return io, nil
}

func (c *Client) connect(ctx context.Context) (*socket.Socket, error) {
	logger := ctxlog.FromContext(ctx).With("resource", ClientResource, "url", c.URL())
	logger.Info("Creating new client instance...")

	opts := socket.DefaultOptions()
	opts.SetPath(c.url.Path)
	if c.insecure {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 2)

	baseURL := fmt.Sprintf("%s://%s", c.url.Scheme, c.url.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(c.namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		logger.Debug("Connection attempt failed.", "error", err)
		connectChan <- err
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return io, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(c.timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", c.timeout)
	}
}

// createSocketIOClient is the SocketIOClient resource factory. The client
// targets the socket.io endpoint of the host the group is initialized on.
func (m *Module) createSocketIOClient(ctx context.Context, res *registry.Resources, hostAddress string) error {
	port := m.Port
	if port == 0 {
		port = 3000
	}
	path := m.Path
	if path == "" {
		path = "/socket.io/"
	}
	timeout := m.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := &Client{
		url: &url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(hostAddress, strconv.Itoa(port)),
			Path:   path,
		},
		namespace: m.Namespace,
		timeout:   timeout,
		insecure:  m.InsecureSkipVerify,
	}
	res.Set(ClientResource, client)

	ctxlog.FromContext(ctx).Debug("Socket.io client created.", "url", client.URL())
	return nil
}
