package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/output"
	"github.com/vk/dlsgrid/internal/registry"
	"github.com/zishang520/engine.io/v2/types"
)

// Output keys read and written by SocketIORequest.
const (
	RequestKey  = "socketio_request"
	ResponseKey = "socketio_response"
)

const defaultRequestTimeout = 10 * time.Second

// Request is what SocketIORequest reads from RequestKey.
type Request struct {
	EmitEvent string `json:"emit_event"`
	OnEvent   string `json:"on_event"`
	EmitData  any    `json:"emit_data,omitempty"`
	// Timeout is a Go duration string. Empty means 10s.
	Timeout string `json:"timeout,omitempty"`
}

// Response is what SocketIORequest records under ResponseKey.
type Response struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func readRequest(out *output.Output) (*Request, time.Duration, error) {
	var req Request
	found, err := out.Get(RequestKey, &req)
	if err != nil {
		return nil, 0, err
	}
	if !found || req.EmitEvent == "" || req.OnEvent == "" {
		return nil, 0, errors.New("output key '" + RequestKey + "' must name an emit_event and an on_event")
	}

	timeout := defaultRequestTimeout
	if req.Timeout != "" {
		timeout, err = time.ParseDuration(req.Timeout)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to parse timeout: %w", err)
		}
	}
	return &req, timeout, nil
}

// onRunSocketIORequest emits the event described under RequestKey on the
// host's socket.io client and records the first reply event.
func onRunSocketIORequest(ctx context.Context, res *registry.Resources, out *output.Output) error {
	req, timeout, err := readRequest(out)
	if err != nil {
		return err
	}
	client, err := registry.Lookup[*Client](res, ClientResource)
	if err != nil {
		return fmt.Errorf("socket.io client dependency was not injected: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	io, err := client.Socket(opCtx)
	if err != nil {
		return err
	}

	logger := ctxlog.FromContext(ctx).With("sid", io.Id())
	logger.Info("Executing request", "emitEvent", req.EmitEvent, "onEvent", req.OnEvent)

	done := make(chan any, 1)
	io.Once(types.EventName(req.OnEvent), func(data ...any) {
		var reply any
		if len(data) > 0 {
			reply = data[0]
		}
		select {
		case done <- reply:
		default:
		}
	})

	jsonData, _ := json.Marshal(req.EmitData)
	logger.Debug("Emitting event", "event", req.EmitEvent, "data", string(jsonData))
	io.Emit(req.EmitEvent, req.EmitData)

	select {
	case <-opCtx.Done():
		return fmt.Errorf("timed out after %v waiting for event '%s'", timeout, req.OnEvent)
	case reply := <-done:
		logger.Info("Successfully received response event", "event", req.OnEvent)
		return out.Set(ResponseKey, Response{Event: req.OnEvent, Data: reply})
	}
}
