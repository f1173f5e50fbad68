package print

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/output"
)

func TestPrint_LogsEveryExtraKey(t *testing.T) {
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
	out := output.New()
	require.NoError(t, out.Set("b", 2))
	require.NoError(t, out.Set("a", "one"))

	require.NoError(t, Print(ctx, nil, out))

	logs := buf.String()
	assert.Contains(t, logs, "keys=2")
	assert.Contains(t, logs, `key=a value="\"one\""`)
	assert.Contains(t, logs, "key=b value=2")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("key=a")), bytes.Index(buf.Bytes(), []byte("key=b")))
}
