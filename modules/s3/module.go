package s3

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/handlers"
	"github.com/vk/dlsgrid/internal/output"
	"github.com/vk/dlsgrid/internal/registry"
	"github.com/vk/dlsgrid/modules/http_client"
)

// Output keys read and written by S3Upload.
const (
	UploadKey = "s3_upload"
	ResultKey = "s3_upload_result"
)

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Upload names a file local to the host running the span and the
// pre-signed URL it is uploaded to.
type Upload struct {
	SourcePath string `json:"source_path"`
	UploadURL  string `json:"upload_url"`
}

// Result is what S3Upload records under ResultKey.
type Result struct {
	Status string `json:"status"`
	Size   int64  `json:"size"`
}

// S3Upload PUTs the file described under UploadKey to its pre-signed URL
// using the host's shared HTTP client.
func S3Upload(ctx context.Context, res *registry.Resources, out *output.Output) error {
	logger := ctxlog.FromContext(ctx).With("action", "upload")

	var in Upload
	found, err := out.Get(UploadKey, &in)
	if err != nil {
		return err
	}
	if !found || in.SourcePath == "" || in.UploadURL == "" {
		return errors.New("output key '" + UploadKey + "' must name a source_path and an upload_url")
	}

	client, err := registry.Lookup[*http.Client](res, http_client.ClientResource)
	if err != nil {
		return err
	}

	file, err := os.Open(in.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file '%s': %w", in.SourcePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for '%s': %w", in.SourcePath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, in.UploadURL, file)
	if err != nil {
		return fmt.Errorf("failed to create S3 upload request: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(in.SourcePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading file to S3", "source", in.SourcePath, "size", stat.Size(), "contentType", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute S3 upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("S3 upload failed with status: %s", resp.Status)
	}

	logger.Info("Successfully uploaded file", "status", resp.Status)
	return out.Set(ResultKey, Result{Status: resp.Status, Size: stat.Size()})
}

// RegisterHandlers registers the S3Upload method.
func (m *Module) RegisterHandlers(h *handlers.Handlers) {
	h.RegisterMethod("S3Upload", S3Upload)
}
