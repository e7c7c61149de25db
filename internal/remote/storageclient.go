// Package remote defines the collaborator contracts and HTTP clients.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/eventra/mobilesync/internal/errors"
)

// StorageConfig holds connection configuration for remote object storage.
type StorageConfig struct {
	BaseURL string
	APIKey  string
	Bucket  string
	Timeout time.Duration
}

// StorageClient implements ObjectStore against an HTTP object API.
// Without the overwrite header an upload to an existing path returns 409,
// which is surfaced as OBJECT_EXISTS so the caller can rename and retry.
type StorageClient struct {
	config     *StorageConfig
	httpClient *http.Client
}

// NewStorageClient creates a StorageClient.
func NewStorageClient(config *StorageConfig) *StorageClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StorageClient{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Upload implements ObjectStore.
func (c *StorageClient) Upload(ctx context.Context, path string, data []byte, opts UploadOptions) error {
	u := fmt.Sprintf("%s/storage/v1/object/%s/%s",
		strings.TrimRight(c.config.BaseURL, "/"), c.config.Bucket, strings.TrimLeft(path, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if opts.Overwrite {
		req.Header.Set("x-upsert", "true")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.Wrap(apperrors.ErrTimeout, "upload cancelled or timed out", err)
		}
		return apperrors.Wrap(apperrors.ErrNetwork, "upload request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return apperrors.New(apperrors.ErrObjectExists, fmt.Sprintf("object %q already exists", path))
	default:
		body, _ := io.ReadAll(resp.Body)
		return apperrors.Wrap(apperrors.ErrRemote, "upload failed",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
}
