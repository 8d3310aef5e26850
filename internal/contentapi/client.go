// Package contentapi provides client functionality for the content server
package contentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"inclusiveai-offline/pkg/models"
)

// ContentClient defines the interface for content server operations
//
//go:generate mockgen -source=client.go -destination=mocks/mock_client.go -package=mocks
type ContentClient interface {
	Health(ctx context.Context) error
	ListPackages(ctx context.Context) ([]models.PackageSummary, error)
	FetchManifest(ctx context.Context, packageID string) (*models.OfflinePackage, error)
	FetchBundle(ctx context.Context, packageID string) (io.ReadCloser, int64, error)
}

// Client talks to the server that hosts the generated content directory
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new content server client
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Health probes the server; a non-nil error means the client is offline
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// ListPackages returns the metadata of all packages available on the server
func (c *Client) ListPackages(ctx context.Context) ([]models.PackageSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/offline-packages", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("package listing returned status %d", resp.StatusCode)
	}

	var summaries []models.PackageSummary
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		return nil, fmt.Errorf("failed to decode package listing: %w", err)
	}

	return summaries, nil
}

// FetchManifest downloads and decodes one package manifest
func (c *Client) FetchManifest(ctx context.Context, packageID string) (*models.OfflinePackage, error) {
	url := fmt.Sprintf("%s/offline-content/%s.json", c.baseURL, packageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest fetch returned status %d", resp.StatusCode)
	}

	var pkg models.OfflinePackage
	if err := json.NewDecoder(resp.Body).Decode(&pkg); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	return &pkg, nil
}

// FetchBundle opens a streaming download of a package's zip bundle. The caller
// owns the returned reader. The reported length is -1 when unknown.
func (c *Client) FetchBundle(ctx context.Context, packageID string) (io.ReadCloser, int64, error) {
	url := fmt.Sprintf("%s/offline-content/%s.zip", c.baseURL, packageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	// Bundle downloads may be large; rely on the context, not the client timeout
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch bundle: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("bundle fetch returned status %d", resp.StatusCode)
	}

	return resp.Body, resp.ContentLength, nil
}
