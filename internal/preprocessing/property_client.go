package preprocessing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

const exportPath = "/properties/export/csv"

// PropertyClientConfig holds property API client configuration
type PropertyClientConfig struct {
	BaseURL        string
	RetryAttempts  int
	RetryInterval  time.Duration
	RequestTimeout time.Duration
}

// PropertyClient fetches the property export that training data is built from.
type PropertyClient struct {
	config PropertyClientConfig
	http   *http.Client
	logger *slog.Logger
}

// NewPropertyClient creates a property API client.
func NewPropertyClient(config PropertyClientConfig, logger *slog.Logger) *PropertyClient {
	if config.RetryAttempts < 1 {
		config.RetryAttempts = 5
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	return &PropertyClient{
		config: config,
		http:   &http.Client{Timeout: config.RequestTimeout},
		logger: logger,
	}
}

type exportResponse struct {
	FileURL string `json:"file_url"`
}

// DatasetURL asks the property API for the location of a fresh CSV export.
func (c *PropertyClient) DatasetURL(ctx context.Context) (string, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + exportPath

	var lastErr error
	for attempt := 1; attempt <= c.config.RetryAttempts; attempt++ {
		var resp exportResponse
		err := c.getJSON(ctx, endpoint, &resp)
		if err == nil && resp.FileURL != "" {
			return resp.FileURL, nil
		}
		if err == nil {
			err = fmt.Errorf("export response has no file_url")
		}
		lastErr = err

		c.logger.Warn("Failed to request dataset export",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.config.RetryAttempts),
			slog.Any("error", err),
		)

		if attempt < c.config.RetryAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.config.RetryInterval):
			}
		}
	}

	return "", fmt.Errorf("%w: %v", domain.ErrNoDataset, lastErr)
}

// Download fetches the CSV export at url.
func (c *PropertyClient) Download(ctx context.Context, url string) ([]byte, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNoDataset, err)
	}
	return body, nil
}

// Fetch locates the latest export and downloads it.
func (c *PropertyClient) Fetch(ctx context.Context) ([]byte, error) {
	url, err := c.DatasetURL(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Downloading dataset", slog.String("url", url))
	return c.Download(ctx, url)
}

func (c *PropertyClient) getJSON(ctx context.Context, url string, dest any) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *PropertyClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
