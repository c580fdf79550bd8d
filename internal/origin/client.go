// Package origin fetches authoritative values for read-through lookups.
package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/stashd/warden/internal/errors"
	"github.com/stashd/warden/internal/httpclient"
	"github.com/stashd/warden/internal/metrics"
	"github.com/stashd/warden/internal/utils"
)

// ErrNotFound reports that the origin has no value for the key. It is a
// definitive answer, not a transient failure, so it is never retried.
var ErrNotFound = errors.New("origin: key not found")

type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      utils.RetryConfig
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpclient.New(timeout),
		retry:      utils.OriginRetryConfig(),
	}
}

// Fetch retrieves the raw value for key from the origin, retrying
// transient failures with backoff.
func (c *Client) Fetch(ctx context.Context, key string) ([]byte, error) {
	return utils.WithRetry(ctx, func(ctx context.Context) ([]byte, error) {
		return c.fetchOnce(ctx, key)
	}, c.retry)
}

func (c *Client) fetchOnce(ctx context.Context, key string) ([]byte, error) {
	fetchURL := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(key))

	start := time.Now()
	body, err := c.get(ctx, fetchURL)
	// A miss is a completed round trip, not an upstream failure.
	metrics.RecordOriginFetch(ctx, time.Since(start).Seconds(), err == nil || errors.Is(err, ErrNotFound))
	return body, err
}

func (c *Client) get(ctx context.Context, fetchURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fetchURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.NewUpstreamError(
			fmt.Sprintf("origin returned status %d: %s", resp.StatusCode, snippet(body)),
			"ORIGIN_BAD_STATUS", nil)
	}

	return io.ReadAll(resp.Body)
}

// snippet keeps error messages bounded when the origin answers with a
// full error page.
func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
