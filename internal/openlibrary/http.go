package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	recerrors "github.com/lepinkainen/recto/internal/errors"
)

// getJSON performs a single throttled GET against path and decodes the body
// into target. resource names the thing being fetched for NotFound errors.
func (c *Client) getJSON(ctx context.Context, timeout time.Duration, path string, query url.Values, resource string, target any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return recerrors.NewServiceUnavailableError(SourceName, err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyStatus(resp, resource); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return recerrors.NewServiceUnavailableError(SourceName, fmt.Errorf("decoding %s: %w", resource, err))
	}
	return nil
}

// classifyStatus maps non-2xx responses onto the catalog error taxonomy.
func classifyStatus(resp *http.Response, resource string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return recerrors.NewNotFoundError(resource)
	case resp.StatusCode == http.StatusTooManyRequests:
		return recerrors.NewRateLimitErrorWithRetry(
			fmt.Sprintf("%s rate limit exceeded", SourceName),
			parseRetryAfter(resp.Header.Get("Retry-After")),
		)
	case resp.StatusCode >= 500:
		return recerrors.NewServiceUnavailableError(SourceName, fmt.Errorf("status %d", resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("openlibrary: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func classifyTransportError(err error) error {
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &urlErr) && urlErr.Timeout()) {
		return recerrors.NewServiceUnavailableError(SourceName, fmt.Errorf("request timed out: %w", err))
	}
	return recerrors.NewServiceUnavailableError(SourceName, err)
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
