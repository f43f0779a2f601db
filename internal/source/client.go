package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/profile-enricher/internal/errors"
)

// apiClient is the shared HTTP plumbing for the concrete data sources:
// a rate-limited client with upstream status codes mapped onto the
// service error taxonomy.
type apiClient struct {
	name    string
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

func newAPIClient(name, baseURL, token string, requestsPerSecond float64) *apiClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &apiClient{
		name:    name,
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// getJSON fetches path and decodes the response body into out.
func (c *apiClient) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("malformed response from %s", c.name), err)
	}
	return nil
}

// get fetches path and returns the raw response body. Upstream
// failures come back categorized.
func (c *apiClient) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewTransientFetchError(c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("building request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, apperrors.NewTransientFetchError(c.name, err)
		}
		return nil, apperrors.NewInternalError(fmt.Sprintf("request to %s failed", c.name), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTransientFetchError(c.name, err)
	}
	return body, nil
}

func (c *apiClient) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewNotFoundError(c.name+" account", resp.Request.URL.Path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewRateLimitError(c.name, retryAfterSeconds(resp))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.NewAuthError(c.name)
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return apperrors.NewTransientFetchError(c.name, fmt.Errorf("upstream returned %d", resp.StatusCode))
	default:
		return apperrors.NewInternalError(
			fmt.Sprintf("%s returned unexpected status %d", c.name, resp.StatusCode), nil)
	}
}

func retryAfterSeconds(resp *http.Response) int {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			return seconds
		}
	}
	return 60
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
