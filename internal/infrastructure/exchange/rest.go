package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vitos/signal_trader/internal/domain"
	"golang.org/x/time/rate"
)

// restClient is the shared HTTP plumbing: one rate limiter per adapter and
// BrokerError for every non-2xx answer.
type restClient struct {
	broker  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func newRESTClient(broker, baseURL string, rps float64, burst int) *restClient {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &restClient{
		broker:  broker,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (c *restClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
}

func (c *restClient) do(req *http.Request, op string) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, domain.NewBrokerError(c.broker, op, 0, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewBrokerError(c.broker, op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewBrokerError(c.broker, op, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewBrokerError(c.broker, op, resp.StatusCode, fmt.Errorf("API error: %s", truncate(body, 256)))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
