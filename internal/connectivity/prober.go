package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPProber checks reachability with GET {baseURL}/health.
type HTTPProber struct {
	client *http.Client
	url    string
}

func NewHTTPProber(baseURL string, client *http.Client) *HTTPProber {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPProber{client: client, url: strings.TrimRight(baseURL, "/") + "/health"}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}
