// Package ipcompat provides a client for the IP compatibility service, which maps
// an observed address to every address (IPv4 and IPv6) the same client may use.
package ipcompat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abrezinsky/voterewards/internal/logger"
)

// DefaultBaseURL is the public IP compatibility service
const DefaultBaseURL = "https://ipv6-adapter.com"

// FetchResponse is the response from the fetch API
type FetchResponse struct {
	IPs []string `json:"ips"`
}

// Client defines the interface for IP expansion
type Client interface {
	// Expand returns the addresses associated with ip
	Expand(ctx context.Context, ip string) ([]string, error)
	// BaseURL returns the configured service base URL
	BaseURL() string
}

// HTTPClient is a real HTTP client for the IP compatibility service
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

// NewHTTPClient creates a new client. An empty baseURL uses DefaultBaseURL.
func NewHTTPClient(baseURL string, log logger.Logger) *HTTPClient {
	return NewHTTPClientWithHTTPClient(baseURL, &http.Client{Timeout: 5 * time.Second}, log)
}

// NewHTTPClientWithHTTPClient creates a new client with a custom http.Client
func NewHTTPClientWithHTTPClient(baseURL string, httpClient *http.Client, log logger.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log,
	}
}

// BaseURL returns the configured service base URL
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Expand fetches the address list for ip
func (c *HTTPClient) Expand(ctx context.Context, ip string) ([]string, error) {
	reqURL := fmt.Sprintf("%s/api/v1/fetch?ip=%s", c.baseURL, url.QueryEscape(ip))

	c.log.Debug("IP compatibility request", "url", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IP compatibility service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("IP compatibility service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response FetchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	ips := make([]string, 0, len(response.IPs))
	for _, addr := range response.IPs {
		if addr = strings.TrimSpace(addr); addr != "" {
			ips = append(ips, addr)
		}
	}

	c.log.Debug("IP compatibility response", "ip", ip, "count", len(ips))
	return ips, nil
}

var _ Client = (*HTTPClient)(nil)
