// Package shopify provides the Shopify Admin API client and the
// per-domain dispatch service the execution router delegates to. The
// router receives the client as an injected capability and never
// constructs it.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// APIVersion pins the Admin API version for all requests.
const APIVersion = "2024-01"

// maxResponseSize limits the response body read.
const maxResponseSize = 20 * 1024 * 1024 // 20MB

// Client is the capability-typed verb set the dispatch service uses.
type Client interface {
	Get(ctx context.Context, path string) (map[string]any, error)
	Post(ctx context.Context, path string, body any) (map[string]any, error)
	Put(ctx context.Context, path string, body any) (map[string]any, error)
	Delete(ctx context.Context, path string) (map[string]any, error)
}

// RESTClient talks to one shop's Admin REST API.
type RESTClient struct {
	shopDomain  string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// ClientOption configures a RESTClient.
type ClientOption func(*RESTClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(r *RESTClient) {
		r.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(r *RESTClient) {
		r.logger = logger
	}
}

// NewRESTClient creates a client for one shop. shopDomain may be a
// bare domain ("example.myshopify.com") or a full https URL.
func NewRESTClient(shopDomain, accessToken string, opts ...ClientOption) *RESTClient {
	c := &RESTClient{
		shopDomain:  strings.TrimSuffix(shopDomain, "/"),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET against an admin resource path.
func (c *RESTClient) Get(ctx context.Context, path string) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST against an admin resource path.
func (c *RESTClient) Post(ctx context.Context, path string, body any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Put performs a PUT against an admin resource path.
func (c *RESTClient) Put(ctx context.Context, path string, body any) (map[string]any, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

// Delete performs a DELETE against an admin resource path.
func (c *RESTClient) Delete(ctx context.Context, path string) (map[string]any, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *RESTClient) do(ctx context.Context, method, path string, body any) (map[string]any, error) {
	url := c.baseURL() + "/admin/api/" + APIVersion + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	c.logger.Debug("Shopify API request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopify request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	if len(respBody) == 0 {
		return map[string]any{}, nil
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

func (c *RESTClient) baseURL() string {
	if strings.HasPrefix(c.shopDomain, "http://") || strings.HasPrefix(c.shopDomain, "https://") {
		return c.shopDomain
	}
	return "https://" + c.shopDomain
}

// classifyStatus maps HTTP failures to errors whose messages steer the
// router's retry classification: 429 carries "rate limit" and 422
// carries "validation", both of which the router treats as terminal.
func classifyStatus(statusCode int, body []byte) error {
	detail := string(body)
	if len(detail) > 200 {
		detail = detail[:200] + "..."
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("shopify rate limit exceeded (status 429): %s", detail)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("shopify validation failed (status 422): %s", detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("shopify authorization failed (status %d): %s", statusCode, detail)
	default:
		return fmt.Errorf("shopify API error (status %d): %s", statusCode, detail)
	}
}
