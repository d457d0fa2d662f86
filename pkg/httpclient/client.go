package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

// Client provides HTTP client for the meshbus API
type Client struct {
	config     Config
	httpClient *http.Client
	baseURL    *url.URL
}

// NewClient creates a new meshbus HTTP client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
	}, nil
}

// GetHealth returns the health status of the server
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get health status: %w", err)
	}
	return &resp, nil
}

// ListNodes returns the names connected to the server's router
func (c *Client) ListNodes(ctx context.Context) ([]NodeInfo, error) {
	var resp NodesResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/nodes", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	return resp.Nodes, nil
}

// Send sends data on topic to the listeners in to and waits for the first
// answer. A refusal comes back as an *APIError carrying it.
func (c *Client) Send(ctx context.Context, to network.Selector, topic string, data any, timeout string) (*SendResponse, error) {
	req := SendRequest{To: to, Topic: topic, Data: data, Timeout: timeout}

	var resp SendResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/send", req, &resp); err != nil {
		return nil, fmt.Errorf("send failed: %w", err)
	}
	return &resp, nil
}

// Notify sends data on topic to the listeners in to without waiting for an
// answer.
func (c *Client) Notify(ctx context.Context, to network.Selector, topic string, data any) (*AcceptedResponse, error) {
	req := SendRequest{To: to, Topic: topic, Data: data, NoReply: true}

	var resp AcceptedResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/send", req, &resp); err != nil {
		return nil, fmt.Errorf("notify failed: %w", err)
	}
	return &resp, nil
}

// doRequest performs an HTTP request, decoding a JSON answer into respBody
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any, respBody any) error {
	fullURL := c.baseURL.ResolveReference(&url.URL{Path: path})

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, &apiErr.Response); err != nil {
			apiErr.Response.Message = string(bodyBytes)
		}
		return apiErr
	}

	if respBody != nil {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
