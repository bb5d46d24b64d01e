package rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"stack-keeper/internal/logger"
)

type httpClient struct {
	config    *HTTPConfig
	client    *http.Client
	transport *http.Transport
}

/**
 * Create new HTTP client for loopback communication with the keeper
 * @param {HTTPConfig} config - HTTP client configuration, nil for discovery
 * @returns {HTTPClient} HTTP client interface
 * @description
 * - The transport always dials the configured keeper address, regardless of
 *   the host in the URL
 * @example
 * client := rpc.NewHTTPClient(nil)
 * resp, err := client.Get("/api/v1/services", nil)
 */
func NewHTTPClient(config *HTTPConfig) HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}

	c := &httpClient{
		config: config,
	}
	c.transport = &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, "tcp", config.Address)
		},
	}
	c.client = &http.Client{
		Transport: c.transport,
		Timeout:   config.Timeout,
	}
	return c
}

/**
 * Send GET request to the keeper
 * @param {string} path - API endpoint path
 * @param {map[string]interface{}} params - Query parameters
 * @returns {*HTTPResponse} Decoded response with status and body
 * @returns {error} Error when the keeper cannot be reached
 */
func (c *httpClient) Get(path string, params map[string]interface{}) (*HTTPResponse, error) {
	url, err := buildURL(c.config.BaseURL, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	logger.Debugf("Sending GET request to %s", url)

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return deserializeResponse(resp)
}

/**
 * Send POST request to the keeper
 * @param {string} path - API endpoint path
 * @param {interface{}} data - Request body, serialized as JSON; nil for none
 * @returns {*HTTPResponse} Decoded response with status and body
 * @returns {error} Error when the keeper cannot be reached
 */
func (c *httpClient) Post(path string, data interface{}) (*HTTPResponse, error) {
	url, err := buildURL(c.config.BaseURL, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	body, err := serializeData(data)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Sending POST request to %s", url)

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return deserializeResponse(resp)
}

func (c *httpClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
