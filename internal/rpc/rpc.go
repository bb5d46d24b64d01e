package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stack-keeper/internal/env"
	"stack-keeper/internal/models"
)

// HTTPClient is the transport used by CLI subcommands to talk to the
// running keeper over loopback.
type HTTPClient interface {
	Get(path string, params map[string]interface{}) (*HTTPResponse, error)
	Post(path string, data interface{}) (*HTTPResponse, error)
	Close() error
}

// HTTPConfig holds the keeper endpoint the client dials.
type HTTPConfig struct {
	Address string        // keeper listen address, host:port
	Timeout time.Duration // per-request timeout
	BaseURL string        // scheme+host used for URL building
}

// DefaultHTTPConfig discovers the running keeper's endpoint, falling back
// to the default loopback port.
func DefaultHTTPConfig() *HTTPConfig {
	c := &HTTPConfig{
		Timeout: 5 * time.Second,
		BaseURL: "http://localhost",
	}
	c.Address = readEndpoint()
	if c.Address == "" {
		c.Address = "127.0.0.1:7330"
	}
	return c
}

// HTTPResponse is the decoded reply of one keeper API call.
type HTTPResponse struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
	Error      string              `json:"error"`
}

// endpointState is what the server publishes so CLI invocations can find it.
type endpointState struct {
	Address string `json:"address"`
	Pid     int    `json:"pid"`
}

func endpointPath() string {
	return filepath.Join(env.KeeperDir, "share", "endpoint.json")
}

/**
 * Publish the server's listen address for CLI discovery
 * @param {string} address - host:port the HTTP server is bound to
 * @returns {error} Error when the share directory cannot be written
 */
func WriteEndpoint(address string) error {
	if err := os.MkdirAll(filepath.Dir(endpointPath()), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(endpointState{Address: address, Pid: os.Getpid()})
	if err != nil {
		return err
	}
	return os.WriteFile(endpointPath(), data, 0o644)
}

// RemoveEndpoint withdraws the published address on shutdown.
func RemoveEndpoint() {
	os.Remove(endpointPath())
}

func readEndpoint() string {
	data, err := os.ReadFile(endpointPath())
	if err != nil {
		return ""
	}
	var state endpointState
	if err := json.Unmarshal(data, &state); err != nil {
		return ""
	}
	return state.Address
}

// buildURL joins the base URL, path and query parameters.
func buildURL(baseURL, path string, params map[string]interface{}) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Path == "" {
		u.Path = path
	} else {
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		u.Path += path
	}

	if params != nil {
		q := u.Query()
		for key, value := range params {
			switch v := value.(type) {
			case string:
				q.Set(key, v)
			case int, int8, int16, int32, int64:
				q.Set(key, fmt.Sprintf("%d", v))
			case uint, uint8, uint16, uint32, uint64:
				q.Set(key, fmt.Sprintf("%d", v))
			case bool:
				q.Set(key, fmt.Sprintf("%t", v))
			default:
				q.Set(key, fmt.Sprintf("%v", v))
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func serializeData(data interface{}) (io.Reader, error) {
	if data == nil {
		return nil, nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize data: %w", err)
	}
	return bytes.NewReader(jsonData), nil
}

func deserializeResponse(resp *http.Response) (*HTTPResponse, error) {
	httpResp := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	defer resp.Body.Close()
	httpResp.Body = body
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return httpResp, nil
	}
	if len(body) == 0 {
		httpResp.Error = resp.Status
	} else {
		var errBody models.ErrorResponse
		if err := json.Unmarshal(body, &errBody); err != nil {
			httpResp.Error = string(body)
		} else {
			httpResp.Error = errBody.Error
		}
	}
	if httpResp.Error == "" {
		httpResp.Error = "Unknown error"
	}
	return httpResp, nil
}
