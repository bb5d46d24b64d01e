package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stack-keeper/internal/env"
	"stack-keeper/internal/logger"
)

func init() {
	logger.InitLogger("console", "error", false)
}

/**
 * Test URL construction with paths and query parameters
 */
func TestBuildURL(t *testing.T) {
	url, err := buildURL("http://localhost", "/api/v1/services", nil)
	if err != nil {
		t.Fatal(err)
	}
	if url != "http://localhost/api/v1/services" {
		t.Errorf("unexpected url: %s", url)
	}

	url, err = buildURL("http://localhost", "/api/v1/logs/api", map[string]interface{}{
		"since": int64(42),
		"tail":  10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(url, "since=42") || !strings.Contains(url, "tail=10") {
		t.Errorf("query parameters missing: %s", url)
	}
}

/**
 * Test the endpoint publish/discover roundtrip
 */
func TestEndpointRoundtrip(t *testing.T) {
	old := env.KeeperDir
	env.KeeperDir = t.TempDir()
	defer func() { env.KeeperDir = old }()

	if got := readEndpoint(); got != "" {
		t.Fatalf("expected empty endpoint before publish, got %q", got)
	}

	if err := WriteEndpoint("127.0.0.1:7331"); err != nil {
		t.Fatal(err)
	}
	if got := readEndpoint(); got != "127.0.0.1:7331" {
		t.Fatalf("expected published address, got %q", got)
	}

	RemoveEndpoint()
	if got := readEndpoint(); got != "" {
		t.Fatalf("expected empty endpoint after removal, got %q", got)
	}
}

/**
 * Test GET and POST against a mock keeper, including error decoding
 */
func TestHTTPClientRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			json.NewEncoder(w).Encode(map[string]string{"hello": "world"})
		case "/fail":
			w.WriteHeader(500)
			json.NewEncoder(w).Encode(map[string]string{"code": "x", "error": "it broke"})
		default:
			w.WriteHeader(404)
		}
	}))
	defer ts.Close()

	client := NewHTTPClient(&HTTPConfig{
		Address: strings.TrimPrefix(ts.URL, "http://"),
		Timeout: 5 * time.Second,
		BaseURL: "http://localhost",
	})
	defer client.Close()

	resp, err := client.Get("/ok", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 || resp.Error != "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.Contains(string(resp.Body), "world") {
		t.Errorf("body lost: %s", resp.Body)
	}

	resp, err = client.Post("/fail", map[string]string{"a": "b"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if resp.Error != "it broke" {
		t.Errorf("error body not decoded: %q", resp.Error)
	}
}
