package controllers

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"stack-keeper/internal/config"
	"stack-keeper/internal/logger"
	"stack-keeper/internal/middleware"
	"stack-keeper/internal/models"
	"stack-keeper/internal/secrets"
	"stack-keeper/services"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.InitLogger("console", "error", false)
}

// newTestRouter wires the full API around throwaway port-0 services.
func newTestRouter(t *testing.T, specs ...models.ServiceSpec) (*gin.Engine, *services.Server) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests rely on unix shell commands")
	}

	cfg := &config.AppConfig{}
	cfg.Buffer.Capacity = 100
	cfg.Timeout.StopGrace = 2
	cfg.Timeout.StartProbe = 5
	cfg.Timeout.Git = 10
	cfg.Interval.Liveness = 1
	cfg.Interval.GitRefresh = 60

	for i := range specs {
		if specs[i].WorkDir == "" {
			specs[i].WorkDir = t.TempDir()
		}
	}
	stack := &config.StackSpec{Services: specs}

	store := services.NewLogStore(cfg.Buffer.Capacity)
	resolver := secrets.NewResolver(&config.SecretsConfig{})
	svcManager := services.NewServiceManager(stack, cfg, store, resolver)
	gitManager := services.NewGitManager(stack, cfg)
	server := services.NewServer(stack, cfg, store, svcManager, gitManager)
	t.Cleanup(server.Shutdown)

	router := gin.New()
	router.Use(middleware.MetricsMiddleware())
	NewAPIController(server).RegisterRoutes(router)
	NewServiceController(server).RegisterRoutes(router)
	NewLogController(server).RegisterRoutes(router)
	NewGitController(server).RegisterRoutes(router)
	return router, server
}

func sleeperSpec(name string) models.ServiceSpec {
	return models.ServiceSpec{
		Name:    name,
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 60"},
	}
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

/**
 * Test the readiness probe payload
 */
func TestHealthzEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, sleeperSpec("api"))

	w := doRequest(router, "GET", "/healthz")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var health models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "UP" {
		t.Errorf("expected UP, got %s", health.Status)
	}
	if health.Version == "" {
		t.Error("version missing from health payload")
	}
}

/**
 * Test service listing and single-service lookup
 */
func TestServiceListAndGet(t *testing.T) {
	router, _ := newTestRouter(t, sleeperSpec("api"), sleeperSpec("web"))

	w := doRequest(router, "GET", "/api/v1/services")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var details []models.ServiceDetail
	if err := json.Unmarshal(w.Body.Bytes(), &details); err != nil {
		t.Fatal(err)
	}
	if len(details) != 2 || details[0].Name != "api" || details[1].Name != "web" {
		t.Errorf("unexpected listing: %+v", details)
	}
	if details[0].Status != models.StatusStopped {
		t.Errorf("fresh service should be stopped, got %s", details[0].Status)
	}

	w = doRequest(router, "GET", "/api/v1/services/web")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doRequest(router, "GET", "/api/v1/services/nope")
	if w.Code != 404 {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var errResp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatal(err)
	}
	if errResp.Code != "service.notexist" {
		t.Errorf("expected service.notexist, got %s", errResp.Code)
	}
}

/**
 * Test the start/stop lifecycle over HTTP
 */
func TestServiceLifecycleOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t, sleeperSpec("api"))

	w := doRequest(router, "POST", "/api/v1/services/api/start")
	if w.Code != 200 {
		t.Fatalf("start: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var detail models.ServiceDetail
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Status != models.StatusRunning {
		t.Fatalf("expected running, got %s", detail.Status)
	}

	w = doRequest(router, "POST", "/api/v1/services/api/stop")
	if w.Code != 200 {
		t.Fatalf("stop: expected 200, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Status != models.StatusStopped {
		t.Fatalf("expected stopped, got %s", detail.Status)
	}
}

/**
 * Test that launch failures map to the stable error code
 */
func TestServiceStartFailureCode(t *testing.T) {
	router, _ := newTestRouter(t, models.ServiceSpec{
		Name:    "broken",
		Command: "/nonexistent/binary",
	})

	w := doRequest(router, "POST", "/api/v1/services/broken/start")
	if w.Code != 500 {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var errResp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatal(err)
	}
	if errResp.Code != "process.launch_failed" {
		t.Errorf("expected process.launch_failed, got %s", errResp.Code)
	}
}

/**
 * Test that a foreign listener yields a 409 naming port and pids
 */
func TestServicePortConflictOverHTTP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	spec := sleeperSpec("api")
	spec.Port = port
	router, _ := newTestRouter(t, spec)

	w := doRequest(router, "POST", "/api/v1/services/api/start")
	if w.Code != 409 {
		t.Fatalf("expected 409, got %d (%s)", w.Code, w.Body.String())
	}
	var errResp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatal(err)
	}
	if errResp.Code != "port.conflict" {
		t.Errorf("expected port.conflict, got %s", errResp.Code)
	}
	if errResp.Conflict == nil {
		t.Fatal("conflict body missing from 409 response")
	}
	if errResp.Conflict.Port != port {
		t.Errorf("conflict names wrong port: %d", errResp.Conflict.Port)
	}
	if len(errResp.Conflict.Pids) == 0 {
		t.Error("conflict names no blocking pids")
	}
}

/**
 * Test stack-wide start and stop
 */
func TestStackOperations(t *testing.T) {
	router, server := newTestRouter(t, sleeperSpec("api"), sleeperSpec("web"))

	w := doRequest(router, "POST", "/api/v1/stack/start")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, name := range []string{"api", "web"} {
		if got := server.Services().GetInstance(name).Status(); got != models.StatusRunning {
			t.Errorf("%s: expected running, got %s", name, got)
		}
	}

	w = doRequest(router, "POST", "/api/v1/stack/stop")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, name := range []string{"api", "web"} {
		if got := server.Services().GetInstance(name).Status(); got != models.StatusStopped {
			t.Errorf("%s: expected stopped, got %s", name, got)
		}
	}
}

/**
 * Test the log poll endpoint: since cursor, tail and truncation flag
 */
func TestLogPollEndpoint(t *testing.T) {
	router, server := newTestRouter(t, sleeperSpec("api"))
	store := server.Logs()

	for i := 0; i < 10; i++ {
		store.Append("api", models.LevelInfo, models.StreamStdout, "line")
	}

	w := doRequest(router, "GET", "/api/v1/logs/api?since=4")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var page models.LogPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Entries) != 6 {
		t.Errorf("expected 6 entries past cursor 4, got %d", len(page.Entries))
	}
	if page.Truncated {
		t.Error("no eviction happened; truncated must be false")
	}
	if page.MaxID != 10 {
		t.Errorf("expected maxId 10, got %d", page.MaxID)
	}

	w = doRequest(router, "GET", "/api/v1/logs/api?tail=3")
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Entries) != 3 {
		t.Errorf("expected 3 tail entries, got %d", len(page.Entries))
	}

	w = doRequest(router, "GET", "/api/v1/logs/nope")
	if w.Code != 404 {
		t.Errorf("expected 404 for unknown service, got %d", w.Code)
	}

	w = doRequest(router, "GET", "/api/v1/logs/api?since=banana")
	if w.Code != 400 {
		t.Errorf("expected 400 for invalid cursor, got %d", w.Code)
	}

	// The stream endpoint applies the same cursor validation.
	w = doRequest(router, "GET", "/api/v1/logs/stream?service=api&since=banana")
	if w.Code != 400 {
		t.Errorf("stream: expected 400 for invalid cursor, got %d", w.Code)
	}
}

/**
 * Test that the truncated flag marks a gap caused by eviction
 */
func TestLogPollTruncation(t *testing.T) {
	router, server := newTestRouter(t, sleeperSpec("api"))
	store := server.Logs()

	// Capacity is 100; push past it so early ids get evicted.
	for i := 0; i < 150; i++ {
		store.Append("api", models.LevelInfo, models.StreamStdout, "line")
	}

	w := doRequest(router, "GET", "/api/v1/logs/api?since=10")
	var page models.LogPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if !page.Truncated {
		t.Error("cursor pointing before the ring must report truncated")
	}
	if page.MinID != 51 {
		t.Errorf("expected oldest retained id 51, got %d", page.MinID)
	}
}

/**
 * Test the SSE stream delivers an appended entry
 */
func TestLogStreamDeliversEntry(t *testing.T) {
	router, server := newTestRouter(t, sleeperSpec("api"))
	store := server.Logs()

	ts := httptest.NewServer(router)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/logs/stream?service=api&since=0", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		store.Append("api", models.LevelInfo, models.StreamStdout, "hello-stream")
	}()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, "hello-stream") {
			var entry models.LogEntry
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &entry); err != nil {
				t.Fatalf("bad event payload: %v", err)
			}
			if entry.Service != "api" {
				t.Errorf("expected service api, got %s", entry.Service)
			}
			return
		}
	}
	t.Fatal("stream closed without delivering the entry")
}

/**
 * Test git endpoints reject unknown repositories
 */
func TestGitUnknownRepoOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t, sleeperSpec("api"))

	for _, req := range [][2]string{
		{"GET", "/api/v1/git/nope"},
		{"POST", "/api/v1/git/nope/refresh"},
		{"POST", "/api/v1/git/nope/update"},
	} {
		w := doRequest(router, req[0], req[1])
		if w.Code != 404 {
			t.Errorf("%s %s: expected 404, got %d", req[0], req[1], w.Code)
		}
		var errResp models.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
			t.Fatal(err)
		}
		if errResp.Code != "repo.notexist" {
			t.Errorf("expected repo.notexist, got %s", errResp.Code)
		}
	}

	// Empty repo list is a valid, empty response.
	w := doRequest(router, "GET", "/api/v1/git")
	if w.Code != 200 {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

/**
 * Test the Prometheus scrape endpoint is wired
 */
func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, sleeperSpec("api"))

	doRequest(router, "GET", "/api/v1/services")

	w := doRequest(router, "GET", "/metrics")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "keeper_http_requests_total") {
		t.Error("request counter missing from scrape output")
	}
}
