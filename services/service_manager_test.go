package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"stack-keeper/internal/config"
	"stack-keeper/internal/models"
	"stack-keeper/internal/secrets"
	"stack-keeper/internal/utils"
)

func testConfig() *config.AppConfig {
	cfg := &config.AppConfig{}
	cfg.Buffer.Capacity = 100
	cfg.Timeout.StopGrace = 2
	cfg.Timeout.StartProbe = 5
	cfg.Timeout.Git = 10
	cfg.Interval.Liveness = 1
	cfg.Interval.GitRefresh = 60
	return cfg
}

// newTestManager wires a manager around throwaway specs. Port 0 disables the
// listen probe so plain shell commands can stand in for services.
func newTestManager(t *testing.T, specs ...models.ServiceSpec) (*ServiceManager, *LogStore) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests rely on unix shell commands")
	}
	for i := range specs {
		if specs[i].WorkDir == "" {
			specs[i].WorkDir = t.TempDir()
		}
	}
	store := NewLogStore(100)
	resolver := secrets.NewResolver(&config.SecretsConfig{})
	sm := NewServiceManager(&config.StackSpec{Services: specs}, testConfig(), store, resolver)
	t.Cleanup(sm.StopAll)
	return sm, store
}

func sleeperSpec(name string) models.ServiceSpec {
	return models.ServiceSpec{
		Name:    name,
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 60"},
	}
}

/**
 * Test the basic start/stop lifecycle
 */
func TestServiceStartStop(t *testing.T) {
	sm, _ := newTestManager(t, sleeperSpec("api"))

	if err := sm.StartService(context.Background(), "api"); err != nil {
		t.Fatal(err)
	}
	detail := sm.GetInstance("api").GetDetail()
	if detail.Status != models.StatusRunning {
		t.Fatalf("expected running, got %s", detail.Status)
	}
	if detail.Pid <= 0 {
		t.Fatal("expected a live pid")
	}

	if err := sm.StopService("api"); err != nil {
		t.Fatal(err)
	}
	detail = sm.GetInstance("api").GetDetail()
	if detail.Status != models.StatusStopped {
		t.Fatalf("expected stopped, got %s", detail.Status)
	}
}

/**
 * Test that starting a running service is a no-op keeping the same pid
 */
func TestServiceStartIdempotent(t *testing.T) {
	sm, _ := newTestManager(t, sleeperSpec("api"))

	if err := sm.StartService(context.Background(), "api"); err != nil {
		t.Fatal(err)
	}
	pid := sm.GetInstance("api").GetDetail().Pid

	if err := sm.StartService(context.Background(), "api"); err != nil {
		t.Fatal(err)
	}
	if got := sm.GetInstance("api").GetDetail().Pid; got != pid {
		t.Errorf("second start replaced the process: pid %d -> %d", pid, got)
	}
}

/**
 * Test that stopping a stopped service succeeds without effect
 */
func TestServiceStopIdempotent(t *testing.T) {
	sm, _ := newTestManager(t, sleeperSpec("api"))

	if err := sm.StopService("api"); err != nil {
		t.Fatal(err)
	}
	if got := sm.GetInstance("api").Status(); got != models.StatusStopped {
		t.Errorf("expected stopped, got %s", got)
	}
}

/**
 * Test that restart yields a fresh process
 */
func TestServiceRestartNewPid(t *testing.T) {
	sm, _ := newTestManager(t, sleeperSpec("api"))

	if err := sm.StartService(context.Background(), "api"); err != nil {
		t.Fatal(err)
	}
	first := sm.GetInstance("api").GetDetail().Pid

	if err := sm.RestartService(context.Background(), "api"); err != nil {
		t.Fatal(err)
	}
	detail := sm.GetInstance("api").GetDetail()
	if detail.Status != models.StatusRunning {
		t.Fatalf("expected running after restart, got %s", detail.Status)
	}
	if detail.Pid == first {
		t.Error("restart kept the old process")
	}
}

/**
 * Test that concurrent restarts serialize into a single live process
 */
func TestServiceConcurrentRestarts(t *testing.T) {
	sm, _ := newTestManager(t, sleeperSpec("api"))

	if err := sm.StartService(context.Background(), "api"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- sm.RestartService(context.Background(), "api")
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}

	if got := sm.GetInstance("api").Status(); got != models.StatusRunning {
		t.Fatalf("expected running, got %s", got)
	}
}

/**
 * Test that a command exiting immediately surfaces as a launch failure
 */
func TestServiceImmediateExit(t *testing.T) {
	sm, _ := newTestManager(t, models.ServiceSpec{
		Name:    "broken",
		Command: "/bin/sh",
		Args:    []string{"-c", "echo boom >&2; exit 3"},
	})

	err := sm.StartService(context.Background(), "broken")
	if err == nil {
		t.Fatal("expected start to fail")
	}
	var launch *LaunchError
	if !errors.As(err, &launch) {
		t.Fatalf("expected LaunchError, got %T: %v", err, err)
	}
	if got := sm.GetInstance("broken").Status(); got != models.StatusCrashed {
		t.Errorf("expected crashed, got %s", got)
	}
	// Early output is carried in the error for diagnosis.
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("launch error lost the process output: %v", err)
	}
}

/**
 * Test that a missing executable fails cleanly
 */
func TestServiceCommandNotFound(t *testing.T) {
	sm, _ := newTestManager(t, models.ServiceSpec{
		Name:    "ghost",
		Command: "/nonexistent/binary",
	})

	err := sm.StartService(context.Background(), "ghost")
	var launch *LaunchError
	if !errors.As(err, &launch) {
		t.Fatalf("expected LaunchError, got %T: %v", err, err)
	}
	if got := sm.GetInstance("ghost").Status(); got != models.StatusCrashed {
		t.Errorf("expected crashed, got %s", got)
	}
}

/**
 * Test that an unexpected exit after startup flips the service to crashed
 */
func TestServiceCrashDetection(t *testing.T) {
	sm, store := newTestManager(t, models.ServiceSpec{
		Name:    "flaky",
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 1"},
	})

	if err := sm.StartService(context.Background(), "flaky"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sm.GetInstance("flaky").Status() == models.StatusCrashed {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if got := sm.GetInstance("flaky").Status(); got != models.StatusCrashed {
		t.Fatalf("expected crashed, got %s", got)
	}

	found := false
	for _, entry := range store.Since("flaky", 0) {
		if entry.Stream == models.StreamSystem && strings.Contains(entry.Line, "unexpectedly") {
			found = true
		}
	}
	if !found {
		t.Error("crash was not recorded in the service's log")
	}
}

/**
 * Test that a critical crash stops the whole stack and raises the fault flag
 */
func TestCriticalCrashStopsStack(t *testing.T) {
	sm, _ := newTestManager(t,
		models.ServiceSpec{
			Name:     "core",
			Command:  "/bin/sh",
			Args:     []string{"-c", "sleep 1"},
			Critical: true,
		},
		sleeperSpec("side"),
	)

	sm.StartAll(context.Background())
	if got := sm.GetInstance("side").Status(); got != models.StatusRunning {
		t.Fatalf("side service not running: %s", got)
	}

	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		if sm.StackFault() && sm.GetInstance("side").Status() == models.StatusStopped {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if !sm.StackFault() {
		t.Fatal("stack fault flag not raised")
	}
	if got := sm.GetInstance("core").Status(); got != models.StatusCrashed {
		t.Errorf("expected core crashed, got %s", got)
	}
	if got := sm.GetInstance("side").Status(); got != models.StatusStopped {
		t.Errorf("expected side stopped, got %s", got)
	}

	// An explicit start clears the fault.
	if err := sm.StartService(context.Background(), "side"); err != nil {
		t.Fatal(err)
	}
	if sm.StackFault() {
		t.Error("stack fault flag not cleared by start")
	}
}

/**
 * Test that a foreign listener on the expected port is reported, not killed
 */
func TestServicePortConflict(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	sm, _ := newTestManager(t, models.ServiceSpec{
		Name:    "api",
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 60"},
		Port:    port,
	})

	err = sm.StartService(context.Background(), "api")
	if err == nil {
		t.Fatal("expected start to fail on occupied port")
	}
	var conflict *PortConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected PortConflictError, got %T: %v", err, err)
	}
	if conflict.Port != port {
		t.Errorf("conflict reports wrong port: %d", conflict.Port)
	}

	// The foreign listener must survive untouched.
	if _, err := net.Dial("tcp", ln.Addr().String()); err != nil {
		t.Error("foreign listener was killed")
	}
}

/**
 * Test that a leftover listener from the service's own workdir is reclaimed
 * and that only that one process is signalled
 */
func TestServiceReclaimsStaleListener(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("process tests rely on unix shell commands")
	}
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	workDir := t.TempDir()
	script := fmt.Sprintf("import socket,time\n"+
		"s=socket.socket()\n"+
		"s.setsockopt(socket.SOL_SOCKET,socket.SO_REUSEADDR,1)\n"+
		"s.bind((\"127.0.0.1\",%d))\n"+
		"s.listen(8)\n"+
		"time.sleep(60)", port)

	// The stale listener deliberately shares this test binary's process
	// group: signalling the group instead of the vetted pid would take the
	// test run down with it.
	stale := exec.Command("python3", "-c", script)
	stale.Dir = workDir
	if err := stale.Start(); err != nil {
		t.Fatal(err)
	}
	staleDone := make(chan struct{})
	go func() {
		stale.Wait()
		close(staleDone)
	}()
	t.Cleanup(func() { stale.Process.Kill() })

	deadline := time.Now().Add(5 * time.Second)
	for !utils.CheckPortOpen(port) {
		if time.Now().After(deadline) {
			t.Fatal("stale listener never came up")
		}
		time.Sleep(50 * time.Millisecond)
	}

	sm, _ := newTestManager(t, models.ServiceSpec{
		Name:    "api",
		Command: "python3",
		Args:    []string{"-c", script},
		WorkDir: workDir,
		Port:    port,
	})

	if err := sm.StartService(context.Background(), "api"); err != nil {
		t.Fatal(err)
	}
	detail := sm.GetInstance("api").GetDetail()
	if detail.Status != models.StatusRunning {
		t.Fatalf("expected running, got %s", detail.Status)
	}
	if detail.Pid == stale.Process.Pid {
		t.Error("supervisor adopted the stale process instead of replacing it")
	}

	select {
	case <-staleDone:
	case <-time.After(3 * time.Second):
		t.Fatal("stale listener survived the reclaim")
	}
}

/**
 * Test that spec env vars reach the child process
 */
func TestServiceSpecEnv(t *testing.T) {
	sm, store := newTestManager(t, models.ServiceSpec{
		Name:    "envy",
		Command: "/bin/sh",
		Args:    []string{"-c", "echo got-$KEEPER_TEST_FLAG; sleep 2"},
		Env:     map[string]string{"KEEPER_TEST_FLAG": "xyzzy"},
	})

	if err := sm.StartService(context.Background(), "envy"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, entry := range store.Since("envy", 0) {
			if entry.Line == "got-xyzzy" {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("spec env value never appeared in the child's output")
}

/**
 * Test the unknown-service error paths
 */
func TestServiceUnknownName(t *testing.T) {
	sm, _ := newTestManager(t, sleeperSpec("api"))

	if err := sm.StartService(context.Background(), "nope"); err == nil {
		t.Error("start accepted an unknown service")
	}
	if err := sm.StopService("nope"); err == nil {
		t.Error("stop accepted an unknown service")
	}
	if sm.GetInstance("nope") != nil {
		t.Error("GetInstance returned a cell for an unknown name")
	}
}

/**
 * Test repo-to-service mapping used by update-then-restart
 */
func TestServicesForRepo(t *testing.T) {
	a := sleeperSpec("a")
	a.Repo = "backend"
	b := sleeperSpec("b")
	b.Repo = "frontend"
	c := sleeperSpec("c")
	c.Repo = "backend"
	sm, _ := newTestManager(t, a, b, c)

	got := sm.ServicesForRepo("backend")
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("expected [a c], got %v", got)
	}
	if got := sm.ServicesForRepo("missing"); got != nil {
		t.Errorf("expected nil for unknown repo, got %v", got)
	}
}
