package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"stack-keeper/internal/config"
	"stack-keeper/internal/logger"
	"stack-keeper/internal/models"
	"stack-keeper/internal/secrets"
	"stack-keeper/internal/utils"
)

/**
 * ServiceInstance is the mutable per-service state cell
 * @description
 * - opMutex serializes start/stop/restart for this service name, so two
 *   concurrent restarts cannot interleave into a double start
 * - stateMutex guards the status fields with short critical sections; the
 *   exit callback can take it while an operation holds opMutex
 */
type ServiceInstance struct {
	Spec models.ServiceSpec

	opMutex    sync.Mutex
	stateMutex sync.Mutex
	status     models.RunStatus
	listening  bool
	startTime  time.Time
	desired    bool
	lastExit   *models.ExitInfo
	proc       *ProcessInstance
}

func (svc *ServiceInstance) GetDetail() models.ServiceDetail {
	svc.stateMutex.Lock()
	defer svc.stateMutex.Unlock()

	detail := models.ServiceDetail{
		Name:      svc.Spec.Name,
		Label:     svc.Spec.Label,
		Port:      svc.Spec.Port,
		Status:    svc.status,
		Listening: svc.listening,
		Critical:  svc.Spec.Critical,
		Spec:      svc.Spec,
	}
	if svc.proc != nil {
		detail.Pid = svc.proc.Pid()
	}
	if !svc.startTime.IsZero() {
		detail.StartTime = svc.startTime.Format(time.RFC3339)
	}
	if svc.lastExit != nil {
		cp := *svc.lastExit
		detail.LastExit = &cp
	}
	return detail
}

func (svc *ServiceInstance) Status() models.RunStatus {
	svc.stateMutex.Lock()
	defer svc.stateMutex.Unlock()
	return svc.status
}

type ServiceManager struct {
	cfg      *config.AppConfig
	store    *LogStore
	resolver secrets.Resolver

	services map[string]*ServiceInstance
	order    []string

	stackFault atomic.Bool
}

/**
 * Create the service manager from a validated stack manifest
 * @param {StackSpec} stack - Declared services (workspace already validated)
 * @param {AppConfig} cfg - Timeouts and intervals
 * @param {LogStore} store - Destination for child output and lifecycle events
 * @param {secrets.Resolver} resolver - Secret mapping used for child env
 */
func NewServiceManager(stack *config.StackSpec, cfg *config.AppConfig, store *LogStore, resolver secrets.Resolver) *ServiceManager {
	sm := &ServiceManager{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		services: make(map[string]*ServiceInstance),
	}
	for _, spec := range stack.Services {
		sm.services[spec.Name] = &ServiceInstance{
			Spec:   spec,
			status: models.StatusStopped,
		}
		sm.order = append(sm.order, spec.Name)
	}
	return sm
}

func (sm *ServiceManager) GetInstance(name string) *ServiceInstance {
	return sm.services[name]
}

// GetInstances returns instances in declaration order.
func (sm *ServiceManager) GetInstances() []*ServiceInstance {
	out := make([]*ServiceInstance, 0, len(sm.order))
	for _, name := range sm.order {
		out = append(out, sm.services[name])
	}
	return out
}

// Snapshot copies every service state without touching child processes.
func (sm *ServiceManager) Snapshot() []models.ServiceDetail {
	out := make([]models.ServiceDetail, 0, len(sm.order))
	for _, name := range sm.order {
		out = append(out, sm.services[name].GetDetail())
	}
	return out
}

// StackFault reports whether a critical service crashed unexpectedly since
// the last start. Cleared by an explicit start of any service.
func (sm *ServiceManager) StackFault() bool {
	return sm.stackFault.Load()
}

// ServicesForRepo returns names of services whose spec maps to the repo.
func (sm *ServiceManager) ServicesForRepo(repo string) []string {
	var out []string
	for _, name := range sm.order {
		if sm.services[name].Spec.Repo == repo {
			out = append(out, name)
		}
	}
	return out
}

func (sm *ServiceManager) StartService(ctx context.Context, name string) error {
	svc := sm.services[name]
	if svc == nil {
		return fmt.Errorf("service [%s] isn't exist", name)
	}
	svc.opMutex.Lock()
	defer svc.opMutex.Unlock()
	return sm.startLocked(ctx, svc)
}

func (sm *ServiceManager) StopService(name string) error {
	svc := sm.services[name]
	if svc == nil {
		return fmt.Errorf("service [%s] isn't exist", name)
	}
	svc.opMutex.Lock()
	defer svc.opMutex.Unlock()
	return sm.stopLocked(svc)
}

// RestartService is stop followed by start, atomic with respect to other
// operations on the same service name.
func (sm *ServiceManager) RestartService(ctx context.Context, name string) error {
	svc := sm.services[name]
	if svc == nil {
		return fmt.Errorf("service [%s] isn't exist", name)
	}
	svc.opMutex.Lock()
	defer svc.opMutex.Unlock()

	sm.store.Append(name, models.LevelInfo, models.StreamSystem, "[keeper] restart requested")
	if err := sm.stopLocked(svc); err != nil {
		logger.Warnf("Restart of '%s': stop reported: %v", name, err)
	}
	return sm.startLocked(ctx, svc)
}

// StartAll starts services in declaration order. Per-service failures are
// logged and do not abort the remaining services.
func (sm *ServiceManager) StartAll(ctx context.Context) {
	for _, name := range sm.order {
		if err := sm.StartService(ctx, name); err != nil {
			logger.Errorf("Start [%s] error: %v", name, err)
		}
	}
}

// StopAll stops every service in reverse declaration order. Used on keeper
// shutdown and on a critical crash.
func (sm *ServiceManager) StopAll() {
	for i := len(sm.order) - 1; i >= 0; i-- {
		if err := sm.StopService(sm.order[i]); err != nil {
			logger.Errorf("Stop [%s] error: %v", sm.order[i], err)
		}
	}
}

func (sm *ServiceManager) startLocked(ctx context.Context, svc *ServiceInstance) error {
	svc.stateMutex.Lock()
	status := svc.status
	svc.stateMutex.Unlock()
	if status == models.StatusRunning || status == models.StatusStarting {
		return nil
	}

	name := svc.Spec.Name
	sm.stackFault.Store(false)

	if svc.Spec.Port > 0 && utils.CheckPortOpen(svc.Spec.Port) {
		if err := sm.reclaimPort(svc); err != nil {
			return err
		}
	}

	env, err := sm.buildEnv(ctx, svc.Spec)
	if err != nil {
		// Secrets are best effort at start time: a resolver outage must not
		// brick the stack. The gap is visible in the service's log.
		logger.Warnf("Secret resolution for '%s' failed: %v", name, err)
		sm.store.Append(name, models.LevelWarn, models.StreamSystem,
			fmt.Sprintf("[keeper] secret resolution failed: %v", err))
	}

	proc := NewProcessInstance(name, svc.Spec.Command, svc.Spec.Args, sm.store)
	proc.WorkDir = svc.Spec.WorkDir
	proc.Env = env
	proc.SetExitCallback(sm.makeExitCallback(svc))

	svc.stateMutex.Lock()
	svc.status = models.StatusStarting
	svc.listening = false
	svc.desired = true
	svc.proc = proc
	svc.startTime = time.Now()
	svc.stateMutex.Unlock()

	if err := proc.Start(ctx); err != nil {
		svc.stateMutex.Lock()
		svc.status = models.StatusCrashed
		svc.stateMutex.Unlock()
		IncServiceCrash(name)
		return err
	}
	IncServiceStart(name)

	if err := sm.probeStartup(svc, proc); err != nil {
		return err
	}

	svc.stateMutex.Lock()
	svc.status = models.StatusRunning
	svc.listening = svc.Spec.Port > 0
	svc.stateMutex.Unlock()
	return nil
}

// probeStartup waits for the liveness probe: the declared port accepting
// connections. Port 0 means no probe beyond "still alive shortly after".
func (sm *ServiceManager) probeStartup(svc *ServiceInstance, proc *ProcessInstance) error {
	name := svc.Spec.Name

	if svc.Spec.Port == 0 {
		time.Sleep(300 * time.Millisecond)
		if !proc.Alive() {
			return sm.startupCrash(svc, proc)
		}
		return nil
	}

	deadline := time.Now().Add(time.Duration(sm.cfg.Timeout.StartProbe) * time.Second)
	for time.Now().Before(deadline) {
		if !proc.Alive() {
			return sm.startupCrash(svc, proc)
		}
		if utils.CheckPortOpen(svc.Spec.Port) {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}

	// Alive but never listening: treat as crashed and reap the process so a
	// later start does not find a half-dead instance.
	logger.Errorf("Service '%s' never became listening on port %d", name, svc.Spec.Port)
	proc.Terminate(2 * time.Second)
	svc.stateMutex.Lock()
	svc.status = models.StatusCrashed
	svc.lastExit = proc.LastExit()
	svc.stateMutex.Unlock()
	IncServiceCrash(name)
	return &ProbeTimeoutError{Service: name, Port: svc.Spec.Port}
}

func (sm *ServiceManager) startupCrash(svc *ServiceInstance, proc *ProcessInstance) error {
	svc.stateMutex.Lock()
	svc.status = models.StatusCrashed
	svc.lastExit = proc.LastExit()
	svc.stateMutex.Unlock()
	IncServiceCrash(svc.Spec.Name)

	var lines []string
	for _, entry := range sm.store.Tail(svc.Spec.Name, 5) {
		if entry.Stream != models.StreamSystem {
			lines = append(lines, entry.Line)
		}
	}
	reason := "exited before becoming ready"
	if exit := proc.LastExit(); exit != nil {
		reason = fmt.Sprintf("exited with code %d before becoming ready", exit.Code)
	}
	return &LaunchError{Service: svc.Spec.Name, Reason: reason, Output: lines}
}

/**
 * Reclaim the service's expected port before launching
 * @description
 * - Ownership rule (documented decision): a listener is considered a stale
 *   instance of this service iff its process working directory equals or is
 *   beneath the service's working directory. Anything else is an unrelated
 *   process and is never touched.
 * - Only the vetted pid is signalled; its process group was never checked
 *   and may contain unrelated members.
 */
func (sm *ServiceManager) reclaimPort(svc *ServiceInstance) error {
	name := svc.Spec.Name
	port := svc.Spec.Port

	pids := utils.ListenPids(port)
	if len(pids) == 0 {
		// Listener exists but ownership cannot be attributed; refuse.
		return &PortConflictError{Service: name, Port: port}
	}

	workDir, err := filepath.Abs(svc.Spec.WorkDir)
	if err != nil {
		workDir = svc.Spec.WorkDir
	}

	var stale, foreign []int
	for _, pid := range pids {
		cwd, err := utils.ProcessCwd(pid)
		if err == nil && pathWithin(cwd, workDir) {
			stale = append(stale, pid)
		} else {
			foreign = append(foreign, pid)
		}
	}
	if len(foreign) > 0 {
		sort.Ints(foreign)
		return &PortConflictError{Service: name, Port: port, Pids: foreign}
	}

	for _, pid := range stale {
		logger.Infof("Stopping stale listener of '%s' (pid=%d) on port %d", name, pid, port)
		sm.store.Append(name, models.LevelWarn, models.StreamSystem,
			fmt.Sprintf("[keeper] stopping stale listener (pid=%d) on port %d", pid, port))
		if err := utils.TerminateProcess(pid, time.Duration(sm.cfg.Timeout.StopGrace)*time.Second); err != nil {
			return fmt.Errorf("stale listener (pid %d) on port %d did not exit: %w", pid, port, err)
		}
	}
	if !utils.WaitPortClosed(port, 10*time.Second) {
		return &PortConflictError{Service: name, Port: port, Pids: utils.ListenPids(port)}
	}
	return nil
}

func pathWithin(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

func (sm *ServiceManager) stopLocked(svc *ServiceInstance) error {
	name := svc.Spec.Name

	svc.stateMutex.Lock()
	svc.desired = false
	proc := svc.proc
	running := svc.status == models.StatusRunning || svc.status == models.StatusStarting
	if running {
		svc.status = models.StatusStopping
	}
	svc.stateMutex.Unlock()

	if !running || proc == nil {
		svc.stateMutex.Lock()
		if svc.status != models.StatusCrashed {
			svc.status = models.StatusStopped
		}
		svc.listening = false
		svc.stateMutex.Unlock()
		return nil
	}

	err := proc.Terminate(time.Duration(sm.cfg.Timeout.StopGrace) * time.Second)

	// The state is forced to stopped even when the kill failed; a leaked
	// process is abandoned to the OS and only reported.
	svc.stateMutex.Lock()
	svc.status = models.StatusStopped
	svc.listening = false
	svc.lastExit = proc.LastExit()
	svc.proc = nil
	svc.stateMutex.Unlock()
	IncServiceStop(name)

	if svc.Spec.Port > 0 {
		// Block until the socket is really gone so a follow-up start does
		// not race the OS teardown.
		if !utils.WaitPortClosed(svc.Spec.Port, 10*time.Second) {
			logger.Warnf("Port %d still open after stopping '%s'", svc.Spec.Port, name)
		}
	}
	return err
}

// makeExitCallback handles exits the supervisor did not initiate.
func (sm *ServiceManager) makeExitCallback(svc *ServiceInstance) func(info models.ExitInfo, expected bool) {
	return func(info models.ExitInfo, expected bool) {
		if expected {
			return
		}
		svc.stateMutex.Lock()
		wasSupervised := svc.status == models.StatusRunning || svc.status == models.StatusStarting
		if wasSupervised {
			svc.status = models.StatusCrashed
			svc.listening = false
			svc.lastExit = &info
		}
		svc.stateMutex.Unlock()
		if !wasSupervised {
			return
		}
		IncServiceCrash(svc.Spec.Name)

		if svc.Spec.Critical {
			logger.Errorf("Critical service '%s' crashed (code=%d); stopping stack", svc.Spec.Name, info.Code)
			sm.stackFault.Store(true)
			sm.store.Append(svc.Spec.Name, models.LevelError, models.StreamSystem,
				"[keeper] critical service crashed; stopping the stack")
			go sm.StopAll()
		}
	}
}

/**
 * Reconcile supervisor state with reality
 * @description
 * - Run by the coordination layer's periodic liveness loop, so services
 *   killed out of band show up within one polling interval
 * - Only refreshes the cached listening flag and catches silently dead
 *   processes; it never restarts anything
 */
func (sm *ServiceManager) ProbeLiveness() {
	for _, name := range sm.order {
		svc := sm.services[name]

		svc.stateMutex.Lock()
		status := svc.status
		proc := svc.proc
		svc.stateMutex.Unlock()
		if status != models.StatusRunning || proc == nil {
			continue
		}

		alive := proc.Alive()
		listening := svc.Spec.Port > 0 && utils.CheckPortOpen(svc.Spec.Port)

		svc.stateMutex.Lock()
		if svc.status == models.StatusRunning {
			if !alive {
				// The exit callback normally handles this; cover the case
				// where the waiter has not run yet.
				svc.status = models.StatusCrashed
				svc.listening = false
				svc.lastExit = proc.LastExit()
			} else {
				svc.listening = listening
			}
		}
		svc.stateMutex.Unlock()
	}
}

// buildEnv merges, in increasing priority: the keeper's environment, the
// secret mapping (fills missing keys only, so user overrides win), and the
// spec's own env block.
func (sm *ServiceManager) buildEnv(ctx context.Context, spec models.ServiceSpec) ([]string, error) {
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.Index(kv, "="); i > 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}

	var resolveErr error
	fetched, err := sm.resolver.Resolve(ctx, sm.cfg.Secrets.Environment, sm.cfg.Secrets.Path)
	if err != nil {
		resolveErr = err
	}
	for key, value := range fetched {
		if value == "" {
			continue
		}
		if _, exists := merged[key]; !exists {
			merged[key] = value
		}
	}
	for key, value := range spec.Env {
		merged[key] = value
	}

	out := make([]string, 0, len(merged))
	for key, value := range merged {
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out, resolveErr
}
