package services

import (
	"context"
	"time"

	"stack-keeper/internal/config"
	"stack-keeper/internal/env"
	"stack-keeper/internal/logger"
	"stack-keeper/internal/models"
)

/**
 * Server is the coordination layer of the keeper
 * @description
 * - Owns the long-lived singletons (service manager, git manager, log store)
 *   and the periodic liveness/refresh loops
 * - Update-then-restart lives here because it spans both managers
 */
type Server struct {
	cfg       *config.AppConfig
	store     *LogStore
	service   *ServiceManager
	git       *GitManager
	watchdog  *Watchdog
	startTime time.Time
}

func NewServer(stack *config.StackSpec, cfg *config.AppConfig, store *LogStore, service *ServiceManager, git *GitManager) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		service:   service,
		git:       git,
		watchdog:  NewWatchdog(stack),
		startTime: time.Now(),
	}
}

func (s *Server) Services() *ServiceManager {
	return s.service
}

func (s *Server) Git() *GitManager {
	return s.git
}

func (s *Server) Logs() *LogStore {
	return s.store
}

/**
 * Start the periodic liveness reconciliation loop
 * @param {context.Context} ctx - Loop lifetime; cancel stops the ticker
 * @description
 * - Services killed out of band surface as crashed within one interval
 */
func (s *Server) StartMonitoring(ctx context.Context) {
	interval := time.Duration(s.cfg.Interval.Liveness) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.service.ProbeLiveness()
		}
	}
}

/**
 * Start the file-change watchdog loop
 * @param {context.Context} ctx - Loop lifetime; cancel stops the ticker
 * @description
 * - Returns immediately when no service declares a watch rule
 * - A triggered service restarts only while running; stopped services are
 *   left alone
 */
func (s *Server) StartWatchdog(ctx context.Context) {
	if s.watchdog.RuleCount() == 0 {
		return
	}
	s.watchdog.Prime()

	interval := time.Duration(s.cfg.Interval.Watch) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range s.watchdog.Poll(time.Now()) {
				if s.service.GetInstance(name).Status() != models.StatusRunning {
					continue
				}
				logger.Infof("Watched files of '%s' changed; restarting", name)
				s.store.Append(name, models.LevelInfo, models.StreamSystem,
					"[keeper] watched files changed; restarting")
				if err := s.service.RestartService(ctx, name); err != nil {
					logger.Errorf("Watchdog restart [%s] error: %v", name, err)
				}
			}
		}
	}
}

// StartGitRefresh keeps repository state warm so status reads stay cheap.
func (s *Server) StartGitRefresh(ctx context.Context) {
	interval := time.Duration(s.cfg.Interval.GitRefresh) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.git.RefreshAll(ctx)
		}
	}
}

/**
 * Update a repository and restart its dependent services
 * @param {string} repo - Repo key from the manifest
 * @returns {models.UpdateResponse} The update outcome plus restarted services
 * @description
 * - Services restart only when the update actually moved HEAD, and only the
 *   ones currently running or starting; stopped services stay stopped
 */
func (s *Server) UpdateRepo(ctx context.Context, repo string) (models.UpdateResponse, error) {
	outcome, err := s.git.Update(ctx, repo)
	if err != nil {
		return models.UpdateResponse{}, err
	}
	response := models.UpdateResponse{Outcome: outcome}

	if outcome.Kind != models.UpdateApplied || outcome.OldCommit == outcome.NewCommit {
		return response, nil
	}

	for _, name := range s.service.ServicesForRepo(repo) {
		svc := s.service.GetInstance(name)
		status := svc.Status()
		if status != models.StatusRunning && status != models.StatusStarting {
			continue
		}
		logger.Infof("Restarting '%s' after update of repo '%s'", name, repo)
		if err := s.service.RestartService(ctx, name); err != nil {
			logger.Errorf("Restart [%s] after update error: %v", name, err)
			continue
		}
		response.Restarted = append(response.Restarted, name)
	}
	return response, nil
}

/**
 * Build the health snapshot served on /healthz
 * @returns {models.HealthResponse} Uptime, counters and the stack-fault flag
 */
func (s *Server) GetHealthz() models.HealthResponse {
	status := "UP"
	if s.service.StackFault() {
		status = "FAULT"
	}
	return models.HealthResponse{
		Status:        status,
		Version:       env.Version,
		StartTime:     s.startTime,
		StackFault:    s.service.StackFault(),
		TotalRequests: GetTotalRequestCount(),
		ErrorRequests: GetTotalErrorCount(),
	}
}

// Shutdown stops every supervised service. Called from the HTTP server's
// graceful-exit path.
func (s *Server) Shutdown() {
	logger.Info("Stopping all supervised services")
	s.service.StopAll()
}
