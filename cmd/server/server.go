package server

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"stack-keeper/cmd/root"
	"stack-keeper/controllers"
	"stack-keeper/internal/config"
	"stack-keeper/internal/env"
	"stack-keeper/internal/logger"
	"stack-keeper/internal/middleware"
	"stack-keeper/internal/rpc"
	"stack-keeper/internal/secrets"
	"stack-keeper/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var startStack bool

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the keeper daemon with the HTTP control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return startServer()
	},
}

/**
 * Run the keeper daemon until interrupted
 * @returns {error} Fatal startup errors (invalid manifest, bind failure)
 * @description
 * - SIGINT/SIGTERM trigger a graceful shutdown: the HTTP listener drains,
 *   then every supervised service is stopped in reverse order
 */
func startServer() error {
	env.Daemon = true

	if err := config.LoadStack(); err != nil {
		return err
	}
	stack := config.Stack()
	cfg := &config.Config

	store := services.NewLogStore(cfg.Buffer.Capacity)
	resolver := secrets.NewResolver(&cfg.Secrets)
	svcManager := services.NewServiceManager(stack, cfg, store, resolver)
	gitManager := services.NewGitManager(stack, cfg)
	server := services.NewServer(stack, cfg, store, svcManager, gitManager)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.MetricsMiddleware())

	controllers.NewAPIController(server).RegisterRoutes(router)
	controllers.NewServiceController(server).RegisterRoutes(router)
	controllers.NewLogController(server).RegisterRoutes(router)
	controllers.NewGitController(server).RegisterRoutes(router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if startStack {
		svcManager.StartAll(ctx)
	}

	go server.StartMonitoring(ctx)
	go server.StartGitRefresh(ctx)
	go server.StartWatchdog(ctx)
	go gitManager.RefreshAll(ctx)

	if err := rpc.WriteEndpoint(cfg.Server.Address); err != nil {
		logger.Warnf("Failed to publish endpoint: %v", err)
	}
	defer rpc.RemoveEndpoint()

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on http://%s", cfg.Server.Address)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		server.Shutdown()
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown error: %v", err)
	}
	server.Shutdown()
	return nil
}

func init() {
	root.RootCmd.AddCommand(serverCmd)

	serverCmd.Flags().BoolVar(&startStack, "start-stack", true, "start all declared services on boot")
	serverCmd.Example = `  stack-keeper server
  stack-keeper server --start-stack=false`
}
