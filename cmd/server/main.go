package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/centrixhq/centrix/internal/approval"
	"github.com/centrixhq/centrix/internal/auth"
	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/config"
	"github.com/centrixhq/centrix/internal/control"
	"github.com/centrixhq/centrix/internal/database"
	"github.com/centrixhq/centrix/internal/locks"
	"github.com/centrixhq/centrix/internal/queue"
	"github.com/centrixhq/centrix/internal/state"
	"github.com/centrixhq/centrix/internal/status"
	"github.com/centrixhq/centrix/internal/supervisor"
	"github.com/centrixhq/centrix/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// init configures application logging. In development mode it enables
// pretty printing; debug logging is switched on via the DEBUG variable.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main runs the status/control server with graceful shutdown support.
func main() {
	settings := config.Load()

	db, err := database.NewDatabase(settings.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	owner := "server-" + uuid.New().String()[:8]

	busService := bus.NewService(db)
	lockService := locks.NewService(db, busService)
	approvalService := approval.NewService(db, busService)
	queueService := queue.NewService(db, busService, lockService, approvalService, owner, settings.ClaimTTLSec)
	stateController := state.NewController(busService)
	supervisorService := supervisor.NewService(
		busService, lockService, supervisor.ExecLauncher{},
		settings.PidDir, settings.ServiceOrder, settings.Services, owner,
	)

	authService := auth.NewService(settings.JWTSecret)
	authService.RegisterAPICredentials(settings.APIKey, settings.APISecret)

	controlService := control.NewService(busService, queueService, approvalService, stateController, settings.ApprovalTTLSec)
	statusService := status.NewService(busService, stateController, supervisorService)

	streamer := bus.NewStreamer(db, settings.StreamPoll)
	streamCtx, streamCancel := context.WithCancel(context.Background())
	defer streamCancel()
	go streamer.Start(streamCtx)

	router := gin.Default()
	router.Use(middleware.RateLimit())

	setupRoutes(router,
		auth.NewGinHandlers(authService),
		authService,
		status.NewGinHandlers(statusService),
		control.NewGinHandlers(controlService),
		approval.NewGinHandlers(approvalService),
		locks.NewGinHandlers(lockService),
		supervisor.NewGinHandlers(supervisorService),
		bus.NewGinHandlers(busService, streamer),
	)

	srv := &http.Server{
		Addr:    settings.ServerHost + ":" + settings.ServerPort,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures the API surface:
// - Public: health check and token issuance
// - Status routes: read-only snapshots, behind JWT
// - Control routes: mutating operations, behind JWT
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	authService *auth.Service,
	statusHandlers *status.GinHandlers,
	controlHandlers *control.GinHandlers,
	approvalHandlers *approval.GinHandlers,
	lockHandlers *locks.GinHandlers,
	supervisorHandlers *supervisor.GinHandlers,
	eventHandlers *bus.GinHandlers,
) {
	router.GET("/healthz", statusHandlers.HealthzHandler())

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(authService))
		{
			protected.GET("/metrics", statusHandlers.MetricsHandler())
			protected.GET("/events", eventHandlers.TailEventsHandler())
			protected.GET("/events/ws", eventHandlers.StreamEventsHandler())

			protected.POST("/commands", controlHandlers.SubmitCommandHandler())
			protected.GET("/commands/:id", controlHandlers.GetCommandHandler())
			protected.GET("/queue", controlHandlers.QueueHandler())

			protected.GET("/approvals", approvalHandlers.PendingApprovalsHandler())
			protected.POST("/approvals/:token/confirm", approvalHandlers.ConfirmHandler())
			protected.POST("/approvals/:token/reject", approvalHandlers.RejectHandler())
			protected.POST("/approvals/sweep", approvalHandlers.SweepHandler())

			protected.GET("/locks", lockHandlers.ListLocksHandler())
			protected.POST("/locks/reap", lockHandlers.ReapLocksHandler())

			protected.GET("/state", controlHandlers.StateHandler())
			protected.POST("/state/pause", controlHandlers.PauseHandler())
			protected.POST("/state/resume", controlHandlers.ResumeHandler())
			protected.POST("/mode", controlHandlers.SetModeHandler())
			protected.POST("/orders/test", controlHandlers.TestOrderHandler())

			protected.GET("/services", supervisorHandlers.StatusHandler())
			protected.POST("/services/:name/start", supervisorHandlers.StartHandler())
			protected.POST("/services/:name/stop", supervisorHandlers.StopHandler())
			protected.POST("/services/:name/restart", supervisorHandlers.RestartHandler())
		}
	}
}
