package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/centrixhq/centrix/internal/approval"
	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/config"
	"github.com/centrixhq/centrix/internal/database"
	"github.com/centrixhq/centrix/internal/exchange"
	"github.com/centrixhq/centrix/internal/locks"
	"github.com/centrixhq/centrix/internal/queue"
	"github.com/centrixhq/centrix/internal/state"
	"github.com/centrixhq/centrix/internal/supervisor"
	"github.com/centrixhq/centrix/internal/worker"

	"github.com/google/uuid"
)

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

// main runs the background executor until interrupted.
func main() {
	settings := config.Load()

	db, err := database.NewDatabase(settings.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	owner := "worker-" + uuid.New().String()[:8]

	busService := bus.NewService(db)
	lockService := locks.NewService(db, busService)
	approvalService := approval.NewService(db, busService)
	queueService := queue.NewService(db, busService, lockService, approvalService, owner, settings.ClaimTTLSec)
	stateController := state.NewController(busService)
	supervisorService := supervisor.NewService(
		busService, lockService, supervisor.ExecLauncher{},
		settings.PidDir, settings.ServiceOrder, settings.Services, owner,
	)

	executor := worker.NewExecutor(
		busService, queueService, approvalService, lockService,
		stateController, supervisorService,
		exchange.NewMockAdapter(),
		exchange.NewGatewayAdapter(settings.GatewayHost, settings.GatewayPort, settings.GatewayEnabled),
		settings.WorkerPoll, settings.HeartbeatInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go executor.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info().Msg("Shutting down worker...")
	cancel()
	zlog.Info().Msg("Worker exiting")
}
