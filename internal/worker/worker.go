// Package worker runs the background executor: it sweeps expired leases and
// approvals, claims NEW commands one at a time, and performs their side
// effects outside any store transaction.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/centrixhq/centrix/internal/approval"
	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/exchange"
	"github.com/centrixhq/centrix/internal/locks"
	"github.com/centrixhq/centrix/internal/queue"
	"github.com/centrixhq/centrix/internal/state"
	"github.com/centrixhq/centrix/internal/supervisor"
	"github.com/centrixhq/centrix/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxCommandsPerTick = 10

// Executor polls the queue and dispatches commands by type.
type Executor struct {
	bus        *bus.Service
	queue      *queue.Service
	approvals  *approval.Service
	locks      *locks.Service
	state      *state.Controller
	supervisor *supervisor.Service

	mock    exchange.Adapter
	gateway exchange.Adapter

	poll           time.Duration
	heartbeatEvery time.Duration
}

// NewExecutor wires the executor against shared services.
func NewExecutor(
	busService *bus.Service,
	queueService *queue.Service,
	approvalService *approval.Service,
	lockService *locks.Service,
	stateController *state.Controller,
	supervisorService *supervisor.Service,
	mock exchange.Adapter,
	gateway exchange.Adapter,
	poll time.Duration,
	heartbeatEvery time.Duration,
) *Executor {
	if poll <= 0 {
		poll = time.Second
	}
	if heartbeatEvery <= 0 {
		heartbeatEvery = 5 * time.Second
	}
	return &Executor{
		bus:            busService,
		queue:          queueService,
		approvals:      approvalService,
		locks:          lockService,
		state:          stateController,
		supervisor:     supervisorService,
		mock:           mock,
		gateway:        gateway,
		poll:           poll,
		heartbeatEvery: heartbeatEvery,
	}
}

// Start runs the executor loop until the context is cancelled.
func (e *Executor) Start(ctx context.Context) {
	logger := log.With().Str("component", "executor").Logger()
	logger.Info().Dur("poll", e.poll).Msg("starting executor")

	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()
	heartbeat := time.NewTicker(e.heartbeatEvery)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down executor")
			return
		case <-heartbeat.C:
			if err := e.bus.RecordHeartbeat("worker"); err != nil {
				logger.Error().Err(err).Msg("failed to record heartbeat")
			}
			_, _ = e.bus.Emit("svc.worker.alive", types.LevelDebug, map[string]interface{}{
				"component": "worker",
			}, "")
		case <-ticker.C:
			if err := e.Tick(); err != nil {
				logger.Error().Err(err).Msg("executor tick failed")
			}
		}
	}
}

// Tick runs one maintenance-and-execute pass: reap elapsed locks, sweep
// expired approvals, then claim and execute up to a bounded batch of
// commands. The sweep cadence is driven here, not inside the core services.
func (e *Executor) Tick() error {
	logger := log.With().Str("component", "executor").Logger()

	if reaped, err := e.locks.Reap(); err != nil {
		logger.Error().Err(err).Msg("lock reap failed")
	} else if reaped > 0 {
		logger.Warn().Int("reaped", reaped).Msg("reclaimed elapsed lock leases")
	}

	if swept, err := e.approvals.SweepExpired(); err != nil {
		logger.Error().Err(err).Msg("approval sweep failed")
	} else if swept > 0 {
		logger.Warn().Int("expired", swept).Msg("expired unconfirmed approvals")
	}

	for i := 0; i < maxCommandsPerTick; i++ {
		command, err := e.queue.ClaimNext()
		if err != nil {
			return err
		}
		if command == nil {
			return nil
		}
		e.execute(command)
	}
	return nil
}

// execute dispatches one claimed command. Every path finalizes the command.
func (e *Executor) execute(command *types.Command) {
	logger := log.With().
		Str("component", "executor").
		Int64("command_id", command.ID).
		Str("type", command.Type).
		Logger()
	logger.Info().Msg("executing command")

	var err error
	switch command.Type {
	case types.CmdOrderNew, types.CmdOrderTest:
		err = e.executeOrder(command, logger)
	case types.CmdStatePause:
		err = e.finalizeAfter(command, e.state.Pause(), nil)
	case types.CmdStateResume:
		err = e.finalizeAfter(command, e.state.Resume(), nil)
	case types.CmdModeSet:
		err = e.executeModeSet(command, logger)
	case types.CmdSvcStart, types.CmdSvcStop, types.CmdSvcRestart:
		err = e.executeServiceOp(command)
	default:
		err = e.finalizeErr(command, map[string]interface{}{
			"reason": "unknown_type",
		})
	}
	if err != nil && !errors.Is(err, queue.ErrAlreadyFinal) {
		logger.Error().Err(err).Msg("failed to finalize command")
	}
}

// executeOrder places an order through the adapter matching the current
// mode. Pause and mode are re-read immediately before the side effect:
// state may have changed between submission and claim.
func (e *Executor) executeOrder(command *types.Command, logger zerolog.Logger) error {
	paused, err := e.state.IsPaused()
	if err != nil {
		return e.finalizeErr(command, map[string]interface{}{"error": err.Error()})
	}
	if paused {
		logger.Warn().Msg("system paused, skipping order execution")
		return e.queue.Finalize(command.ID, types.StatusDone, map[string]interface{}{
			"skipped": "paused",
		})
	}

	order, err := types.DecodeOrder(command.Payload)
	if err != nil {
		return e.finalizeErr(command, map[string]interface{}{"error": err.Error()})
	}

	adapter := e.mock
	if command.Type == types.CmdOrderNew {
		mode, err := e.state.Mode()
		if err != nil {
			return e.finalizeErr(command, map[string]interface{}{"error": err.Error()})
		}
		if mode == types.ModeReal {
			adapter = e.gateway
		}
	}

	fill, err := adapter.PlaceOrder(order)
	if err != nil {
		logger.Error().Err(err).Str("adapter", adapter.Name()).Msg("order placement failed")
		return e.finalizeErr(command, map[string]interface{}{
			"adapter": adapter.Name(),
			"error":   err.Error(),
		})
	}

	return e.queue.Finalize(command.ID, types.StatusDone, map[string]interface{}{
		"adapter": adapter.Name(),
		"fill":    fill,
	})
}

// executeModeSet applies an approved mode change. Going live runs the
// gateway safety check first; on failure the mode is forced back to mock
// and the command fails.
func (e *Executor) executeModeSet(command *types.Command, logger zerolog.Logger) error {
	payload, err := types.DecodeMode(command.Payload)
	if err != nil {
		return e.finalizeErr(command, map[string]interface{}{"error": err.Error()})
	}

	if payload.Mode == types.ModeReal && !e.gateway.Ready() {
		logger.Error().Msg("live-trading safety check failed, staying in mock")
		if err := e.state.ForceMock("gateway_unavailable"); err != nil {
			return e.finalizeErr(command, map[string]interface{}{"error": err.Error()})
		}
		return e.finalizeErr(command, map[string]interface{}{
			"reason": "gateway_unavailable",
		})
	}

	return e.finalizeAfter(command, e.state.SetMode(payload.Mode), map[string]interface{}{
		"mode": payload.Mode,
	})
}

func (e *Executor) executeServiceOp(command *types.Command) error {
	payload, err := types.DecodeService(command.Payload)
	if err != nil {
		return e.finalizeErr(command, map[string]interface{}{"error": err.Error()})
	}

	var result string
	var opErr error
	switch command.Type {
	case types.CmdSvcStart:
		result, opErr = e.supervisor.Start(payload.Service)
	case types.CmdSvcStop:
		result, opErr = e.supervisor.Stop(payload.Service)
	case types.CmdSvcRestart:
		result = "restarted"
		opErr = e.supervisor.Restart(payload.Service)
	}

	if errors.Is(opErr, supervisor.ErrBusy) {
		// Contention is retryable; the command fails with a reason and
		// the caller decides whether to resubmit.
		return e.finalizeErr(command, map[string]interface{}{
			"service": payload.Service,
			"reason":  "lock_busy",
		})
	}
	if opErr != nil {
		return e.finalizeErr(command, map[string]interface{}{
			"service": payload.Service,
			"error":   opErr.Error(),
		})
	}
	return e.queue.Finalize(command.ID, types.StatusDone, map[string]interface{}{
		"service": payload.Service,
		"result":  result,
	})
}

func (e *Executor) finalizeAfter(command *types.Command, opErr error, fields map[string]interface{}) error {
	if opErr != nil {
		data := map[string]interface{}{"error": opErr.Error()}
		for k, v := range fields {
			data[k] = v
		}
		return e.queue.Finalize(command.ID, types.StatusErr, data)
	}
	return e.queue.Finalize(command.ID, types.StatusDone, fields)
}

func (e *Executor) finalizeErr(command *types.Command, fields map[string]interface{}) error {
	return e.queue.Finalize(command.ID, types.StatusErr, fields)
}
