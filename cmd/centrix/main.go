// Command centrix is the operator CLI. It talks directly to the shared
// store, so it works whether or not the server process is up.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
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
	"github.com/centrixhq/centrix/internal/status"
	"github.com/centrixhq/centrix/internal/supervisor"
	"github.com/centrixhq/centrix/internal/types"
	"github.com/centrixhq/centrix/internal/worker"

	"github.com/google/uuid"
)

const (
	controlLockName = "svc.control"
	controlLockTTL  = 30
)

type app struct {
	settings   config.Settings
	bus        *bus.Service
	locks      *locks.Service
	approvals  *approval.Service
	queue      *queue.Service
	state      *state.Controller
	supervisor *supervisor.Service
	owner      string
}

func main() {
	zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	settings := config.Load()
	db, err := database.NewDatabase(settings.DBPath)
	if err != nil {
		fatal("failed to open store: %v", err)
	}

	owner := "cli-" + uuid.New().String()[:8]
	busService := bus.NewService(db)
	lockService := locks.NewService(db, busService)
	approvalService := approval.NewService(db, busService)

	a := &app{
		settings:  settings,
		bus:       busService,
		locks:     lockService,
		approvals: approvalService,
		queue:     queue.NewService(db, busService, lockService, approvalService, owner, settings.ClaimTTLSec),
		state:     state.NewController(busService),
		supervisor: supervisor.NewService(
			busService, lockService, supervisor.ExecLauncher{},
			settings.PidDir, settings.ServiceOrder, settings.Services, owner,
		),
		owner: owner,
	}

	switch os.Args[1] {
	case "version":
		fmt.Println(status.Version)
	case "status":
		a.cmdStatus()
	case "svc":
		a.cmdSvc(os.Args[2:])
	case "mode":
		a.cmdMode(os.Args[2:])
	case "state":
		a.cmdState(os.Args[2:])
	case "order":
		a.cmdOrder(os.Args[2:])
	case "locks":
		a.cmdLocks(os.Args[2:])
	case "events":
		a.cmdEvents(os.Args[2:])
	case "approve":
		a.cmdResolve(os.Args[2:], a.approvals.Confirm)
	case "reject":
		a.cmdResolve(os.Args[2:], a.approvals.Reject)
	case "run-once":
		a.cmdRunOnce()
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: centrix <command>

commands:
  status                         overall system snapshot
  svc start|stop|restart <name>  manage a supervised service (or "all")
  svc status                     per-service run state
  mode get|set <mock|real>       trading mode (real requires approval)
  state pause|resume|show        pause/resume orchestration
  order test [flags]             place a simulated test order
  locks list|reap                inspect cooperative locks
  events [flags]                 tail the audit log
  approve <token>                confirm a pending approval
  reject <token>                 reject a pending approval
  run-once                       run one executor pass (sweep + claim)
  version                        print version`)
}

func (a *app) cmdStatus() {
	snapshot, err := a.state.Snapshot()
	if err != nil {
		fatal("state: %v", err)
	}
	summary, err := a.supervisor.RunningSummary()
	if err != nil {
		fatal("services: %v", err)
	}
	pendingCmds, _ := a.bus.PendingCommands()
	pendingApprovals, _ := a.bus.PendingApprovals()

	fmt.Printf("mode=%v paused=%v %s queue=%d approvals=%d\n",
		snapshot["mode"], snapshot["paused"], summary, pendingCmds, pendingApprovals)

	statuses, err := a.supervisor.Status()
	if err != nil {
		fatal("services: %v", err)
	}
	for _, name := range a.supervisor.Services() {
		st := statuses[name]
		run := "stopped"
		if st.Running {
			run = fmt.Sprintf("running pid=%d", st.PID)
		}
		fmt.Printf("  %-10s %s\n", name, run)
	}
}

// cmdSvc serializes whole-fleet operations behind the control lock so two
// operators cannot interleave start/stop across services.
func (a *app) cmdSvc(args []string) {
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	action := args[0]
	if action == "status" {
		a.cmdStatus()
		return
	}

	if len(args) < 2 {
		usage()
		os.Exit(2)
	}
	targets := []string{args[1]}
	if args[1] == "all" {
		targets = a.supervisor.Services()
	}

	err := a.locks.WithLock(controlLockName, a.owner, controlLockTTL, func() error {
		for _, name := range targets {
			var result string
			var err error
			switch action {
			case "start":
				result, err = a.supervisor.Start(name)
			case "stop":
				result, err = a.supervisor.Stop(name)
			case "restart":
				result = "restarted"
				err = a.supervisor.Restart(name)
			default:
				usage()
				os.Exit(2)
			}
			if err != nil {
				return fmt.Errorf("%s %s: %w", action, name, err)
			}
			fmt.Printf("%s: %s\n", name, result)
		}
		return nil
	})
	if err == locks.ErrHeld {
		fatal("control operations are busy")
	}
	if err != nil {
		fatal("%v", err)
	}
}

func (a *app) cmdMode(args []string) {
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	switch args[0] {
	case "get":
		mode, err := a.state.Mode()
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(mode)
	case "set":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		a.submit("mode.set", map[string]interface{}{"mode": args[1]})
	default:
		usage()
		os.Exit(2)
	}
}

func (a *app) cmdState(args []string) {
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	var err error
	switch args[0] {
	case "pause":
		err = a.state.Pause()
		fmt.Println("paused")
	case "resume":
		err = a.state.Resume()
		fmt.Println("resumed")
	case "show":
		var snapshot map[string]interface{}
		snapshot, err = a.state.Snapshot()
		if err == nil {
			fmt.Printf("mode=%v paused=%v\n", snapshot["mode"], snapshot["paused"])
		}
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal("%v", err)
	}
}

func (a *app) cmdOrder(args []string) {
	if len(args) == 0 || args[0] != "test" {
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet("order test", flag.ExitOnError)
	symbol := fs.String("symbol", "AAPL", "instrument symbol")
	side := fs.String("side", "BUY", "BUY or SELL")
	qty := fs.Float64("qty", 1, "order quantity")
	price := fs.Float64("price", 0, "limit price (0 = market)")
	_ = fs.Parse(args[1:])

	payload := map[string]interface{}{
		"symbol":   *symbol,
		"side":     *side,
		"quantity": *qty,
	}
	if *price > 0 {
		payload["order_type"] = "LIMIT"
		payload["price"] = *price
	}
	a.submit("order.test", payload)
}

func (a *app) cmdLocks(args []string) {
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	switch args[0] {
	case "list":
		snapshot, err := a.locks.List()
		if err != nil {
			fatal("%v", err)
		}
		if len(snapshot) == 0 {
			fmt.Println("no locks held")
			return
		}
		for _, lock := range snapshot {
			fmt.Printf("%-20s owner=%s ttl=%ds acquired_at=%d\n",
				lock.Name, lock.Owner, lock.TTLSec, lock.AcquiredAt)
		}
	case "reap":
		count, err := a.locks.Reap()
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("reaped %d stale locks\n", count)
	default:
		usage()
		os.Exit(2)
	}
}

func (a *app) cmdEvents(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of events")
	level := fs.String("level", "", "filter by level")
	topic := fs.String("topic", "", "filter by topic")
	_ = fs.Parse(args)

	events, err := a.bus.TailEvents(*limit, *level, *topic)
	if err != nil {
		fatal("%v", err)
	}
	for _, event := range events {
		var data map[string]interface{}
		_ = json.Unmarshal([]byte(event.Data), &data)
		ts := time.UnixMilli(event.CreatedAt).Format(time.RFC3339)
		fmt.Printf("%s %-8s %-24s %v\n", ts, event.Level, event.Topic, data)
	}
}

func (a *app) cmdResolve(args []string, action func(string) (approval.Outcome, error)) {
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	outcome, err := action(args[0])
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(outcome)
	if outcome != approval.OutcomeOK {
		os.Exit(1)
	}
}

// cmdRunOnce runs a single executor pass. Useful when the worker service is
// down and a queued command needs to move.
func (a *app) cmdRunOnce() {
	executor := worker.NewExecutor(
		a.bus, a.queue, a.approvals, a.locks, a.state, a.supervisor,
		exchange.NewMockAdapter(),
		exchange.NewGatewayAdapter(a.settings.GatewayHost, a.settings.GatewayPort, a.settings.GatewayEnabled),
		a.settings.WorkerPoll, a.settings.HeartbeatInterval,
	)
	if err := executor.Tick(); err != nil {
		fatal("%v", err)
	}
	fmt.Println("ok")
}

func (a *app) submit(cmdType string, payload map[string]interface{}) {
	corrID := uuid.New().String()
	id, err := a.bus.Enqueue(cmdType, payload, corrID)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("command %d enqueued\n", id)

	command, err := a.bus.GetCommand(id)
	if err == nil && command != nil && types.IsSensitive(command.Type, command.Payload) {
		token, err := a.approvals.Request(id, a.settings.ApprovalTTLSec)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("approval required: centrix approve %s\n", token)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
