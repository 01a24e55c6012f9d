package worker

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/centrixhq/centrix/internal/approval"
	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/database"
	"github.com/centrixhq/centrix/internal/exchange"
	"github.com/centrixhq/centrix/internal/locks"
	"github.com/centrixhq/centrix/internal/queue"
	"github.com/centrixhq/centrix/internal/state"
	"github.com/centrixhq/centrix/internal/supervisor"
	"github.com/centrixhq/centrix/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAdapter counts placements and always fills at the requested price.
type recordingAdapter struct {
	mu     sync.Mutex
	placed int
	ready  bool
	fail   bool
}

func (a *recordingAdapter) Name() string { return "recording" }

func (a *recordingAdapter) Ready() bool { return a.ready }

func (a *recordingAdapter) PlaceOrder(order types.OrderPayload) (*exchange.Fill, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.placed++
	if a.fail {
		return nil, fmt.Errorf("venue unavailable")
	}
	price := order.Price
	if price <= 0 {
		price = 100
	}
	return &exchange.Fill{
		FillID:   "FILL-TEST-1",
		Venue:    "TEST",
		Symbol:   order.Symbol,
		Side:     order.Side,
		Price:    price,
		Quantity: order.Quantity,
	}, nil
}

func (a *recordingAdapter) placements() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.placed
}

type env struct {
	bus       *bus.Service
	locks     *locks.Service
	approvals *approval.Service
	queue     *queue.Service
	state     *state.Controller
	mock      *recordingAdapter
	gateway   *recordingAdapter
	executor  *Executor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "ctl.db"))
	require.NoError(t, err)

	busService := bus.NewService(db)
	lockService := locks.NewService(db, busService)
	approvalService := approval.NewService(db, busService)
	queueService := queue.NewService(db, busService, lockService, approvalService, "test-worker", 60)
	controller := state.NewController(busService)
	supervisorService := supervisor.NewService(
		busService, lockService, noopLauncher{}, t.TempDir(), nil, map[string][]string{}, "test-worker",
	)

	mock := &recordingAdapter{ready: true}
	gateway := &recordingAdapter{}
	return &env{
		bus:       busService,
		locks:     lockService,
		approvals: approvalService,
		queue:     queueService,
		state:     controller,
		mock:      mock,
		gateway:   gateway,
		executor: NewExecutor(
			busService, queueService, approvalService, lockService,
			controller, supervisorService, mock, gateway,
			time.Second, 5*time.Second,
		),
	}
}

type noopLauncher struct{}

func (noopLauncher) Launch(name string, argv []string) (int, error) { return 0, fmt.Errorf("no exec") }
func (noopLauncher) Signal(pid int, sig syscall.Signal) error       { return nil }
func (noopLauncher) Alive(pid int) bool                             { return false }

func orderPayload(price float64) map[string]interface{} {
	payload := map[string]interface{}{
		"symbol":   "AAPL",
		"side":     "BUY",
		"quantity": 3.0,
	}
	if price > 0 {
		payload["order_type"] = "LIMIT"
		payload["price"] = price
	}
	return payload
}

func commandData(t *testing.T, e *env, id int64) map[string]interface{} {
	t.Helper()
	events, err := e.bus.TailEvents(100, "", "")
	require.NoError(t, err)
	for i := len(events) - 1; i >= 0; i-- {
		var data map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(events[i].Data), &data))
		if cid, ok := data["command_id"].(float64); ok && int64(cid) == id {
			return data
		}
	}
	return nil
}

func TestTickExecutesTestOrder(t *testing.T) {
	e := newEnv(t)

	id, err := e.bus.Enqueue(types.CmdOrderTest, orderPayload(50), "")
	require.NoError(t, err)

	require.NoError(t, e.executor.Tick())

	command, err := e.bus.GetCommand(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, command.Status)
	assert.Equal(t, 1, e.mock.placements())
	assert.Zero(t, e.gateway.placements(), "test orders never touch the gateway")
}

func TestTickSkipsOrderWhilePaused(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.state.Pause())

	id, err := e.bus.Enqueue(types.CmdOrderTest, orderPayload(0), "")
	require.NoError(t, err)

	require.NoError(t, e.executor.Tick())

	command, err := e.bus.GetCommand(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, command.Status, "skipped orders still terminate")
	assert.Zero(t, e.mock.placements(), "no side effect while paused")

	data := commandData(t, e, id)
	require.NotNil(t, data)
	assert.Equal(t, "paused", data["skipped"])
}

func TestTickExecutesPauseCommand(t *testing.T) {
	e := newEnv(t)

	id, err := e.bus.Enqueue(types.CmdStatePause, nil, "")
	require.NoError(t, err)

	require.NoError(t, e.executor.Tick())

	command, err := e.bus.GetCommand(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, command.Status)

	paused, err := e.state.IsPaused()
	require.NoError(t, err)
	assert.True(t, paused)
}

func TestSensitiveOrderRunsOnlyAfterApproval(t *testing.T) {
	e := newEnv(t)

	id, err := e.bus.Enqueue(types.CmdOrderNew, orderPayload(120), "")
	require.NoError(t, err)
	token, err := e.approvals.Request(id, 300)
	require.NoError(t, err)

	require.NoError(t, e.executor.Tick())
	command, err := e.bus.GetCommand(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusNew, command.Status, "pending approval keeps the command queued")
	assert.Zero(t, e.mock.placements())

	outcome, err := e.approvals.Confirm(token)
	require.NoError(t, err)
	require.Equal(t, approval.OutcomeOK, outcome)

	require.NoError(t, e.executor.Tick())
	command, err = e.bus.GetCommand(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, command.Status)
	assert.Equal(t, 1, e.mock.placements(), "mock mode routes live orders to the simulator")
}

func TestTickExpiresOverdueApproval(t *testing.T) {
	e := newEnv(t)

	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	e.bus.Clock = clock
	e.approvals.Clock = clock

	id, err := e.bus.Enqueue(types.CmdOrderNew, orderPayload(0), "")
	require.NoError(t, err)
	_, err = e.approvals.Request(id, 1)
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	require.NoError(t, e.executor.Tick())

	command, err := e.bus.GetCommand(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusErr, command.Status, "expired approval fails the command")
	assert.Zero(t, e.mock.placements())
}

func TestModeSetRealFailsWithoutGateway(t *testing.T) {
	e := newEnv(t)
	e.gateway.ready = false

	id, err := e.bus.Enqueue(types.CmdModeSet, map[string]interface{}{"mode": types.ModeReal}, "")
	require.NoError(t, err)
	token, err := e.approvals.Request(id, 300)
	require.NoError(t, err)
	_, err = e.approvals.Confirm(token)
	require.NoError(t, err)

	require.NoError(t, e.executor.Tick())

	command, err := e.bus.GetCommand(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusErr, command.Status)

	mode, err := e.state.Mode()
	require.NoError(t, err)
	assert.Equal(t, types.ModeMock, mode, "safety check keeps mode at mock")

	events, err := e.bus.TailEvents(10, types.LevelCritical, "state.mode")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestModeSetRealSucceedsWithGateway(t *testing.T) {
	e := newEnv(t)
	e.gateway.ready = true

	id, err := e.bus.Enqueue(types.CmdModeSet, map[string]interface{}{"mode": types.ModeReal}, "")
	require.NoError(t, err)
	token, err := e.approvals.Request(id, 300)
	require.NoError(t, err)
	_, err = e.approvals.Confirm(token)
	require.NoError(t, err)

	require.NoError(t, e.executor.Tick())

	command, err := e.bus.GetCommand(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, command.Status)

	mode, err := e.state.Mode()
	require.NoError(t, err)
	assert.Equal(t, types.ModeReal, mode)
}

func TestRealModeOrderUsesGateway(t *testing.T) {
	e := newEnv(t)
	e.gateway.ready = true
	require.NoError(t, e.state.SetMode(types.ModeReal))

	id, err := e.bus.Enqueue(types.CmdOrderNew, orderPayload(80), "")
	require.NoError(t, err)
	token, err := e.approvals.Request(id, 300)
	require.NoError(t, err)
	_, err = e.approvals.Confirm(token)
	require.NoError(t, err)

	require.NoError(t, e.executor.Tick())

	assert.Equal(t, 1, e.gateway.placements())
	assert.Zero(t, e.mock.placements())
}

func TestFailedPlacementFinalizesErr(t *testing.T) {
	e := newEnv(t)
	e.mock.fail = true

	id, err := e.bus.Enqueue(types.CmdOrderTest, orderPayload(0), "")
	require.NoError(t, err)

	require.NoError(t, e.executor.Tick())

	command, err := e.bus.GetCommand(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusErr, command.Status)

	events, err := e.bus.TailEvents(10, types.LevelError, "cmd.order.test.fail")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestTickDrainsBatch(t *testing.T) {
	e := newEnv(t)

	ids := make([]int64, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := e.bus.Enqueue(types.CmdOrderTest, orderPayload(0), "")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, e.executor.Tick())

	for _, id := range ids {
		command, err := e.bus.GetCommand(id)
		require.NoError(t, err)
		assert.Equal(t, types.StatusDone, command.Status)
	}
}
