package bus

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/centrixhq/centrix/internal/database"
	"github.com/centrixhq/centrix/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "ctl.db"))
	require.NoError(t, err)
	return NewService(db), db
}

func TestEmitAssignsMonotonicIDs(t *testing.T) {
	service, _ := newTestService(t)

	first, err := service.Emit("svc.worker.alive", types.LevelDebug, nil, "")
	require.NoError(t, err)
	second, err := service.Emit("svc.worker.alive", types.LevelDebug, nil, "")
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestTailEventsFilters(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Emit("cmd.order.test.ok", types.LevelInfo, map[string]interface{}{"n": 1}, "corr-1")
	require.NoError(t, err)
	_, err = service.Emit("cmd.order.test.fail", types.LevelError, map[string]interface{}{"n": 2}, "corr-2")
	require.NoError(t, err)
	_, err = service.Emit("lock.reaped", types.LevelWarn, nil, "")
	require.NoError(t, err)

	events, err := service.TailEvents(10, "", "")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "cmd.order.test.ok", events[0].Topic, "tail is returned in append order")
	assert.Equal(t, "lock.reaped", events[2].Topic)

	events, err = service.TailEvents(10, types.LevelError, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "cmd.order.test.fail", events[0].Topic)

	events, err = service.TailEvents(10, "", "lock.reaped")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = service.TailEvents(1, "", "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "lock.reaped", events[0].Topic, "limit keeps the newest rows")
}

func TestEnqueueValidates(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Enqueue(types.CmdOrderTest, map[string]interface{}{
		"symbol": "AAPL",
		"side":   "HOLD",
	}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = service.Enqueue("order.cancel", nil, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCommand)

	pending, err := service.PendingCommands()
	require.NoError(t, err)
	assert.Zero(t, pending, "rejected submissions never enter the queue")
}

func TestEnqueueStoresCommand(t *testing.T) {
	service, _ := newTestService(t)

	id, err := service.Enqueue(types.CmdOrderTest, map[string]interface{}{
		"symbol":   "AAPL",
		"side":     "BUY",
		"quantity": 2.0,
	}, "corr-9")
	require.NoError(t, err)

	command, err := service.GetCommand(id)
	require.NoError(t, err)
	require.NotNil(t, command)
	assert.Equal(t, types.StatusNew, command.Status)
	assert.Equal(t, "corr-9", command.CorrID)
	assert.Contains(t, command.Payload, `"symbol":"AAPL"`)

	missing, err := service.GetCommand(id + 100)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestKVRoundTrip(t *testing.T) {
	service, _ := newTestService(t)

	_, ok, err := service.GetKV("mode")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, service.SetKV("mode", "mock"))
	require.NoError(t, service.SetKV("mode", "real"))

	value, ok, err := service.GetKV("mode")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "real", value, "second write overwrites the first")
}

func TestHeartbeat(t *testing.T) {
	service, _ := newTestService(t)

	now := time.Now()
	service.Clock = func() time.Time { return now }

	_, ok, err := service.Heartbeat("worker")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, service.RecordHeartbeat("worker"))

	ts, ok, err := service.Heartbeat("worker")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.EpochMS(now), ts)
}

func TestEventCounts(t *testing.T) {
	service, _ := newTestService(t)

	for i := 0; i < 3; i++ {
		_, err := service.Emit("state.mode", types.LevelInfo, nil, "")
		require.NoError(t, err)
	}
	_, err := service.Emit("lock.reaped", types.LevelWarn, nil, "")
	require.NoError(t, err)

	counts, err := service.EventCounts()
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[types.LevelInfo])
	assert.Equal(t, int64(1), counts[types.LevelWarn])
}

func TestStreamerDeliversInAppendOrder(t *testing.T) {
	service, db := newTestService(t)

	// Pre-existing rows are never replayed to new subscribers.
	_, err := service.Emit("state.mode", types.LevelInfo, nil, "")
	require.NoError(t, err)

	streamer := NewStreamer(db, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go streamer.Start(ctx)

	// Give the streamer a moment to record its starting position.
	time.Sleep(50 * time.Millisecond)

	ch, unsub := streamer.Subscribe(16)
	defer unsub()

	topics := []string{"state.paused", "state.resumed", "cmd.order.test.ok"}
	for _, topic := range topics {
		_, err := service.Emit(topic, types.LevelInfo, nil, "")
		require.NoError(t, err)
	}

	var received []string
	deadline := time.After(3 * time.Second)
	for len(received) < len(topics) {
		select {
		case event := <-ch:
			received = append(received, event.Topic)
		case <-deadline:
			t.Fatalf("timed out, received %v", received)
		}
	}
	assert.Equal(t, topics, received)
}

func subscriberCount(s *Streamer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func TestStreamHandlerUnsubscribesOnDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service, db := newTestService(t)

	streamer := NewStreamer(db, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go streamer.Start(ctx)

	router := gin.New()
	router.GET("/events/ws", NewGinHandlers(service, streamer).StreamEventsHandler())
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return subscriberCount(streamer) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	// The handler must notice the dropped client and unsubscribe without
	// waiting for any event traffic.
	assert.Eventually(t, func() bool {
		return subscriberCount(streamer) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
