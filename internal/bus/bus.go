package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/centrixhq/centrix/internal/types"
	"gorm.io/gorm"
)

// ErrInvalidCommand wraps payload validation failures so callers can report
// them synchronously as client errors.
var ErrInvalidCommand = errors.New("invalid command")

// Service is the append side of the shared store: it records events, accepts
// commands into the queue, and manages scalar KV state. All cooperating
// processes construct one against the same database.
type Service struct {
	db *Database

	// Clock supplies the current time; replaced in tests.
	Clock func() time.Time
}

// NewService creates a new bus service with the given database connection.
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		Clock: time.Now,
	}
}

// DB exposes the low-level database wrapper to sibling services.
func (s *Service) DB() *Database {
	return s.db
}

// Emit appends an audit event and returns its id.
func (s *Service) Emit(topic, level string, data map[string]interface{}, corrID string) (int64, error) {
	event := &types.Event{
		Topic:     topic,
		Level:     level,
		Data:      marshalData(data),
		CorrID:    corrID,
		CreatedAt: types.EpochMS(s.Clock()),
	}
	if err := s.db.InsertEvent(event); err != nil {
		return 0, fmt.Errorf("failed to append event: %w", err)
	}
	return event.ID, nil
}

// Enqueue validates and persists a command with status NEW. Validation errors
// are reported synchronously and the command never enters the queue.
func (s *Service) Enqueue(cmdType string, payload map[string]interface{}, corrID string) (int64, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if err := types.ValidatePayload(cmdType, payload); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	command := &types.Command{
		Type:      cmdType,
		Payload:   marshalData(payload),
		Status:    types.StatusNew,
		CorrID:    corrID,
		CreatedAt: types.EpochMS(s.Clock()),
	}
	if err := s.db.InsertCommand(command); err != nil {
		return 0, fmt.Errorf("failed to enqueue command: %w", err)
	}
	return command.ID, nil
}

// GetCommand returns a command by id, or nil when absent.
func (s *Service) GetCommand(id int64) (*types.Command, error) {
	return s.db.GetCommand(id)
}

// TailEvents returns the newest events in append order.
func (s *Service) TailEvents(limit int, level, topic string) ([]types.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.db.TailEvents(limit, level, topic)
}

// PendingCommands returns the queue depth.
func (s *Service) PendingCommands() (int64, error) {
	return s.db.CountCommandsByStatus(types.StatusNew)
}

// PendingApprovals returns the number of unresolved approvals.
func (s *Service) PendingApprovals() (int64, error) {
	return s.db.CountApprovalsByStatus(types.ApprovalPending)
}

// EventCounts returns per-level event totals for the status surface.
func (s *Service) EventCounts() (map[string]int64, error) {
	return s.db.CountEventsByLevel()
}

// SetKV upserts a scalar state entry.
func (s *Service) SetKV(key, value string) error {
	return s.db.SetKV(key, value)
}

// GetKV reads a scalar state entry.
func (s *Service) GetKV(key string) (string, bool, error) {
	return s.db.GetKV(key)
}

// RecordHeartbeat stores the current timestamp for a component under
// heartbeat:<component>.
func (s *Service) RecordHeartbeat(component string) error {
	ts := types.EpochMS(s.Clock())
	return s.db.SetKV("heartbeat:"+component, strconv.FormatInt(ts, 10))
}

// Heartbeat returns the last recorded heartbeat for a component.
func (s *Service) Heartbeat(component string) (int64, bool, error) {
	value, ok, err := s.db.GetKV("heartbeat:" + component)
	if err != nil || !ok {
		return 0, false, err
	}
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return ts, true, nil
}

func marshalData(data map[string]interface{}) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
