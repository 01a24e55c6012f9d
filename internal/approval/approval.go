// Package approval implements the two-phase confirmation gate for sensitive
// commands. Requesting a sensitive action and authorizing it are separate
// steps; an unacknowledged request fails closed once its TTL elapses.
package approval

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/types"
	"gorm.io/gorm"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Reason codes recorded when a gated command is finalized without executing.
const (
	ReasonRejected = "rejected"
	ReasonExpired  = "approval_expired"
)

// Outcome classifies the result of a confirm or reject attempt.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeAlreadyResolved Outcome = "already-resolved"
	OutcomeNotFound        Outcome = "not-found"
)

// Service manages approval records and their lifecycle.
type Service struct {
	db  *Database
	bus *bus.Service

	// TokenLength controls generated confirmation tokens.
	TokenLength int
	// Clock supplies the current time; tests substitute a simulated clock.
	Clock func() time.Time
}

// NewService creates an approval gate sharing the given database connection.
func NewService(gormDB *gorm.DB, busService *bus.Service) *Service {
	return &Service{
		db:          NewDatabase(gormDB),
		bus:         busService,
		TokenLength: 6,
		Clock:       time.Now,
	}
}

// Request creates a PENDING approval for the command and returns the
// confirmation token.
func (s *Service) Request(commandID int64, ttlSec int64) (string, error) {
	token, err := generateToken(s.TokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate approval token: %w", err)
	}

	now := types.EpochMS(s.Clock())
	record := &types.Approval{
		CommandID: commandID,
		Token:     token,
		Status:    types.ApprovalPending,
		ExpiresAt: now + ttlSec*1000,
		CreatedAt: now,
	}
	if err := s.db.Insert(record); err != nil {
		return "", fmt.Errorf("failed to create approval: %w", err)
	}

	_, _ = s.bus.Emit("approval.requested", types.LevelInfo, map[string]interface{}{
		"approval_id": record.ID,
		"command_id":  commandID,
		"expires_at":  record.ExpiresAt,
	}, commandCorrID(s.db, commandID))

	return token, nil
}

// Confirm transitions PENDING to OK if the approval has not expired. An
// expired-but-unswept approval is flipped to EXPIRED on access and can never
// be confirmed.
func (s *Service) Confirm(token string) (Outcome, error) {
	record, err := s.db.GetByToken(token)
	if err != nil {
		return "", err
	}
	if record == nil {
		return OutcomeNotFound, nil
	}
	if record.Status != types.ApprovalPending {
		return OutcomeAlreadyResolved, nil
	}

	now := types.EpochMS(s.Clock())
	if record.ExpiresAt <= now {
		if err := s.expire(record); err != nil {
			return "", err
		}
		return OutcomeAlreadyResolved, nil
	}

	moved, err := s.db.TransitionStatus(record.ID, types.ApprovalOK)
	if err != nil {
		return "", err
	}
	if !moved {
		return OutcomeAlreadyResolved, nil
	}

	_, _ = s.bus.Emit("approval.confirmed", types.LevelInfo, map[string]interface{}{
		"approval_id": record.ID,
		"command_id":  record.CommandID,
	}, commandCorrID(s.db, record.CommandID))
	return OutcomeOK, nil
}

// Reject transitions PENDING to REJECT and finalizes the owning command as
// ERR with reason "rejected" so it is never executed.
func (s *Service) Reject(token string) (Outcome, error) {
	record, err := s.db.GetByToken(token)
	if err != nil {
		return "", err
	}
	if record == nil {
		return OutcomeNotFound, nil
	}
	if record.Status != types.ApprovalPending {
		return OutcomeAlreadyResolved, nil
	}

	moved, err := s.db.TransitionStatus(record.ID, types.ApprovalReject)
	if err != nil {
		return "", err
	}
	if !moved {
		return OutcomeAlreadyResolved, nil
	}

	corrID := commandCorrID(s.db, record.CommandID)
	_, _ = s.bus.Emit("approval.rejected", types.LevelWarn, map[string]interface{}{
		"approval_id": record.ID,
		"command_id":  record.CommandID,
		"message":     "sensitive command rejected by operator",
	}, corrID)

	if err := s.finalizeGated(record.CommandID, ReasonRejected, corrID); err != nil {
		return "", err
	}
	return OutcomeOK, nil
}

// SweepExpired transitions every PENDING approval past its expiry into
// EXPIRED, finalizing the owning command as ERR with reason
// "approval_expired". Idempotent and safe to race: a second sweep finds
// nothing left to move.
func (s *Service) SweepExpired() (int, error) {
	now := types.EpochMS(s.Clock())
	expired, err := s.db.PendingExpired(now)
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range expired {
		record := &expired[i]
		moved, err := s.db.TransitionStatus(record.ID, types.ApprovalExpired)
		if err != nil {
			return swept, err
		}
		if !moved {
			continue
		}
		swept++

		corrID := commandCorrID(s.db, record.CommandID)
		_, _ = s.bus.Emit("approval.expired", types.LevelWarn, map[string]interface{}{
			"approval_id": record.ID,
			"command_id":  record.CommandID,
			"expires_at":  record.ExpiresAt,
			"message":     "approval TTL elapsed without confirmation",
		}, corrID)

		if err := s.finalizeGated(record.CommandID, ReasonExpired, corrID); err != nil {
			return swept, err
		}
	}
	return swept, nil
}

// ForCommand returns the newest approval attached to a command, or nil.
func (s *Service) ForCommand(commandID int64) (*types.Approval, error) {
	return s.db.GetByCommand(commandID)
}

// Pending returns unresolved approvals for the status surface.
func (s *Service) Pending() ([]types.Approval, error) {
	return s.db.ListByStatus(types.ApprovalPending)
}

// expire flips a single overdue approval and finalizes its command.
func (s *Service) expire(record *types.Approval) error {
	moved, err := s.db.TransitionStatus(record.ID, types.ApprovalExpired)
	if err != nil || !moved {
		return err
	}

	corrID := commandCorrID(s.db, record.CommandID)
	_, _ = s.bus.Emit("approval.expired", types.LevelWarn, map[string]interface{}{
		"approval_id": record.ID,
		"command_id":  record.CommandID,
		"message":     "approval TTL elapsed without confirmation",
	}, corrID)
	return s.finalizeGated(record.CommandID, ReasonExpired, corrID)
}

func (s *Service) finalizeGated(commandID int64, reason, corrID string) error {
	finalized, err := s.db.FinalizeCommand(commandID, types.StatusErr)
	if err != nil {
		return err
	}
	if !finalized {
		return nil
	}

	command, err := s.db.GetCommand(commandID)
	topic := "cmd.denied"
	if err == nil && command != nil {
		topic = fmt.Sprintf("cmd.%s.fail", command.Type)
	}
	_, _ = s.bus.Emit(topic, types.LevelWarn, map[string]interface{}{
		"command_id": commandID,
		"reason":     reason,
		"message":    "command finalized without execution",
	}, corrID)
	return nil
}

func commandCorrID(db *Database, commandID int64) string {
	command, err := db.GetCommand(commandID)
	if err != nil || command == nil {
		return ""
	}
	return command.CorrID
}

func generateToken(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	token := make([]byte, length)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range token {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		token[i] = tokenAlphabet[n.Int64()]
	}
	return string(token), nil
}
