// Package queue implements the durable command queue and its state machine.
// A command only ever has three persisted states: NEW, DONE, ERR. In-flight
// claiming is represented by a short-lived lock rather than a status, so a
// crashed executor never leaves a command permanently stuck — the claim
// lease lapses and another process picks the command back up.
package queue

import (
	"errors"
	"fmt"

	"github.com/centrixhq/centrix/internal/approval"
	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/locks"
	"github.com/centrixhq/centrix/internal/types"
	"gorm.io/gorm"
)

// ErrAlreadyFinal signals a finalize attempt on a terminal command. The
// transition is never double-applied.
var ErrAlreadyFinal = errors.New("command already finalized")

const candidateBatch = 25

// Service claims and finalizes commands for an executor identity.
type Service struct {
	db        *Database
	bus       *bus.Service
	locks     *locks.Service
	approvals *approval.Service

	owner       string
	claimTTLSec int64
}

// NewService creates a queue service. The owner identity is recorded on
// claim leases so a crashed executor's claims are attributable in the lock
// table until they lapse.
func NewService(gormDB *gorm.DB, busService *bus.Service, lockService *locks.Service, approvalService *approval.Service, owner string, claimTTLSec int64) *Service {
	if claimTTLSec <= 0 {
		claimTTLSec = 60
	}
	return &Service{
		db:          NewDatabase(gormDB),
		bus:         busService,
		locks:       lockService,
		approvals:   approvalService,
		owner:       owner,
		claimTTLSec: claimTTLSec,
	}
}

// Enqueue validates and appends a command; see bus.Service.Enqueue.
func (s *Service) Enqueue(cmdType string, payload map[string]interface{}, corrID string) (int64, error) {
	return s.bus.Enqueue(cmdType, payload, corrID)
}

// ClaimNext returns exclusive ownership of one NEW command, or nil when no
// work is available. Absence of work is a normal result, not an error.
//
// Sensitive commands are only returned once their approval is OK; a REJECT
// or EXPIRED approval finalizes the command as ERR without execution, and a
// PENDING approval leaves it queued. At most one concurrent caller wins any
// given command: the per-command lease is the arbiter, and the status is
// re-read under the lease before the command is handed out.
func (s *Service) ClaimNext(cmdTypes ...string) (*types.Command, error) {
	candidates, err := s.db.Candidates(cmdTypes, candidateBatch)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		candidate := &candidates[i]

		if types.IsSensitive(candidate.Type, candidate.Payload) {
			eligible, err := s.gateEligible(candidate)
			if err != nil {
				return nil, err
			}
			if !eligible {
				continue
			}
		}

		acquired, err := s.locks.Acquire(claimLock(candidate.ID), s.owner, s.claimTTLSec)
		if err != nil {
			return nil, err
		}
		if !acquired {
			continue
		}

		fresh, err := s.db.Get(candidate.ID)
		if err != nil {
			return nil, err
		}
		if fresh == nil || fresh.Status != types.StatusNew {
			// Lost the race to another finalizer; move on.
			if err := s.locks.Release(claimLock(candidate.ID), s.owner); err != nil {
				return nil, err
			}
			continue
		}
		return fresh, nil
	}
	return nil, nil
}

// Finalize transitions a claimed command to DONE or ERR, appends the
// matching audit event, and releases the claim lease. Finalizing an
// already-terminal command returns ErrAlreadyFinal and changes nothing.
func (s *Service) Finalize(id int64, outcome string, fields map[string]interface{}) error {
	if outcome != types.StatusDone && outcome != types.StatusErr {
		return fmt.Errorf("invalid finalize outcome %q", outcome)
	}

	command, err := s.db.Get(id)
	if err != nil {
		return err
	}
	if command == nil {
		return fmt.Errorf("command %d not found", id)
	}

	moved, err := s.db.Finalize(id, outcome)
	if err != nil {
		return err
	}
	releaseErr := s.locks.Release(claimLock(id), s.owner)
	if !moved {
		return ErrAlreadyFinal
	}

	data := map[string]interface{}{"command_id": id}
	for k, v := range fields {
		data[k] = v
	}

	topic := fmt.Sprintf("cmd.%s.ok", command.Type)
	level := types.LevelInfo
	if outcome == types.StatusErr {
		topic = fmt.Sprintf("cmd.%s.fail", command.Type)
		level = types.LevelError
	}
	_, _ = s.bus.Emit(topic, level, data, command.CorrID)

	return releaseErr
}

// RecentCommands returns the newest commands for observability.
func (s *Service) RecentCommands(limit int) ([]types.Command, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.db.ListRecent(limit)
}

// gateEligible applies the execution policy for sensitive commands.
func (s *Service) gateEligible(command *types.Command) (bool, error) {
	record, err := s.approvals.ForCommand(command.ID)
	if err != nil {
		return false, err
	}
	if record == nil {
		// Submitted without a gate; leave queued until one is attached
		// or an operator finalizes it.
		return false, nil
	}

	switch record.Status {
	case types.ApprovalOK:
		return true, nil
	case types.ApprovalPending:
		return false, nil
	default:
		// REJECT or EXPIRED: the gate finalizes the command as it
		// resolves, but a conditional retry here covers records
		// resolved by an older build that did not.
		reason := approval.ReasonRejected
		if record.Status == types.ApprovalExpired {
			reason = approval.ReasonExpired
		}
		moved, err := s.db.Finalize(command.ID, types.StatusErr)
		if err != nil {
			return false, err
		}
		if moved {
			_, _ = s.bus.Emit(fmt.Sprintf("cmd.%s.fail", command.Type), types.LevelWarn, map[string]interface{}{
				"command_id": command.ID,
				"reason":     reason,
				"message":    "command finalized without execution",
			}, command.CorrID)
		}
		return false, nil
	}
}

func claimLock(id int64) string {
	return fmt.Sprintf("cmd.%d", id)
}
