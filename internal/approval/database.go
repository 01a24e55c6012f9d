package approval

import (
	"errors"

	"github.com/centrixhq/centrix/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Insert(approval *types.Approval) error {
	return d.db.Create(approval).Error
}

func (d *Database) GetByToken(token string) (*types.Approval, error) {
	var approval types.Approval
	if err := d.db.Where("token = ?", token).First(&approval).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &approval, nil
}

func (d *Database) GetByCommand(commandID int64) (*types.Approval, error) {
	var approval types.Approval
	err := d.db.Where("command_id = ?", commandID).
		Order("id DESC").
		First(&approval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &approval, nil
}

func (d *Database) ListByStatus(status string) ([]types.Approval, error) {
	var approvals []types.Approval
	err := d.db.Where("status = ?", status).Order("id ASC").Find(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}

// TransitionStatus moves an approval out of PENDING. The conditional update
// makes terminal states sticky even under racing sweeps and confirms.
func (d *Database) TransitionStatus(id int64, to string) (bool, error) {
	result := d.db.Model(&types.Approval{}).
		Where("id = ? AND status = ?", id, types.ApprovalPending).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// PendingExpired returns PENDING approvals whose expiry has passed.
func (d *Database) PendingExpired(nowMS int64) ([]types.Approval, error) {
	var approvals []types.Approval
	err := d.db.
		Where("status = ? AND expires_at <= ?", types.ApprovalPending, nowMS).
		Find(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}

// FinalizeCommand moves the owning command out of NEW. Idempotent: a command
// already finalized by the executor is left untouched.
func (d *Database) FinalizeCommand(commandID int64, status string) (bool, error) {
	result := d.db.Model(&types.Command{}).
		Where("id = ? AND status = ?", commandID, types.StatusNew).
		Update("status", status)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (d *Database) GetCommand(id int64) (*types.Command, error) {
	var command types.Command
	if err := d.db.Where("id = ?", id).First(&command).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &command, nil
}
