package queue

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

// Candidates returns the oldest NEW commands, optionally filtered by type.
func (d *Database) Candidates(cmdTypes []string, limit int) ([]types.Command, error) {
	query := d.db.Where("status = ?", types.StatusNew)
	if len(cmdTypes) > 0 {
		query = query.Where("type IN ?", cmdTypes)
	}

	var commands []types.Command
	err := query.Order("created_at ASC, id ASC").Limit(limit).Find(&commands).Error
	if err != nil {
		return nil, err
	}
	return commands, nil
}

func (d *Database) Get(id int64) (*types.Command, error) {
	var command types.Command
	if err := d.db.Where("id = ?", id).First(&command).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &command, nil
}

// Finalize moves a command out of NEW exactly once.
func (d *Database) Finalize(id int64, status string) (bool, error) {
	result := d.db.Model(&types.Command{}).
		Where("id = ? AND status = ?", id, types.StatusNew).
		Update("status", status)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListRecent returns the newest commands for the status surface.
func (d *Database) ListRecent(limit int) ([]types.Command, error) {
	var commands []types.Command
	err := d.db.Order("id DESC").Limit(limit).Find(&commands).Error
	if err != nil {
		return nil, err
	}
	return commands, nil
}
