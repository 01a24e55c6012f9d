package bus

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

func (d *Database) InsertEvent(event *types.Event) error {
	return d.db.Create(event).Error
}

func (d *Database) InsertCommand(command *types.Command) error {
	return d.db.Create(command).Error
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

// TailEvents returns the newest events matching the optional level/topic
// filters, oldest first.
func (d *Database) TailEvents(limit int, level, topic string) ([]types.Event, error) {
	query := d.db.Model(&types.Event{})
	if level != "" {
		query = query.Where("level = ?", level)
	}
	if topic != "" {
		query = query.Where("topic = ?", topic)
	}

	var events []types.Event
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, err
	}

	// Reverse into append order for display.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// EventsAfter returns events with an id greater than afterID in append order.
func (d *Database) EventsAfter(afterID int64, limit int) ([]types.Event, error) {
	var events []types.Event
	err := d.db.Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (d *Database) LastEventID() (int64, error) {
	var event types.Event
	err := d.db.Order("id DESC").First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return event.ID, nil
}

func (d *Database) CountCommandsByStatus(status string) (int64, error) {
	var count int64
	err := d.db.Model(&types.Command{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (d *Database) CountApprovalsByStatus(status string) (int64, error) {
	var count int64
	err := d.db.Model(&types.Approval{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (d *Database) CountEventsByLevel() (map[string]int64, error) {
	type row struct {
		Level string
		Total int64
	}
	var rows []row
	err := d.db.Model(&types.Event{}).
		Select("level, COUNT(1) AS total").
		Group("level").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Level] = r.Total
	}
	return counts, nil
}

// SetKV upserts a key/value pair.
func (d *Database) SetKV(key, value string) error {
	return d.db.Exec(
		"INSERT INTO kv(k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v",
		key, value,
	).Error
}

// GetKV returns the stored value and whether the key exists.
func (d *Database) GetKV(key string) (string, bool, error) {
	var entry types.KVEntry
	if err := d.db.Where("k = ?", key).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return entry.V, true, nil
}
