package locks

import (
	"github.com/centrixhq/centrix/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// UpsertIfExpired inserts the lease, or overwrites an existing row only when
// its lease has already elapsed. The conditional upsert runs as a single
// statement so two racing acquirers can never both win.
func (d *Database) UpsertIfExpired(lock *types.Lock, nowMS int64) (bool, error) {
	result := d.db.Exec(`
		INSERT INTO locks(name, owner, acquired_at, ttl_sec)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at,
			ttl_sec = excluded.ttl_sec
		WHERE locks.acquired_at + locks.ttl_sec * 1000 <= ?`,
		lock.Name, lock.Owner, lock.AcquiredAt, lock.TTLSec, nowMS,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteOwned removes the row only when the owner matches.
func (d *Database) DeleteOwned(name, owner string) (bool, error) {
	result := d.db.Where("name = ? AND owner = ?", name, owner).Delete(&types.Lock{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Expired returns every row whose lease elapsed at or before nowMS.
func (d *Database) Expired(nowMS int64) ([]types.Lock, error) {
	var locks []types.Lock
	err := d.db.Where("acquired_at + ttl_sec * 1000 <= ?", nowMS).Find(&locks).Error
	if err != nil {
		return nil, err
	}
	return locks, nil
}

// DeleteExpired removes a row only while it is still expired, so a lease
// re-acquired between scan and delete survives.
func (d *Database) DeleteExpired(name string, nowMS int64) (bool, error) {
	result := d.db.
		Where("name = ? AND acquired_at + ttl_sec * 1000 <= ?", name, nowMS).
		Delete(&types.Lock{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// List returns all lock rows ordered by name.
func (d *Database) List() ([]types.Lock, error) {
	var locks []types.Lock
	err := d.db.Order("name ASC").Find(&locks).Error
	if err != nil {
		return nil, err
	}
	return locks, nil
}
