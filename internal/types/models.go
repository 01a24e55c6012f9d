package types

import "time"

// Command statuses. Transitions are one-directional: NEW moves to exactly
// one of DONE or ERR and never back.
const (
	StatusNew  = "NEW"
	StatusDone = "DONE"
	StatusErr  = "ERR"
)

// Approval statuses. PENDING is the only non-terminal state.
const (
	ApprovalPending = "PENDING"
	ApprovalOK      = "OK"
	ApprovalReject  = "REJECT"
	ApprovalExpired = "EXPIRED"
)

// Event severity levels.
const (
	LevelDebug    = "DEBUG"
	LevelInfo     = "INFO"
	LevelWarn     = "WARN"
	LevelError    = "ERROR"
	LevelCritical = "CRITICAL"
)

// SchemaVersion is written to the meta table on first initialisation.
const SchemaVersion = 1

// Meta holds the single schema-version row.
type Meta struct {
	Version int64 `gorm:"column:version" json:"version"`
}

func (Meta) TableName() string { return "meta" }

// Command is a durable unit of requested work shared by every process.
type Command struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Type      string `gorm:"column:type" json:"type"`
	Payload   string `gorm:"column:payload" json:"payload"`
	Status    string `gorm:"column:status;default:NEW;index:idx_commands_status_created,priority:1" json:"status"`
	CorrID    string `gorm:"column:corr_id" json:"corr_id"`
	CreatedAt int64  `gorm:"column:created_at;index:idx_commands_status_created,priority:2" json:"created_at"`
}

func (Command) TableName() string { return "commands" }

// Event is an immutable audit record. The core never mutates or deletes one.
type Event struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Topic     string `gorm:"column:topic;index:idx_events_topic_created,priority:1" json:"topic"`
	Level     string `gorm:"column:level;default:INFO;index:idx_events_level_created,priority:1" json:"level"`
	Data      string `gorm:"column:data" json:"data"`
	CorrID    string `gorm:"column:corr_id" json:"corr_id"`
	CreatedAt int64  `gorm:"column:created_at;index:idx_events_topic_created,priority:2;index:idx_events_level_created,priority:2" json:"created_at"`
}

func (Event) TableName() string { return "events" }

// Approval gates exactly one sensitive command behind a confirmation token.
// The command association gives the table its foreign key; it is never
// preloaded.
type Approval struct {
	ID        int64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CommandID int64    `gorm:"column:command_id" json:"command_id"`
	Command   *Command `gorm:"foreignKey:CommandID;references:ID" json:"-"`
	Token     string   `gorm:"column:token" json:"token"`
	Status    string   `gorm:"column:status;default:PENDING;index:idx_approvals_status_expires,priority:1" json:"status"`
	ExpiresAt int64    `gorm:"column:expires_at;index:idx_approvals_status_expires,priority:2" json:"expires_at"`
	CreatedAt int64    `gorm:"column:created_at" json:"created_at"`
}

func (Approval) TableName() string { return "approvals" }

// Lock is a named TTL lease. One row per contested resource; the row is live
// while now < acquired_at + ttl_sec*1000.
type Lock struct {
	Name       string `gorm:"column:name;primaryKey" json:"name"`
	Owner      string `gorm:"column:owner" json:"owner"`
	AcquiredAt int64  `gorm:"column:acquired_at" json:"acquired_at"`
	TTLSec     int64  `gorm:"column:ttl_sec" json:"ttl_sec"`
}

func (Lock) TableName() string { return "locks" }

// ExpiresAtMS returns the epoch-ms instant at which the lease lapses.
func (l Lock) ExpiresAtMS() int64 {
	return l.AcquiredAt + l.TTLSec*1000
}

// KVEntry stores scalar process-wide state such as the trading mode and the
// pause flag. Last writer wins.
type KVEntry struct {
	K string `gorm:"column:k;primaryKey" json:"k"`
	V string `gorm:"column:v" json:"v"`
}

func (KVEntry) TableName() string { return "kv" }

// EpochMS converts a time to epoch milliseconds, the timestamp unit used
// across the store.
func EpochMS(t time.Time) int64 {
	return t.UnixMilli()
}
