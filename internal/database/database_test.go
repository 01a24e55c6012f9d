package database

import (
	"path/filepath"
	"testing"

	"github.com/centrixhq/centrix/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaVersionSeededOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.db")

	db, err := NewDatabase(path)
	require.NoError(t, err)

	// Reopening the same file must not duplicate the meta row.
	_, err = NewDatabase(path)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&types.Meta{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var version int64
	require.NoError(t, db.Model(&types.Meta{}).Select("version").Scan(&version).Error)
	assert.Equal(t, int64(types.SchemaVersion), version)
}

func TestApprovalReferencesCommand(t *testing.T) {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "ctl.db"))
	require.NoError(t, err)

	var ddl string
	require.NoError(t, db.Raw(
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'approvals'",
	).Scan(&ddl).Error)
	assert.Contains(t, ddl, "REFERENCES", "approvals.command_id must carry its foreign key")

	// The pragma is on, so a dangling command_id must be rejected.
	err = db.Create(&types.Approval{
		CommandID: 424242,
		Token:     "AAAAAA",
		Status:    types.ApprovalPending,
	}).Error
	assert.Error(t, err)

	command := &types.Command{Type: types.CmdOrderNew, Payload: "{}", Status: types.StatusNew}
	require.NoError(t, db.Create(command).Error)
	require.NoError(t, db.Create(&types.Approval{
		CommandID: command.ID,
		Token:     "BBBBBB",
		Status:    types.ApprovalPending,
	}).Error)
}
