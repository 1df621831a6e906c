package sqlite

import (
	"path/filepath"
	"testing"

	"golang-stockbot/config"
	"golang-stockbot/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDB_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "bot.db")

	db, err := NewDB(config.Database{Path: path, LogLevel: "Silent"}, logger.NewNop())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.NoError(t, sqlDB.Ping())
	assert.FileExists(t, path)
}
