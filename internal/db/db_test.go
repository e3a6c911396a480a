package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lijuuu/StakedChallengeService/internal/config"
)

func TestInitDBSQLite(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", SQLitePath: "file:" + uuid.NewString() + "?mode=memory&cache=shared"}
	gdb, err := InitDB(cfg)
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	defer sqlDB.Close()
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	assert.Equal(t, "sqlite", gdb.Dialector.Name())
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	addr := mr.Addr()
	rdb, err := NewRedisClient(&config.Config{RedisURL: addr})
	require.NoError(t, err)
	defer rdb.Close()

	mr.Close()
	_, err = NewRedisClient(&config.Config{RedisURL: addr})
	assert.Error(t, err)
}

type lineWriter struct{ lines []string }

func (w *lineWriter) Printf(format string, args ...interface{}) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	w := &lineWriter{}
	gdb, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: newGormLogger(w)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	type row struct {
		ID   string
		Name string
	}
	require.NoError(t, gdb.AutoMigrate(&row{}))

	var r row
	err = gdb.First(&r, "id = ?", "missing").Error
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	assert.Empty(t, w.lines)

	err = gdb.Raw("SELECT * FROM no_such_table").Scan(&r).Error
	assert.Error(t, err)
	assert.NotEmpty(t, w.lines, "real failures are still logged")
}
