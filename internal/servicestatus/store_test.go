package servicestatus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"opsdash/internal/command"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupStatusTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:status_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	// 共享缓存的内存库不支持并发写，串行化连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Record{}))
	return db
}

func TestUpsertKeepsOneRowPerService(t *testing.T) {
	db := setupStatusTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	states := []command.ServiceState{command.StateActive, command.StateInactive, command.StateFailed}
	for i, state := range states {
		require.NoError(t, store.Upsert(ctx, "squid", state, base.Add(time.Duration(i)*time.Minute)))
	}

	var count int64
	require.NoError(t, db.Model(&Record{}).Where("service_name = ?", "squid").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	rec, err := store.Get(ctx, "squid")
	require.NoError(t, err)
	assert.Equal(t, command.StateFailed, rec.Status)
	assert.True(t, rec.LastChecked.Equal(base.Add(2*time.Minute)))
}

func TestGetUnknownService(t *testing.T) {
	store := NewStore(setupStatusTestDB(t))

	rec, err := store.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, command.StateUnknown, rec.Status)
	assert.Zero(t, rec.ID)
}

func TestSetAutoStartPreservesStatus(t *testing.T) {
	store := NewStore(setupStatusTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Upsert(ctx, "openvpn", command.StateActive, now))
	require.NoError(t, store.SetAutoStart(ctx, "openvpn", true, now))

	rec, err := store.Get(ctx, "openvpn")
	require.NoError(t, err)
	assert.Equal(t, command.StateActive, rec.Status)
	assert.True(t, rec.AutoStart)

	// 状态刷新不会覆盖 auto_start
	require.NoError(t, store.Upsert(ctx, "openvpn", command.StateInactive, now.Add(time.Second)))
	rec, err = store.Get(ctx, "openvpn")
	require.NoError(t, err)
	assert.True(t, rec.AutoStart)

	require.NoError(t, store.SetAutoStart(ctx, "newsvc", false, now))
	rec, err = store.Get(ctx, "newsvc")
	require.NoError(t, err)
	assert.Equal(t, command.StateUnknown, rec.Status)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "newsvc", all[0].ServiceName)
}
