// Package testutil 为仓储和服务层测试提供内存 sqlite 与 miniredis
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/repository/mysql"
)

var dbSeq atomic.Int64

// OpenDB 每个测试独立的内存库，已完成迁移
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:clubs_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), mysql.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, mysql.AutoMigrate(db))
	return db
}

// OpenRedis 启动 miniredis 并返回客户端
func OpenRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

// SeedUser 插入一个用户，role 为空时为学生
func SeedUser(t testing.TB, db *gorm.DB, username string, role model.GlobalRole) *model.User {
	t.Helper()
	if role == "" {
		role = model.RoleStudent
	}
	u := &model.User{
		Username:   username,
		Password:   "x",
		Email:      username + "@kmit.in",
		Name:       username,
		GlobalRole: role,
		Status:     model.UserActive,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// SeedClub 插入一个活跃社团
func SeedClub(t testing.TB, db *gorm.DB, name string, coordinatorID uint64) *model.Club {
	t.Helper()
	c := &model.Club{
		Name:          name,
		Category:      model.CategoryTechnical,
		CoordinatorID: coordinatorID,
		Status:        model.ClubActive,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}
