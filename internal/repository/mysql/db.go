package mysql

import (
	"errors"
	"time"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"Clubs_Hub/internal/model"
)

type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
}

// InitDB 连接 MySQL 并设置连接池
func InitDB(dsn string, pool PoolConfig) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(dsn), GormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// GormConfig 所有时间统一存 UTC
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(model.All()...)
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func normLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
