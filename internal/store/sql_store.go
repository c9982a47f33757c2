package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// CollectionRecord 集合在数据库中的一行
type CollectionRecord struct {
	Name      string    `gorm:"primaryKey;size:128" json:"name"`
	Data      string    `gorm:"type:text" json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 表名
func (CollectionRecord) TableName() string {
	return "collections"
}

// SQLStore 基于 gorm 的集合存储
type SQLStore struct {
	db    *gorm.DB
	locks collectionLocks
}

// OpenSQL 按驱动连接数据库（postgres 或 sqlite），可选启用 gorm 追踪插件
func OpenSQL(driver, dsn string, tracingEnabled bool) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if tracingEnabled {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("gorm tracing: %w", err)
		}
	}
	return NewSQLStore(db)
}

// NewSQLStore 使用已有连接，自动迁移 collections 表
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&CollectionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate collections: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Configure 连接池设置，零值保持驱动默认
func (s *SQLStore) Configure(maxOpen, maxIdle int, maxLifetime time.Duration) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(maxLifetime)
	}
	return nil
}

// Load 读取集合
func (s *SQLStore) Load(ctx context.Context, name string) ([]byte, error) {
	var rec CollectionRecord
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(rec.Data), nil
}

// Save upsert 集合内容
func (s *SQLStore) Save(ctx context.Context, name string, data []byte) error {
	rec := CollectionRecord{Name: name, Data: string(data), UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rec).Error
}

// Lock 进程内串行化（单进程部署）
func (s *SQLStore) Lock(name string) func() {
	return s.locks.lock(name)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
