package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// CacheEntry row of the cache_entries table
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:64"`
	Value     string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

func (CacheEntry) TableName() string {
	return "cache_entries"
}

// GormStore durable cache on sqlite or mysql
type GormStore struct {
	db *gorm.DB
}

// NewGormStore uses an already opened database and migrates the table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&CacheEntry{}); err != nil {
		return nil, fmt.Errorf("migrate cache_entries: %w", err)
	}
	return &GormStore{db: db}, nil
}

// OpenGormStore connects to the database named by cfg.
func OpenGormStore(cfg *config.CacheConfig, log *logrus.Logger) (*GormStore, error) {
	var dialector gorm.Dialector

	if cfg.Backend == "mysql" {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DBName)
		dialector = mysql.Open(dsn)
	} else {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.SQLitePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	log.WithField("dialect", db.Dialector.Name()).Info("Running cache migrations...")
	return NewGormStore(db)
}

func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry CacheEntry
	err := s.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	return entry.Value, true, nil
}

func (s *GormStore) Put(ctx context.Context, key, value string) error {
	entry := CacheEntry{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "created_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
