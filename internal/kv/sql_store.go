package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Entry is one stored key-value pair.
type Entry struct {
	Key       string    `gorm:"primaryKey;size:512"`
	Value     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// TableName specifies the table name for GORM
func (Entry) TableName() string {
	return "kv_entries"
}

// SQLStore is a Store backed by the application's SQLite database.
type SQLStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewSQLStore(db *gorm.DB, logger *slog.Logger) *SQLStore {
	return &SQLStore{db: db, logger: logger}
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("kv: get %s: %w", key, err)
	}
	return entry.Value, nil
}

// Put inserts or replaces the value stored under key.
func (s *SQLStore) Put(ctx context.Context, key, value string) error {
	now := time.Now().UTC()
	err := sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Exec(`
            INSERT INTO kv_entries (key, value, created_at, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
        `, key, value, now, now).Error
	})
	if err != nil {
		return fmt.Errorf("kv: put %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	err := sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Where("key = ?", key).Delete(&Entry{}).Error
	})
	if err != nil {
		return fmt.Errorf("kv: delete %s: %w", key, err)
	}
	return nil
}

// List matches prefixes with substr rather than LIKE, which SQLite evaluates
// case-insensitively.
func (s *SQLStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := s.db.WithContext(ctx).Model(&Entry{}).
		Where("substr(key, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix).
		Order("key ASC").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("kv: list %s: %w", prefix, err)
	}
	return keys, nil
}
