package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one row of the durable key-value table.
type Entry struct {
	Key       string    `gorm:"column:entry_key;primaryKey"`
	Value     string    `gorm:"column:entry_value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Entry) TableName() string { return "kv_entries" }

// DurableStore persists records in the SQL database so they survive client
// sessions.
type DurableStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDurableStore(db *gorm.DB) (*DurableStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &DurableStore{db: db, now: time.Now}, nil
}

func (d *DurableStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry Entry
	err := d.db.WithContext(ctx).Where("entry_key = ?", key).Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("load kv entry %s: %w", key, err)
	}
	return entry.Value, true, nil
}

func (d *DurableStore) Set(ctx context.Context, key, value string) error {
	entry := Entry{Key: key, Value: value, UpdatedAt: d.now().UTC()}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("upsert kv entry %s: %w", key, err)
	}
	return nil
}

func (d *DurableStore) Remove(ctx context.Context, key string) error {
	if err := d.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("delete kv entry %s: %w", key, err)
	}
	return nil
}
