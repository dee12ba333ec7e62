package postgres

import (
	"context"
	"errors"
	"fmt"

	accessDatamodel "github.com/frahmantamala/care-access/internal/core/datamodel/access"
	"github.com/frahmantamala/care-access/internal/preference"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type KVRepository struct {
	db *gorm.DB
}

func NewKVRepository(db *gorm.DB) preference.KV {
	return &KVRepository{db: db}
}

func (r *KVRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var row accessDatamodel.UserKV
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, preference.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user_kv %s: %w", key, err)
	}
	return []byte(row.Value), nil
}

// Set upserts the value; the latest write wins.
func (r *KVRepository) Set(ctx context.Context, key string, value []byte) error {
	row := accessDatamodel.UserKV{Key: key, Value: string(value)}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set user_kv %s: %w", key, err)
	}
	return nil
}
