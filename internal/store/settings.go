package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-bot/internal/models"
)

const prefixKey = "prefix"

// SettingsStore keeps runtime settings that must survive restarts.
type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	var setting models.Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get setting %s", key)
	}
	return setting.Value, true, nil
}

func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	row := models.Setting{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return errors.Wrapf(err, "set setting %s", key)
	}
	return nil
}

func (s *SettingsStore) LoadPrefix(ctx context.Context) (string, bool, error) {
	return s.Get(ctx, prefixKey)
}

func (s *SettingsStore) SavePrefix(ctx context.Context, prefix string) error {
	return s.Set(ctx, prefixKey, prefix)
}
