package repository

import (
	"context"

	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PreferenceRepository struct {
	db *storage.Postgres
}

func NewPreferenceRepository(db *storage.Postgres) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// UserPreference satisfies notify.PreferenceSource.
func (r *PreferenceRepository) UserPreference(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	var pref models.NotificationPreference
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&pref).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &pref, nil
}

// Upserts a user's preference row
func (r *PreferenceRepository) Save(ctx context.Context, pref *models.NotificationPreference) error {
	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(pref).Error
}
