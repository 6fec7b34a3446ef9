package repository

import (
	"context"

	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileRepository struct {
	db *storage.Postgres
}

func NewProfileRepository(db *storage.Postgres) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Retrieves a profile by user id, nil when absent
func (r *ProfileRepository) FindByUserID(ctx context.Context, userID string) (*models.UserRateLimitProfile, error) {
	var profile models.UserRateLimitProfile
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

// Inserts a profile, keeping an existing row if another worker created it
// concurrently
func (r *ProfileRepository) Create(ctx context.Context, profile *models.UserRateLimitProfile) error {
	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(profile).Error
}

// Saves admin edits to an existing profile
func (r *ProfileRepository) Update(ctx context.Context, profile *models.UserRateLimitProfile) error {
	return r.db.DB.WithContext(ctx).Save(profile).Error
}
