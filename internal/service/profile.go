package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/repository"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
	"go.uber.org/zap"
)

const profileCacheTTL = time.Minute

// ProfileService owns user rate-limit profiles: lazily created with the
// default tier on first sight, mutated only by admin action, cached in the
// counter store with a short TTL since reads vastly outnumber writes.
type ProfileService struct {
	repo   *repository.ProfileRepository
	store  storage.CounterStore
	cfg    *config.Config
	logger *zap.Logger
}

func NewProfileService(repo *repository.ProfileRepository, store storage.CounterStore, cfg *config.Config, logger *zap.Logger) *ProfileService {
	return &ProfileService{
		repo:   repo,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

func cacheKey(userID string) string {
	return "profile:cache:" + userID
}

// Get returns the profile for userID, creating one with the default tier on
// first request. Returns nil for anonymous callers.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.UserRateLimitProfile, error) {
	if userID == "" {
		return nil, nil
	}

	if cached, err := s.store.Get(ctx, cacheKey(userID)); err == nil {
		var profile models.UserRateLimitProfile
		if err := json.Unmarshal([]byte(cached), &profile); err == nil {
			return &profile, nil
		}
	}

	profile, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if profile == nil {
		profile = &models.UserRateLimitProfile{
			UserID: userID,
			Tier:   s.cfg.RateLimit.DefaultTier,
		}
		if err := s.repo.Create(ctx, profile); err != nil {
			return nil, err
		}
	}

	s.cache(ctx, profile)
	return profile, nil
}

// Update saves admin edits and drops the stale cache entry.
func (s *ProfileService) Update(ctx context.Context, profile *models.UserRateLimitProfile) error {
	if profile.UserID == "" {
		return fmt.Errorf("profile requires a user id")
	}
	if _, ok := s.cfg.TierByName(profile.Tier); !ok {
		return fmt.Errorf("unknown tier %q", profile.Tier)
	}

	if err := s.repo.Update(ctx, profile); err != nil {
		return err
	}

	if err := s.store.Del(ctx, cacheKey(profile.UserID)); err != nil {
		s.logger.Warn("failed to invalidate profile cache",
			zap.String("user_id", profile.UserID), zap.Error(err))
	}
	return nil
}

func (s *ProfileService) cache(ctx context.Context, profile *models.UserRateLimitProfile) {
	raw, err := json.Marshal(profile)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, cacheKey(profile.UserID), string(raw), profileCacheTTL); err != nil {
		s.logger.Warn("failed to cache profile", zap.String("user_id", profile.UserID), zap.Error(err))
	}
}
