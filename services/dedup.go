package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/elite-business/case-tools-new-sub005/db"
)

// DedupService suppresses duplicate alerts inside a configurable window.
// Redis SET NX is the fast path, the open-case fingerprint lookup in
// CaseService is the fallback when Redis is unavailable.
type DedupService struct {
	Redis    *redis.Client
	Settings *SettingsService

	defaultWindow time.Duration
}

func NewDedupService(redisClient *redis.Client, settings *SettingsService, defaultWindowSeconds int) *DedupService {
	if defaultWindowSeconds <= 0 {
		defaultWindowSeconds = 300
	}
	return &DedupService{
		Redis:         redisClient,
		Settings:      settings,
		defaultWindow: time.Duration(defaultWindowSeconds) * time.Second,
	}
}

// Window returns the active dedup window, honoring the admin setting override
func (s *DedupService) Window() time.Duration {
	if s.Settings != nil {
		if secs := s.Settings.GetInt(db.SettingDedupWindowSeconds, 0); secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return s.defaultWindow
}

// ClaimFingerprint attempts to claim a fingerprint for the dedup window.
// Returns true when this alert is the first one in the window. A Redis
// failure claims nothing and reports the error so the caller can fall
// back to the database lookup.
func (s *DedupService) ClaimFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	if s.Redis == nil {
		return false, fmt.Errorf("redis not configured")
	}

	key := fmt.Sprintf("dedup:%s", fingerprint)
	ok, err := s.Redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), s.Window()).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim failed: %w", err)
	}
	return ok, nil
}

// ReleaseFingerprint drops the dedup claim, letting the next alert for the
// fingerprint open a fresh case. Called when the matched case resolves.
func (s *DedupService) ReleaseFingerprint(ctx context.Context, fingerprint string) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(ctx, fmt.Sprintf("dedup:%s", fingerprint)).Err(); err != nil {
		log.Printf("Failed to release dedup claim for %s: %v", fingerprint, err)
	}
}
