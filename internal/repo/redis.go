package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lijuuu/StakedChallengeService/internal/model"
)

// RankingCache keeps the serialized weekly ranking history of a challenge in Redis.
// Rankings are append-only, so the only invalidation point is a new round.
type RankingCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRankingCache(client redis.UniversalClient, ttl time.Duration) *RankingCache {
	return &RankingCache{client: client, ttl: ttl}
}

func rankingsKey(challengeID string) string {
	return fmt.Sprintf("challenge:%s:rankings", challengeID)
}

// Get returns (nil, false, nil) on a miss.
func (r *RankingCache) Get(ctx context.Context, challengeID string) ([]model.WeeklyRanking, bool, error) {
	data, err := r.client.Get(ctx, rankingsKey(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cached rankings: %w", err)
	}

	var rankings []model.WeeklyRanking
	if err := json.Unmarshal(data, &rankings); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached rankings: %w", err)
	}
	return rankings, true, nil
}

func (r *RankingCache) Set(ctx context.Context, challengeID string, rankings []model.WeeklyRanking) error {
	data, err := json.Marshal(rankings)
	if err != nil {
		return fmt.Errorf("failed to marshal rankings: %w", err)
	}
	return r.client.Set(ctx, rankingsKey(challengeID), data, r.ttl).Err()
}

func (r *RankingCache) Invalidate(ctx context.Context, challengeID string) error {
	return r.client.Del(ctx, rankingsKey(challengeID)).Err()
}
