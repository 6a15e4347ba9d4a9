package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "kycgate/pkg/domain"
	"kycgate/pkg/platform/sentinel"
)

const guardKeyPrefix = "kycgate:subject:"

// RedisGuard shares duplicate-session claims across replicas with SET NX.
type RedisGuard struct {
	client redis.UniversalClient
}

func NewRedisGuard(client redis.UniversalClient) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Claim(ctx context.Context, subject id.SubjectRef, window time.Duration) error {
	ok, err := g.client.SetNX(ctx, guardKeyPrefix+string(subject), time.Now().UTC().Format(time.RFC3339), window).Result()
	if err != nil {
		return fmt.Errorf("claim subject: %w: %w", sentinel.ErrUnavailable, err)
	}
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (g *RedisGuard) Release(ctx context.Context, subject id.SubjectRef) error {
	if err := g.client.Del(ctx, guardKeyPrefix+string(subject)).Err(); err != nil {
		return fmt.Errorf("release subject: %w", err)
	}
	return nil
}
