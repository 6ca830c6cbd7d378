// Package sequence issues per-workspace quote consecutives.
package sequence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Prefix heads every quote consecutive.
const Prefix = "COT"

// RedisGenerator increments one Redis counter per workspace. INCR is atomic, so
// concurrent API processes never hand out the same number.
type RedisGenerator struct {
	client redis.Cmdable
}

// NewRedisGenerator wraps a Redis client.
func NewRedisGenerator(client redis.Cmdable) *RedisGenerator {
	return &RedisGenerator{client: client}
}

// Next returns the following consecutive, e.g. "COT-0042".
func (g *RedisGenerator) Next(ctx context.Context, workspaceID uuid.UUID) (string, error) {
	n, err := g.client.Incr(ctx, key(workspaceID)).Result()
	if err != nil {
		return "", fmt.Errorf("sequence: incr: %w", err)
	}
	return Format(n), nil
}

// Format renders n as a consecutive with at least four digits.
func Format(n int64) string {
	return fmt.Sprintf("%s-%04d", Prefix, n)
}

func key(workspaceID uuid.UUID) string {
	return "comercia:ws:" + workspaceID.String() + ":quote_seq"
}
