package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

const (
	availabilityKeyPrefix  = "availability:"
	generationKeyPrefix    = "availability-generation:"
	defaultAvailabilityTTL = 30 * time.Second
)

// getAvailabilityScript reads the generation and the payload together.
var getAvailabilityScript = redis.NewScript(`
local generation = redis.call('GET', KEYS[2]) or '0'
local payload = redis.call('HGET', KEYS[1], 'payload') or ''
return {generation, payload}
`)

// setAvailabilityScript stores the payload only if no invalidation bumped
// the generation since it was read.
var setAvailabilityScript = redis.NewScript(`
local generation = redis.call('GET', KEYS[2]) or '0'
if generation ~= ARGV[1] then
	return 0
end

redis.call('HSET', KEYS[1], 'payload', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisAdapter caches availability read-models shared by every replica.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = defaultAvailabilityTTL
	}
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) GetAvailability(ctx context.Context, partID string) (*domain.InventoryAvailability, int64, error) {
	res, err := getAvailabilityScript.Run(ctx, r.client, cacheKeys(partID)).StringSlice()
	if err != nil {
		return nil, 0, fmt.Errorf("get availability: %w", err)
	}
	if len(res) != 2 {
		return nil, 0, fmt.Errorf("get availability: unexpected reply %v", res)
	}

	generation, err := strconv.ParseInt(res[0], 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("parse generation: %w", err)
	}
	if res[1] == "" {
		return nil, generation, nil
	}

	var av domain.InventoryAvailability
	if err := json.Unmarshal([]byte(res[1]), &av); err != nil {
		return nil, 0, fmt.Errorf("decode availability: %w", err)
	}
	return &av, generation, nil
}

func (r *RedisAdapter) SetAvailability(ctx context.Context, av domain.InventoryAvailability, generation int64) error {
	payload, err := json.Marshal(av)
	if err != nil {
		return fmt.Errorf("encode availability: %w", err)
	}
	err = setAvailabilityScript.Run(ctx, r.client, cacheKeys(av.PartID), generation, payload, r.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}
	return nil
}

func (r *RedisAdapter) Invalidate(ctx context.Context, partID string) error {
	keys := cacheKeys(partID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, keys[1])
		pipe.Del(ctx, keys[0])
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate availability: %w", err)
	}
	return nil
}

func cacheKeys(partID string) []string {
	return []string{availabilityKeyPrefix + partID, generationKeyPrefix + partID}
}
