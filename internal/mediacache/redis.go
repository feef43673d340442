package mediacache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"castgate/internal/domain"
	"castgate/internal/domain/ports"
)

const redisKeyPrefix = "castgate:msg:"

// Redis stores media-message metadata in Redis with JSON serialization.
// Lookups and writes are best-effort; Redis failures degrade to cache misses
// rather than failing the stream request.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, logger: logger}
}

func (r *Redis) Get(ctx context.Context, id int64) (domain.MediaMessage, bool) {
	data, err := r.client.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("media cache read failed", slog.Int64("messageId", id), slog.String("error", err.Error()))
		}
		return domain.MediaMessage{}, false
	}
	var msg domain.MediaMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Warn("media cache entry corrupt", slog.Int64("messageId", id), slog.String("error", err.Error()))
		return domain.MediaMessage{}, false
	}
	return msg, true
}

func (r *Redis) Put(ctx context.Context, id int64, msg domain.MediaMessage, ttl time.Duration) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, redisKey(id), data, ttl).Err(); err != nil {
		r.logger.Warn("media cache write failed", slog.Int64("messageId", id), slog.String("error", err.Error()))
	}
}

func redisKey(id int64) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, id)
}

var _ ports.MessageCache = (*Redis)(nil)
