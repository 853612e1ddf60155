package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "genaibridge:file:"

// RedisBackend stores each file as one JSON value. A non-zero ttl is applied
// to every key so Redis enforces retention on its own.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBackend(redisURL string, ttl time.Duration) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisBackend{client: client, ttl: ttl}, nil
}

func NewRedisBackendWithClient(client *redis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

func (b *RedisBackend) Save(ctx context.Context, f *File) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	ok, err := b.client.SetNX(ctx, redisKeyPrefix+f.ID, data, b.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errIDTaken
	}
	return nil
}

func (b *RedisBackend) Load(ctx context.Context, id string) (*File, error) {
	data, err := b.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (b *RedisBackend) Remove(ctx context.Context, id string) error {
	n, err := b.client.Del(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (b *RedisBackend) List(ctx context.Context) ([]File, error) {
	var out []File

	iter := b.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := b.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var f File
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		f.Data = nil
		out = append(out, f)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Client exposes the underlying connection for health checks.
func (b *RedisBackend) Client() *redis.Client {
	return b.client
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
