// Package cache abstracts the key/value store and pub/sub bus that live
// matches use for log backlogs, seat locks, and line fan-out.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/gen1sim/cache/local"
	cacheredis "github.com/kasuganosora/gen1sim/cache/redis"
)

// Cache defines the KV / Hash / Set / ZSet / List operations.
type Cache interface {
	// KV
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Hash
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)

	// Set
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// ZSet
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// List
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
}

// IsNotFound reports whether err is a missing-key error from either backend.
func IsNotFound(err error) bool {
	return errors.Is(err, local.ErrNotFound) || errors.Is(err, cacheredis.ErrNotFound)
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// CacheConfig holds configuration for both Redis and LocalCache.
type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

// NewCache returns a Cache backed by Redis if RedisAddr is set,
// otherwise returns an in-process LocalCache.
func NewCache(cfg CacheConfig) (Cache, error) {
	if cfg.RedisAddr != "" {
		return cacheredis.NewCache(cacheredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return local.NewCache(local.Config{
		GCInterval: cfg.LocalGCInterval,
	})
}

// NewPubSub returns a PubSub backed by Redis if RedisAddr is set,
// otherwise returns an in-process LocalPubSub wrapped in an adapter.
func NewPubSub(cfg CacheConfig) (PubSub, error) {
	bufSize := cfg.LocalPubSubBuf
	if bufSize <= 0 {
		bufSize = 256
	}
	if cfg.RedisAddr != "" {
		rps, err := cacheredis.NewPubSub(cacheredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return &pubSubAdapter[cacheredis.RedisMessage]{
			publish:   rps.Publish,
			subscribe: rps.Subscribe,
			convert:   func(m *cacheredis.RedisMessage) *Message { return &Message{m.Channel, m.Payload} },
		}, nil
	}
	lps := local.NewPubSub(bufSize)
	return &pubSubAdapter[local.LocalMessage]{
		publish:   lps.Publish,
		subscribe: lps.Subscribe,
		convert:   func(m *local.LocalMessage) *Message { return &Message{m.Channel, m.Payload} },
	}, nil
}

// pubSubAdapter bridges a backend's message type to cache.Message.
type pubSubAdapter[M any] struct {
	publish   func(ctx context.Context, channel, message string) error
	subscribe func(ctx context.Context, channels ...string) (<-chan *M, func(), error)
	convert   func(*M) *Message
}

func (a *pubSubAdapter[M]) Publish(ctx context.Context, channel, message string) error {
	return a.publish(ctx, channel, message)
}

func (a *pubSubAdapter[M]) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, cancel, err := a.subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, cap(in))
	go func() {
		defer close(out)
		for msg := range in {
			out <- a.convert(msg)
		}
	}()
	return out, cancel, nil
}
