package statestore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// redisKeyPrefix namespaces checkpoint keys in a shared Redis.
const redisKeyPrefix = "sextant:checkpoint:"

// RedisStore keeps checkpoints in Redis, letting a frequently restarted
// fleet warm-start from shared state.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	// Addr is the Redis address, e.g. "localhost:6379".
	Addr string `yaml:"addr"`

	// Password is the Redis password; empty when auth is disabled.
	Password string `yaml:"password"`

	// DB is the Redis database number.
	// Default: 0
	DB int `yaml:"db"`

	// TTL expires stale checkpoints; zero keeps them forever.
	// Default: 0
	TTL time.Duration `yaml:"ttl"`
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &PersistenceError{Backend: "redis", Op: "connect", Err: err}
	}

	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

// Load retrieves a checkpoint; a missing key is (nil, nil).
func (s *RedisStore) Load(ctx context.Context, policyID string) (*PolicyCheckpoint, error) {
	if policyID == "" {
		return nil, &PersistenceError{Backend: "redis", Op: "load", Err: errNilCheckpoint}
	}

	data, err := s.client.Get(ctx, redisKeyPrefix+policyID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Backend: "redis", Op: "load", PolicyID: policyID, Err: err}
	}

	var cp PolicyCheckpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, &PersistenceError{Backend: "redis", Op: "load", PolicyID: policyID, Err: err}
	}
	return &cp, nil
}

// Save writes a checkpoint, replacing any previous value for the key.
func (s *RedisStore) Save(ctx context.Context, cp *PolicyCheckpoint) error {
	if cp == nil || cp.PolicyID == "" {
		return &PersistenceError{Backend: "redis", Op: "save", Err: errNilCheckpoint}
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return &PersistenceError{Backend: "redis", Op: "save", PolicyID: cp.PolicyID, Err: err}
	}
	if err := s.client.Set(ctx, redisKeyPrefix+cp.PolicyID, data, s.ttl).Err(); err != nil {
		return &PersistenceError{Backend: "redis", Op: "save", PolicyID: cp.PolicyID, Err: err}
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
