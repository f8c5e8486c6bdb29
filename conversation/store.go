package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"travelvoice/core"
)

// Store mirrors a conversation log so it survives a client restart.
type Store interface {
	Append(ctx context.Context, msg Message) error
	Load(ctx context.Context) ([]Message, error)
	// Reset drops everything and starts over with the greeting.
	Reset(ctx context.Context, greeting Message) error
}

// MemoryStore keeps nothing beyond the process lifetime.
type MemoryStore struct {
	mu       sync.Mutex
	messages []Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *MemoryStore) Load(_ context.Context) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

func (s *MemoryStore) Reset(_ context.Context, greeting Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = []Message{greeting}
	return nil
}

// RedisConfig configures RedisStore.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db"`
	// Key is the list holding the conversation, one JSON message per element.
	Key string `json:"key" yaml:"key"`
	// TTL expires an idle conversation. Zero keeps it forever.
	TTL core.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr: "localhost:6379",
		Key:  "travelvoice:conversation:default",
	}
}

// RedisStore keeps the conversation in a Redis list.
type RedisStore struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	if config.Key == "" {
		config.Key = DefaultRedisConfig().Key
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("conversation store: connect to redis %q: %w", config.Addr, err)
	}
	return &RedisStore{client: client, config: config}, nil
}

func (s *RedisStore) Append(ctx context.Context, msg Message) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("conversation store: marshal message: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.config.Key, data)
	if s.config.TTL > 0 {
		pipe.Expire(ctx, s.config.Key, s.config.TTL.Std())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conversation store: append: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) ([]Message, error) {
	raw, err := s.client.LRange(ctx, s.config.Key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation store: load: %w", err)
	}
	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := sonic.UnmarshalString(item, &msg); err != nil {
			return nil, fmt.Errorf("conversation store: decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *RedisStore) Reset(ctx context.Context, greeting Message) error {
	data, err := sonic.Marshal(greeting)
	if err != nil {
		return fmt.Errorf("conversation store: marshal greeting: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.config.Key)
	pipe.RPush(ctx, s.config.Key, data)
	if s.config.TTL > 0 {
		pipe.Expire(ctx, s.config.Key, s.config.TTL.Std())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conversation store: reset: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
