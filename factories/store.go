package factories

import (
	"context"

	"travelvoice/conversation"
)

// StoreFactoryConfig selects where the conversation is kept. Without a
// provider config the conversation lives in memory.
type StoreFactoryConfig struct {
	RedisConfig *conversation.RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// BuildStore returns the store and a close function for it.
func BuildStore(ctx context.Context, config StoreFactoryConfig) (conversation.Store, func() error, error) {
	if config.RedisConfig != nil {
		store, err := conversation.NewRedisStore(ctx, *config.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return conversation.NewMemoryStore(), func() error { return nil }, nil
}
