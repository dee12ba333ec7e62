package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/care-access/internal/preference"
	goredis "github.com/redis/go-redis/v9"
)

// KV stores preference values as plain redis strings under an optional prefix.
type KV struct {
	client *goredis.Client
	prefix string
}

var _ preference.KV = (*KV)(nil)

func NewKV(client *goredis.Client, prefix string) *KV {
	return &KV{client: client, prefix: prefix}
}

// Connect creates a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("preference/redis: ping: %w", err)
	}
	return client, nil
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := k.client.Get(ctx, k.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, preference.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("preference/redis: get %s: %w", key, err)
	}
	return raw, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	if err := k.client.Set(ctx, k.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("preference/redis: set %s: %w", key, err)
	}
	return nil
}
