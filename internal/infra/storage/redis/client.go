// Package redis persists the active chain in a Redis list so a node can
// restart from its last known tip.
package redis

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

type client struct {
	conn      *redis.Client
	keyPrefix string
}

func (c *client) Close() error {
	return c.conn.Close()
}

type config struct {
	keyPrefix string
}

type Option func(*config)

// WithKeyPrefix namespaces every key, letting several nodes share one database.
func WithKeyPrefix(prefix string) Option {
	return func(c *config) {
		c.keyPrefix = prefix
	}
}

func NewClient(ctx context.Context, addr, username, password string, db int, opts ...Option) (*client, error) {
	cfg := config{
		keyPrefix: "powchain",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &client{
		conn:      conn,
		keyPrefix: cfg.keyPrefix,
	}, nil
}
