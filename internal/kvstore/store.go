// Package kvstore is the durable key/value storage shared by the page and
// background contexts. Values are JSON documents; Update is an atomic
// read-modify-write so list-valued keys never lose concurrent writes.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sharedredis "github.com/cuongbtq/applytrack/shared/redis"
)

// UpdateFunc receives the current raw value (nil when the key is absent) and
// returns the replacement. Returning nil deletes the key; returning an error
// aborts the update and the error is passed through unchanged.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is implemented by every backend
type Store interface {
	// Get decodes the value at key into dest and reports whether it existed
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}

// UpdateJSON runs fn against the decoded value at key inside Store.Update.
// A missing key decodes to the zero T.
func UpdateJSON[T any](ctx context.Context, s Store, key string, fn func(v *T) error) error {
	return s.Update(ctx, key, func(current []byte) ([]byte, error) {
		var v T
		if len(current) > 0 {
			if err := json.Unmarshal(current, &v); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", key, err)
			}
		}

		if err := fn(&v); err != nil {
			return nil, err
		}

		next, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		return next, nil
	})
}

// Config selects and configures a backend
type Config struct {
	Driver           string // redis or sqlite
	RedisURL         string
	RedisDialTimeout time.Duration
	RedisPoolSize    int
	KeyPrefix        string
	SQLitePath       string
}

// Open returns the backend named by cfg.Driver
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "redis":
		rdb, err := sharedredis.NewClient(ctx, &sharedredis.Config{
			URL:         cfg.RedisURL,
			DialTimeout: cfg.RedisDialTimeout,
			PoolSize:    cfg.RedisPoolSize,
		}, logger)
		if err != nil {
			return nil, err
		}
		return NewRedis(rdb, cfg.KeyPrefix), nil

	case "sqlite", "":
		return OpenSQLite(cfg.SQLitePath)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func decode(raw []byte, dest any) error {
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}
	return nil
}
