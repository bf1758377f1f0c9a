package support

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 5 * time.Second

var (
	redisMu      sync.Mutex
	redisClients = make(map[string]*redis.Client)
)

// GetRedisClient returns a shared client for redisURL, connecting on first use.
func GetRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		redisURL = GetEnv("OB_REDIS_URL", "redis://localhost:6379")
	}

	redisMu.Lock()
	defer redisMu.Unlock()

	if client, ok := redisClients[redisURL]; ok {
		return client, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL %q: %w", redisURL, err)
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	redisClients[redisURL] = client
	return client, nil
}

func CloseRedisClients() error {
	redisMu.Lock()
	defer redisMu.Unlock()

	var firstErr error
	for key, client := range redisClients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(redisClients, key)
	}
	return firstErr
}
