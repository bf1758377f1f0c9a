package proxies

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

// Source supplies proxy records to a Registry.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]domain.Proxy, error)
}

// FileSource reads one proxy per line from a text file.
type FileSource struct {
	Path        string
	DefaultType domain.ProxyType
}

func (s FileSource) Name() string {
	return "file:" + s.Path
}

func (s FileSource) Load(_ context.Context) ([]domain.Proxy, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read proxy file: %w", err)
	}
	return ParseTextToProxies(string(data), s.DefaultType), nil
}

type ListSource struct {
	Proxies []domain.Proxy
}

func (s ListSource) Name() string {
	return "list"
}

func (s ListSource) Load(_ context.Context) ([]domain.Proxy, error) {
	return append([]domain.Proxy(nil), s.Proxies...), nil
}

// RedisSource reads proxy lines from a redis set.
type RedisSource struct {
	Client      *redis.Client
	Key         string
	DefaultType domain.ProxyType
}

func (s RedisSource) Name() string {
	return "redis:" + s.Key
}

func (s RedisSource) Load(ctx context.Context) ([]domain.Proxy, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("redis proxy source %q has no client", s.Key)
	}

	members, err := s.Client.SMembers(ctx, s.Key).Result()
	if err != nil {
		return nil, fmt.Errorf("load proxies from redis: %w", err)
	}

	return ParseTextToProxies(strings.Join(members, "\n"), s.DefaultType), nil
}
