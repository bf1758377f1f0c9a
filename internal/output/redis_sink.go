package output

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Binz120/OpenBullet2/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisSink pushes results as JSON onto a list and announces them on a
// pub/sub channel. An empty Channel skips the announcement.
type RedisSink struct {
	client  *redis.Client
	key     string
	channel string
	filter  StatusFilter
}

type redisResult struct {
	domain.CheckResult
	Captured string `json:"captured,omitempty"`
	ProxyURL string `json:"proxy_url,omitempty"`
}

func NewRedisSink(client *redis.Client, key, channel string, statuses []string) *RedisSink {
	return &RedisSink{
		client:  client,
		key:     key,
		channel: channel,
		filter:  NewStatusFilter(statuses),
	}
}

func (s *RedisSink) Record(ctx context.Context, result domain.CheckResult) error {
	if !s.filter.Allows(result) {
		return nil
	}

	payload, err := encodeResult(result)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.key, payload)
	if s.channel != "" {
		pipe.Publish(ctx, s.channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push result to redis: %w", err)
	}
	return nil
}

// Close leaves the shared client open; support.CloseRedisClients owns it.
func (s *RedisSink) Close() error {
	return nil
}

func encodeResult(result domain.CheckResult) ([]byte, error) {
	msg := redisResult{CheckResult: result, Captured: result.CapturedData()}
	if result.Proxy != nil {
		msg.ProxyURL = result.Proxy.String()
	}
	if msg.RawStatus == "" {
		msg.RawStatus = result.Status.String()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return payload, nil
}
