package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/TheInfexted/livechat-cs-sub000/internal/metrics"
	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
)

// partitionsKey is the registry of every partition that has ever received a
// message. A partition's backing structures appear lazily on first append,
// so this set is how "does this partition exist" is answered.
const partitionsKey = "chat:partitions"

// RedisMessageStore implements MessageLog on Redis. Each (partition, session)
// pair maps to one sorted set of JSON-encoded messages scored by the
// store-assigned timestamp.
type RedisMessageStore struct {
	client *redis.Client
}

// NewRedisMessageStore creates a new Redis-backed message log.
func NewRedisMessageStore(ctx context.Context, redisURL string) (*RedisMessageStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisMessageStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisMessageStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisMessageStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for shared infrastructure such as the
// rate limiter middleware.
func (s *RedisMessageStore) Client() *redis.Client {
	return s.client
}

// sessionLogKey returns the key for one session's message log inside a
// tenant partition.
func sessionLogKey(partition, token string) string {
	return fmt.Sprintf("chat:%s:%s:log", partition, token)
}

// Append assigns the message its id and timestamp and stores it. Timestamps
// are canonical timezone-free instants (unix microseconds); any tenant-local
// rendering happens at read time in the presentation layer.
func (s *RedisMessageStore) Append(ctx context.Context, partition string, msg *models.Message) (string, error) {
	start := time.Now()
	defer func() { metrics.RedisLatency.Observe(time.Since(start).Seconds()) }()

	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMicro()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	key := sessionLogKey(partition, msg.Token)

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Timestamp),
		Member: string(data),
	})
	pipe.SAdd(ctx, partitionsKey, partition)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}

	return msg.ID, nil
}

// ListBySession returns a session's messages in ascending creation order.
// A positive since returns only messages created strictly after it.
func (s *RedisMessageStore) ListBySession(ctx context.Context, partition, token string, since int64) ([]models.Message, error) {
	start := time.Now()
	defer func() { metrics.RedisLatency.Observe(time.Since(start).Seconds()) }()

	minScore := "-inf"
	if since > 0 {
		minScore = fmt.Sprintf("(%d", since) // exclusive
	}

	results, err := s.client.ZRangeByScore(ctx, sessionLogKey(partition, token), &redis.ZRangeBy{
		Min: minScore,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// MarkRead flips the read flag on every unread message in the session that
// was not sent by excludeSender, and returns how many were flipped. The
// member is rewritten in place under its original score, so ordering and
// content stay untouched.
func (s *RedisMessageStore) MarkRead(ctx context.Context, partition, token, excludeSender string) (int, error) {
	start := time.Now()
	defer func() { metrics.RedisLatency.Observe(time.Since(start).Seconds()) }()

	key := sessionLogKey(partition, token)
	results, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, z := range results {
		raw, ok := z.Member.(string)
		if !ok {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		if msg.Read || msg.Sender == excludeSender {
			continue
		}
		msg.Read = true
		data, err := json.Marshal(&msg)
		if err != nil {
			continue
		}

		pipe := s.client.Pipeline()
		pipe.ZRem(ctx, key, raw)
		pipe.ZAdd(ctx, key, redis.Z{Score: z.Score, Member: string(data)})
		if _, err := pipe.Exec(ctx); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

// HasPartition reports whether the partition has ever received a message.
func (s *RedisMessageStore) HasPartition(ctx context.Context, partition string) (bool, error) {
	return s.client.SIsMember(ctx, partitionsKey, partition).Result()
}
