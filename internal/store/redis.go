package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/dcollien/Chatitat/internal/config"
	"github.com/dcollien/Chatitat/internal/models"
)

// RedisStore implements ChatStore on a shared Redis instance. Channel history
// is an RPUSH list of message ids, message fields live in per-id hashes,
// presence is a set per channel plus a detail hash per member. The message id
// counter is a single INCR key shared by every channel and server process.
type RedisStore struct {
	client *redis.Client
	keys   config.KeyNamespaces
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, keys config.KeyNamespaces) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client, keys: keys}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) historyKey(channel string) string {
	return fmt.Sprintf("%s-%s", s.keys.History, channel)
}

func (s *RedisStore) messageKey(messageID int64) string {
	return fmt.Sprintf("%s-%d", s.keys.Message, messageID)
}

func (s *RedisStore) presenceKey(channel string) string {
	return fmt.Sprintf("%s-%s", s.keys.Presence, channel)
}

func (s *RedisStore) detailKey(channel, user string) string {
	return fmt.Sprintf("%s-%s-%s", s.keys.PresenceDetail, channel, user)
}

// NextMessageID atomically allocates the next message id. INCR is the one
// operation here that must be a true cross-process atomic primitive.
func (s *RedisStore) NextMessageID(ctx context.Context) (int64, error) {
	return s.client.Incr(ctx, s.keys.MessageID).Result()
}

// AppendHistory appends a message id to the channel's ordered history list.
func (s *RedisStore) AppendHistory(ctx context.Context, channel string, messageID int64) error {
	return s.client.RPush(ctx, s.historyKey(channel), messageID).Err()
}

// StoreMessage persists message fields keyed by message id. Re-writing the
// same fields is harmless.
func (s *RedisStore) StoreMessage(ctx context.Context, messageID int64, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return s.client.HSet(ctx, s.messageKey(messageID), fields).Err()
}

// HistoryRange reads the channel's message ids from start through stop
// inclusive; stop = -1 means through the newest entry.
func (s *RedisStore) HistoryRange(ctx context.Context, channel string, start, stop int64) ([]int64, error) {
	raw, err := s.client.LRange(ctx, s.historyKey(channel), start, stop).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Message reads the persisted fields of one message. A purged or unknown id
// yields an empty map, not an error.
func (s *RedisStore) Message(ctx context.Context, messageID int64) (map[string]string, error) {
	return s.client.HGetAll(ctx, s.messageKey(messageID)).Result()
}

// RemoveMessage deletes a message's field hash.
func (s *RedisStore) RemoveMessage(ctx context.Context, messageID int64) error {
	return s.client.Del(ctx, s.messageKey(messageID)).Err()
}

// RemoveFromHistory removes one id from the channel's history list without
// reordering the remaining entries.
func (s *RedisStore) RemoveFromHistory(ctx context.Context, channel string, messageID int64) error {
	return s.client.LRem(ctx, s.historyKey(channel), 1, messageID).Err()
}

// AddPresence adds a user to the channel's online set.
func (s *RedisStore) AddPresence(ctx context.Context, channel, user string) error {
	return s.client.SAdd(ctx, s.presenceKey(channel), user).Err()
}

// RemovePresence removes a user from the channel's online set.
func (s *RedisStore) RemovePresence(ctx context.Context, channel, user string) error {
	return s.client.SRem(ctx, s.presenceKey(channel), user).Err()
}

// SetPresenceDetail writes the member's detail hash.
func (s *RedisStore) SetPresenceDetail(ctx context.Context, channel string, entry models.PresenceEntry) error {
	fields := map[string]string{
		"user":        entry.User,
		"name":        entry.Name,
		"connectedAt": strconv.FormatInt(entry.ConnectedAt, 10),
	}
	return s.client.HSet(ctx, s.detailKey(channel, entry.User), fields).Err()
}

// RemovePresenceDetail deletes the member's detail hash.
func (s *RedisStore) RemovePresenceDetail(ctx context.Context, channel, user string) error {
	return s.client.Del(ctx, s.detailKey(channel, user)).Err()
}

// PresenceDetail reads one member's detail hash. The second return value is
// false when no record exists.
func (s *RedisStore) PresenceDetail(ctx context.Context, channel, user string) (models.PresenceEntry, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.detailKey(channel, user)).Result()
	if err != nil {
		return models.PresenceEntry{}, false, err
	}
	if len(fields) == 0 {
		return models.PresenceEntry{}, false, nil
	}

	connectedAt, _ := strconv.ParseInt(fields["connectedAt"], 10, 64)
	return models.PresenceEntry{
		User:        fields["user"],
		Name:        fields["name"],
		ConnectedAt: connectedAt,
	}, true, nil
}

// ListPresence returns the channel's online set.
func (s *RedisStore) ListPresence(ctx context.Context, channel string) ([]string, error) {
	return s.client.SMembers(ctx, s.presenceKey(channel)).Result()
}
