package store

import (
	"context"

	"github.com/dcollien/Chatitat/internal/models"
)

// ChatStore defines the capability surface over the shared key-value store:
// message id allocation, per-channel history lists, per-message field hashes
// and per-channel presence sets. Both RedisStore and MemoryStore implement
// this interface; every method is safe to call concurrently from many
// processes.
type ChatStore interface {
	// Connection management
	Close() error
	Ping(ctx context.Context) error

	// Message id allocation. Ids come from one shared counter and are
	// strictly increasing across all channels and processes.
	NextMessageID(ctx context.Context) (int64, error)

	// History log
	AppendHistory(ctx context.Context, channel string, messageID int64) error
	StoreMessage(ctx context.Context, messageID int64, fields map[string]string) error
	HistoryRange(ctx context.Context, channel string, start, stop int64) ([]int64, error)
	Message(ctx context.Context, messageID int64) (map[string]string, error)
	RemoveMessage(ctx context.Context, messageID int64) error
	RemoveFromHistory(ctx context.Context, channel string, messageID int64) error

	// Presence
	AddPresence(ctx context.Context, channel, user string) error
	RemovePresence(ctx context.Context, channel, user string) error
	SetPresenceDetail(ctx context.Context, channel string, entry models.PresenceEntry) error
	RemovePresenceDetail(ctx context.Context, channel, user string) error
	PresenceDetail(ctx context.Context, channel, user string) (models.PresenceEntry, bool, error)
	ListPresence(ctx context.Context, channel string) ([]string, error)
}
