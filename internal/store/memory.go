package store

import (
	"context"
	"sync"

	"github.com/dcollien/Chatitat/internal/models"
)

// MemoryStore implements ChatStore with in-process maps. It backs
// single-process deployments (no REDIS_URL configured) and tests. Range
// semantics mirror the Redis list commands, including negative indexes.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	history  map[string][]int64
	messages map[int64]map[string]string
	presence map[string]map[string]bool
	details  map[string]map[string]models.PresenceEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		history:  make(map[string][]int64),
		messages: make(map[int64]map[string]string),
		presence: make(map[string]map[string]bool),
		details:  make(map[string]map[string]models.PresenceEntry),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// NextMessageID allocates the next strictly increasing message id.
func (s *MemoryStore) NextMessageID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

// AppendHistory appends a message id to the channel's history list.
func (s *MemoryStore) AppendHistory(ctx context.Context, channel string, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[channel] = append(s.history[channel], messageID)
	return nil
}

// StoreMessage persists message fields keyed by message id.
func (s *MemoryStore) StoreMessage(ctx context.Context, messageID int64, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make(map[string]string, len(fields))
	for k, v := range fields {
		stored[k] = v
	}
	s.messages[messageID] = stored
	return nil
}

// HistoryRange reads ids from start through stop inclusive, -1 meaning the
// newest entry.
func (s *MemoryStore) HistoryRange(ctx context.Context, channel string, start, stop int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.history[channel]
	n := int64(len(list))

	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}

	out := make([]int64, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

// Message reads the persisted fields of one message; empty map if absent.
func (s *MemoryStore) Message(ctx context.Context, messageID int64) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	for k, v := range s.messages[messageID] {
		out[k] = v
	}
	return out, nil
}

// RemoveMessage deletes a message's fields.
func (s *MemoryStore) RemoveMessage(ctx context.Context, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, messageID)
	return nil
}

// RemoveFromHistory removes the first occurrence of an id from the channel's
// history list, preserving the order of the remaining entries.
func (s *MemoryStore) RemoveFromHistory(ctx context.Context, channel string, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.history[channel]
	for i, id := range list {
		if id == messageID {
			s.history[channel] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

// AddPresence adds a user to the channel's online set.
func (s *MemoryStore) AddPresence(ctx context.Context, channel, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.presence[channel] == nil {
		s.presence[channel] = make(map[string]bool)
	}
	s.presence[channel][user] = true
	return nil
}

// RemovePresence removes a user from the channel's online set.
func (s *MemoryStore) RemovePresence(ctx context.Context, channel, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presence[channel], user)
	return nil
}

// SetPresenceDetail writes a member's detail record.
func (s *MemoryStore) SetPresenceDetail(ctx context.Context, channel string, entry models.PresenceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.details[channel] == nil {
		s.details[channel] = make(map[string]models.PresenceEntry)
	}
	s.details[channel][entry.User] = entry
	return nil
}

// RemovePresenceDetail deletes a member's detail record.
func (s *MemoryStore) RemovePresenceDetail(ctx context.Context, channel, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.details[channel], user)
	return nil
}

// PresenceDetail reads one member's detail record.
func (s *MemoryStore) PresenceDetail(ctx context.Context, channel, user string) (models.PresenceEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.details[channel][user]
	return entry, ok, nil
}

// ListPresence returns the channel's online set.
func (s *MemoryStore) ListPresence(ctx context.Context, channel string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]string, 0, len(s.presence[channel]))
	for user := range s.presence[channel] {
		users = append(users, user)
	}
	return users, nil
}
