// Package chat implements the channel broker core: authenticated sessions,
// fan-out publication, durable history and shared presence. One Session
// exists per authenticated (user, channel) connection; all of its state is
// mutated by a single connection handler.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dcollien/Chatitat/internal/auth"
	"github.com/dcollien/Chatitat/internal/bus"
	"github.com/dcollien/Chatitat/internal/metrics"
	"github.com/dcollien/Chatitat/internal/models"
	"github.com/dcollien/Chatitat/internal/store"
)

// ErrUnauthenticated is returned when a join request fails credential
// verification.
var ErrUnauthenticated = errors.New("unable to authenticate")

// Announce kinds published as control messages when a session joins.
const (
	AnnounceJoin   = "join"
	AnnounceRejoin = "rejoin"
)

// Broker carries the shared capabilities every session uses. Handles are
// constructed once at startup and passed in explicitly, so tests can swap in
// the in-memory store and bus.
type Broker struct {
	Store       store.ChatStore
	Bus         bus.Bus
	Secret      string
	Window      time.Duration
	TopicPrefix string
	LeaveText   string
	Logger      zerolog.Logger
}

// Topic returns the fan-out topic for a channel. Topics share the channel
// name with store keys but live in their own namespace.
func (b *Broker) Topic(channel string) string {
	return fmt.Sprintf("%s-%s", b.TopicPrefix, channel)
}

// JoinRequest is a client's claim to a (user, channel) pair, carrying the
// credential signature and its issuance time.
type JoinRequest struct {
	User    string `json:"user"`
	Name    string `json:"name"`
	Channel string `json:"channel"`
	Hash    string `json:"hash"`
	Issued  int64  `json:"issued"` // unix ms
}

// Session is the server-side state of one authenticated connection. Its
// lifecycle is NewSession (verification) -> Join (subscription, announce,
// presence) -> Leave (teardown). There is no way back to unauthenticated:
// a failed verification never constructs a Session at all.
type Session struct {
	User        string
	Name        string
	Channel     string
	ConnectedAt int64

	broker *Broker
	logger zerolog.Logger

	sub       bus.Subscription
	leaveOnce sync.Once
}

// NewSession verifies the join request and constructs an active session. On
// verification failure it returns ErrUnauthenticated and no state has been
// created anywhere.
func NewSession(b *Broker, req JoinRequest) (*Session, error) {
	now := time.Now().UnixMilli()
	if !auth.Verify(req.Hash, req.User, req.Channel, req.Issued, now, b.Secret, b.Window) {
		return nil, ErrUnauthenticated
	}

	return &Session{
		User:        req.User,
		Name:        req.Name,
		Channel:     req.Channel,
		ConnectedAt: now,
		broker:      b,
		logger: b.Logger.With().
			Str("user", req.User).
			Str("channel", req.Channel).
			Logger(),
	}, nil
}

// Join subscribes to the channel topic and, only once the subscription is
// confirmed, announces the session: a control message with the announce kind,
// the presence detail record, then membership in the online set. Announcing
// before confirmation would advertise a subscriber that cannot yet receive
// fan-out traffic.
//
// A bus failure here is fatal to the session; store failures are logged and
// the session stays up, since live relay does not depend on the store.
func (s *Session) Join(ctx context.Context, kind string) error {
	sub, err := s.broker.Bus.Subscribe(ctx, s.broker.Topic(s.Channel))
	if err != nil {
		return err
	}
	s.sub = sub

	announce := models.ChannelMessage{
		Action:    models.ActionControl,
		User:      s.User,
		Name:      s.Name,
		Msg:       kind,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.publish(ctx, announce); err != nil {
		_ = sub.Close()
		return err
	}

	entry := models.PresenceEntry{User: s.User, Name: s.Name, ConnectedAt: s.ConnectedAt}
	if err := s.broker.Store.SetPresenceDetail(ctx, s.Channel, entry); err != nil {
		s.storeError("set_presence_detail", err)
	}
	if err := s.broker.Store.AddPresence(ctx, s.Channel, s.User); err != nil {
		s.storeError("add_presence", err)
	}

	metrics.SessionsJoined.WithLabelValues(kind).Inc()
	metrics.SessionsActive.Inc()
	s.logger.Info().Str("kind", kind).Msg("session joined")
	return nil
}

// Deliveries exposes the fan-out stream for this session's channel. Nil
// before Join; closed after Leave or on bus failure.
func (s *Session) Deliveries() <-chan bus.Delivery {
	if s.sub == nil {
		return nil
	}
	return s.sub.Messages()
}

// PublishChat broadcasts a chat message and persists it to the channel
// history. Broadcast and persistence are two independent operations with no
// atomicity between them: a message can reach live subscribers and miss the
// history, or the reverse.
func (s *Session) PublishChat(ctx context.Context, text string) error {
	msg := models.ChannelMessage{
		Action:    models.ActionMessage,
		User:      s.User,
		Name:      s.Name,
		Msg:       text,
		Timestamp: time.Now().UnixMilli(),
	}

	if err := s.publish(ctx, msg); err != nil {
		return err
	}
	metrics.MessagesPublished.Inc()

	s.persist(ctx, msg)
	return nil
}

// publish broadcasts one message on the channel topic.
func (s *Session) publish(ctx context.Context, msg models.ChannelMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.broker.Bus.Publish(ctx, s.broker.Topic(s.Channel), string(payload))
}

// persist allocates an id for the message, appends it to the channel history
// and stores its fields. Failures degrade the history, never the relay.
func (s *Session) persist(ctx context.Context, msg models.ChannelMessage) {
	id, err := s.broker.Store.NextMessageID(ctx)
	if err != nil {
		s.storeError("next_message_id", err)
		return
	}
	if err := s.broker.Store.AppendHistory(ctx, s.Channel, id); err != nil {
		s.storeError("append_history", err)
	}
	if err := s.broker.Store.StoreMessage(ctx, id, msg.Fields()); err != nil {
		s.storeError("store_message", err)
	}
}

// ListOnline returns the channel's online members with their detail records,
// ordered by connection time. Members whose detail record is missing or
// unreadable are skipped rather than failing the whole query.
func (s *Session) ListOnline(ctx context.Context) []models.PresenceEntry {
	return ListOnline(ctx, s.broker, s.Channel)
}

// History returns the persisted messages for the session's channel in the
// given index range; see History for the purge semantics.
func (s *Session) History(ctx context.Context, start, stop int64, purge bool) ([]map[string]string, error) {
	return History(ctx, s.broker, s.Channel, start, stop, purge)
}

// Leave tears the session down: unsubscribe, retract presence, then publish
// the leave control message. Idempotent; a duplicate disconnect signal is a
// no-op.
func (s *Session) Leave(ctx context.Context) {
	s.leaveOnce.Do(func() {
		if s.sub != nil {
			if err := s.sub.Close(); err != nil {
				s.logger.Warn().Err(err).Msg("unsubscribe failed")
			}
		}

		if err := s.broker.Store.RemovePresence(ctx, s.Channel, s.User); err != nil {
			s.storeError("remove_presence", err)
		}
		if err := s.broker.Store.RemovePresenceDetail(ctx, s.Channel, s.User); err != nil {
			s.storeError("remove_presence_detail", err)
		}

		leave := models.ChannelMessage{
			Action:    models.ActionControl,
			User:      s.User,
			Name:      s.Name,
			Msg:       s.broker.LeaveText,
			Timestamp: time.Now().UnixMilli(),
		}
		if err := s.publish(ctx, leave); err != nil {
			s.logger.Warn().Err(err).Msg("leave announce failed")
		}

		metrics.SessionsActive.Dec()
		s.logger.Info().Msg("session left")
	})
}

func (s *Session) storeError(op string, err error) {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	s.logger.Warn().Err(err).Str("op", op).Msg("store operation failed")
}

// ListOnline reads a channel's presence snapshot. Shared with the REST
// presence endpoint, which has no session.
func ListOnline(ctx context.Context, b *Broker, channel string) []models.PresenceEntry {
	users, err := b.Store.ListPresence(ctx, channel)
	if err != nil {
		b.Logger.Warn().Err(err).Str("channel", channel).Msg("list presence failed")
		return []models.PresenceEntry{}
	}

	entries := make([]models.PresenceEntry, 0, len(users))
	for _, user := range users {
		entry, ok, err := b.Store.PresenceDetail(ctx, channel, user)
		if err != nil || !ok {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ConnectedAt != entries[j].ConnectedAt {
			return entries[i].ConnectedAt < entries[j].ConnectedAt
		}
		return entries[i].User < entries[j].User
	})
	return entries
}

// History reads a channel's persisted messages from start through stop
// inclusive (stop = -1 meaning the newest entry), oldest first. With purge
// set, every returned message is deleted after it has been read, so the
// caller always sees what it is deleting. Shared with the REST history
// endpoint.
func History(ctx context.Context, b *Broker, channel string, start, stop int64, purge bool) ([]map[string]string, error) {
	ids, err := b.Store.HistoryRange(ctx, channel, start, stop)
	if err != nil {
		return nil, err
	}

	messages := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		fields, err := b.Store.Message(ctx, id)
		if err != nil {
			b.Logger.Warn().Err(err).Int64("message_id", id).Msg("read message failed")
			continue
		}
		if len(fields) > 0 {
			messages = append(messages, fields)
		}

		if purge {
			if err := b.Store.RemoveMessage(ctx, id); err != nil {
				b.Logger.Warn().Err(err).Int64("message_id", id).Msg("purge message failed")
				continue
			}
			if err := b.Store.RemoveFromHistory(ctx, channel, id); err != nil {
				b.Logger.Warn().Err(err).Int64("message_id", id).Msg("purge history entry failed")
			}
			metrics.HistoryPurges.Inc()
		}
	}
	return messages, nil
}
