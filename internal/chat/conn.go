package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dcollien/Chatitat/internal/metrics"
	"github.com/dcollien/Chatitat/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 8 * 1024
)

// Inbound client events.
const (
	eventJoin    = "join"
	eventChat    = "chat"
	eventList    = "list"
	eventHistory = "history"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients connect from arbitrary origins; credential verification is
	// what gates a session, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientEvent is the envelope for every inbound frame.
type clientEvent struct {
	Event   string `json:"event"`
	User    string `json:"user"`
	Name    string `json:"name"`
	Channel string `json:"channel"`
	Hash    string `json:"hash"`
	Issued  int64  `json:"issued"`
	Msg     string `json:"msg"`
}

func (e clientEvent) joinRequest() JoinRequest {
	return JoinRequest{
		User:    e.User,
		Name:    e.Name,
		Channel: e.Channel,
		Hash:    e.Hash,
		Issued:  e.Issued,
	}
}

// serverFrame is the envelope for every outbound frame: fan-out payloads
// tagged with their topic, snapshots, and error events.
type serverFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// snapshot is the list/history response payload, shaped like a
// ChannelMessage whose msg field carries the structured result.
type snapshot struct {
	Action    string      `json:"action"`
	Msg       interface{} `json:"msg"`
	Timestamp int64       `json:"timestamp"`
}

// Conn binds one websocket connection to at most one Session. The read pump
// is the single writer of the session reference; the write pump owns all
// writes to the socket.
type Conn struct {
	id     string
	ws     *websocket.Conn
	broker *Broker
	logger zerolog.Logger

	send chan serverFrame
	done chan struct{}

	session      *Session
	teardownOnce sync.Once
}

// ServeWS upgrades an HTTP request to a websocket connection and runs the
// connection handler until the client goes away.
func ServeWS(b *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.Logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}

		id := uuid.NewString()
		c := &Conn{
			id:     id,
			ws:     ws,
			broker: b,
			logger: b.Logger.With().Str("conn_id", id).Str("remote_addr", r.RemoteAddr).Logger(),
			send:   make(chan serverFrame, 256),
			done:   make(chan struct{}),
		}
		c.logger.Info().Msg("client connected")

		go c.writePump()
		c.readPump()
	}
}

func (c *Conn) readPump() {
	defer c.teardown()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("unexpected websocket error")
			} else {
				c.logger.Info().Msg("client disconnected")
			}
			return
		}

		var event clientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			// Malformed input is ignored rather than fatal, matching the
			// permissive posture of the HTTP surface.
			c.logger.Warn().Err(err).Msg("discarding malformed frame")
			continue
		}

		c.dispatch(event)
	}
}

// dispatch routes one inbound event. Runs on the read pump goroutine only,
// so session state has a single writer.
func (c *Conn) dispatch(event clientEvent) {
	ctx := context.Background()

	switch event.Event {
	case eventJoin:
		c.onJoin(ctx, event)
	case eventChat:
		c.onChat(ctx, event)
	case eventList:
		c.onList(ctx)
	case eventHistory:
		c.onHistory(ctx)
	default:
		c.logger.Warn().Str("event", event.Event).Msg("unknown event")
	}
}

func (c *Conn) onJoin(ctx context.Context, event clientEvent) {
	if c.session != nil {
		c.logger.Warn().Msg("join on an already joined connection")
		return
	}
	c.establish(ctx, event, AnnounceJoin)
}

// onChat publishes a chat message. A connection without a session is treated
// as an implicit rejoin: after a transport-level reconnect a client may chat
// without re-sending join, so every chat message carries credentials and is
// re-verified from scratch.
func (c *Conn) onChat(ctx context.Context, event clientEvent) {
	if c.session == nil && !c.establish(ctx, event, AnnounceRejoin) {
		return
	}

	if err := c.session.PublishChat(ctx, event.Msg); err != nil {
		c.logger.Error().Err(err).Msg("publish failed, tearing session down")
		c.teardown()
	}
}

// establish verifies credentials and joins the channel, reporting success.
func (c *Conn) establish(ctx context.Context, event clientEvent, kind string) bool {
	session, err := NewSession(c.broker, event.joinRequest())
	if err != nil {
		metrics.AuthFailures.WithLabelValues("socket").Inc()
		c.logger.Warn().Str("user", event.User).Str("channel", event.Channel).Msg("authentication failed")
		c.sendError("Unable to authenticate")
		return false
	}

	if err := session.Join(ctx, kind); err != nil {
		// Without the bus the session cannot serve its purpose.
		c.logger.Error().Err(err).Msg("join failed")
		c.sendError("Unable to join channel")
		return false
	}

	c.session = session
	go c.forward(session)
	return true
}

func (c *Conn) onList(ctx context.Context) {
	if c.session == nil {
		c.sendError("Unable to authenticate")
		return
	}

	entries := c.session.ListOnline(ctx)
	c.sendSnapshot(snapshot{
		Action:    models.ActionList,
		Msg:       entries,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Conn) onHistory(ctx context.Context) {
	if c.session == nil {
		c.sendError("Unable to authenticate")
		return
	}

	messages, err := c.session.History(ctx, 0, -1, false)
	if err != nil {
		// Degrade to an empty snapshot; the relay stays up.
		messages = []map[string]string{}
	}
	c.sendSnapshot(snapshot{
		Action:    models.ActionHistory,
		Msg:       messages,
		Timestamp: time.Now().UnixMilli(),
	})
}

// forward pumps fan-out deliveries into the connection's send path. The
// deliveries channel closing while the connection is still up means the bus
// link failed, which is fatal to this session.
func (c *Conn) forward(session *Session) {
	for {
		select {
		case d, ok := <-session.Deliveries():
			if !ok {
				select {
				case <-c.done:
				default:
					c.logger.Error().Msg("fan-out stream closed, tearing session down")
					c.teardown()
				}
				return
			}
			metrics.BusDeliveries.Inc()
			c.enqueue(serverFrame{Event: d.Topic, Data: json.RawMessage(d.Payload)})
		case <-c.done:
			return
		}
	}
}

func (c *Conn) sendSnapshot(s snapshot) {
	if c.session == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		c.logger.Error().Err(err).Msg("snapshot marshal failed")
		return
	}
	c.enqueue(serverFrame{Event: c.broker.Topic(c.session.Channel), Data: data})
}

func (c *Conn) sendError(text string) {
	data, _ := json.Marshal(text)
	c.enqueue(serverFrame{Event: "error", Data: data})
}

// enqueue hands a frame to the write pump. A slow client whose buffer is
// full misses the frame rather than blocking other connections.
func (c *Conn) enqueue(frame serverFrame) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.logger.Warn().Str("event", frame.Event).Msg("send buffer full, dropping frame")
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(frame); err != nil {
				c.logger.Info().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// teardown releases the session exactly once, on every exit path: client
// disconnect, bus failure, or publish failure. In-flight store and bus calls
// from this session may still complete afterwards; they find the session
// already retracted and have no further effect.
func (c *Conn) teardown() {
	c.teardownOnce.Do(func() {
		close(c.done)
		if c.session != nil {
			c.session.Leave(context.Background())
		}
		_ = c.ws.Close()
	})
}
