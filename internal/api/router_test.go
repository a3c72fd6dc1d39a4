package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dcollien/Chatitat/internal/auth"
	"github.com/dcollien/Chatitat/internal/bus"
	"github.com/dcollien/Chatitat/internal/chat"
	"github.com/dcollien/Chatitat/internal/models"
	"github.com/dcollien/Chatitat/internal/store"
)

const testSecret = "router test key"

func newTestServer(t *testing.T, secret string) (*httptest.Server, *chat.Broker) {
	t.Helper()
	broker := &chat.Broker{
		Store:       store.NewMemoryStore(),
		Bus:         bus.NewMemoryBus(),
		Secret:      secret,
		Window:      24 * time.Hour,
		TopicPrefix: "chat",
		LeaveText:   " went offline.",
		Logger:      zerolog.Nop(),
	}
	srv := httptest.NewServer(NewRouter(zerolog.Nop(), broker))
	t.Cleanup(srv.Close)
	return srv, broker
}

func seedHistory(t *testing.T, broker *chat.Broker, channel string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	for _, text := range texts {
		id, err := broker.Store.NextMessageID(ctx)
		if err != nil {
			t.Fatal(err)
		}
		msg := models.ChannelMessage{
			Action:    models.ActionMessage,
			User:      "alice",
			Name:      "Alice",
			Msg:       text,
			Timestamp: time.Now().UnixMilli(),
		}
		if err := broker.Store.AppendHistory(ctx, channel, id); err != nil {
			t.Fatal(err)
		}
		if err := broker.Store.StoreMessage(ctx, id, msg.Fields()); err != nil {
			t.Fatal(err)
		}
	}
}

func signedQuery(user, channel string) string {
	issued := time.Now().UnixMilli()
	v := url.Values{}
	v.Set("user", user)
	v.Set("issued", strconv.FormatInt(issued, 10))
	v.Set("signature", auth.Signature(user, channel, issued, testSecret))
	return v.Encode()
}

func getJSON(t *testing.T, url string, wantStatus int, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, broker := newTestServer(t, testSecret)
	seedHistory(t, broker, "lobby", "one", "two", "three", "four", "five")

	var messages []map[string]string
	getJSON(t, fmt.Sprintf("%s/history/lobby?%s", srv.URL, signedQuery("alice", "lobby")), http.StatusOK, &messages)
	if len(messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(messages))
	}
	if messages[0]["msg"] != "one" || messages[4]["msg"] != "five" {
		t.Fatalf("unexpected order %v", messages)
	}
}

func TestHistoryCountLimitsToOldest(t *testing.T) {
	srv, broker := newTestServer(t, testSecret)
	seedHistory(t, broker, "lobby", "one", "two", "three", "four", "five")

	var messages []map[string]string
	getJSON(t, fmt.Sprintf("%s/history/lobby/3?%s", srv.URL, signedQuery("alice", "lobby")), http.StatusOK, &messages)
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, want := range []string{"one", "two", "three"} {
		if messages[i]["msg"] != want {
			t.Fatalf("entry %d: got %q, want %q", i, messages[i]["msg"], want)
		}
	}
}

func TestHistoryDeletePurges(t *testing.T) {
	srv, broker := newTestServer(t, testSecret)
	seedHistory(t, broker, "lobby", "one", "two")

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/history/lobby?%s", srv.URL, signedQuery("alice", "lobby")), nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status %d", resp.StatusCode)
	}

	var purged []map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&purged); err != nil {
		t.Fatal(err)
	}
	if len(purged) != 2 {
		t.Fatalf("purge should return what it deletes, got %d", len(purged))
	}

	var after []map[string]string
	getJSON(t, fmt.Sprintf("%s/history/lobby?%s", srv.URL, signedQuery("alice", "lobby")), http.StatusOK, &after)
	if len(after) != 0 {
		t.Fatalf("expected empty history after purge, got %v", after)
	}
}

func TestHistoryRejectsBadSignature(t *testing.T) {
	srv, broker := newTestServer(t, testSecret)
	seedHistory(t, broker, "lobby", "one")

	issued := time.Now().UnixMilli()
	badSig := auth.Signature("alice", "lobby", issued, "wrong key")
	url := fmt.Sprintf("%s/history/lobby?user=alice&issued=%d&signature=%s", srv.URL, issued, url.QueryEscape(badSig))

	getJSON(t, url, http.StatusForbidden, nil)
}

func TestHistoryMissingChannelIs404(t *testing.T) {
	srv, _ := newTestServer(t, testSecret)
	getJSON(t, srv.URL+"/history", http.StatusNotFound, nil)
}

func TestListEndpoint(t *testing.T) {
	srv, broker := newTestServer(t, testSecret)
	ctx := context.Background()

	broker.Store.AddPresence(ctx, "lobby", "alice")
	broker.Store.SetPresenceDetail(ctx, "lobby", models.PresenceEntry{User: "alice", Name: "Alice", ConnectedAt: 123})

	var entries []models.PresenceEntry
	getJSON(t, fmt.Sprintf("%s/list/lobby?%s", srv.URL, signedQuery("alice", "lobby")), http.StatusOK, &entries)
	if len(entries) != 1 || entries[0].User != "alice" || entries[0].ConnectedAt != 123 {
		t.Fatalf("unexpected presence list %+v", entries)
	}
}

func TestOpenModeSkipsVerification(t *testing.T) {
	srv, broker := newTestServer(t, "")
	seedHistory(t, broker, "lobby", "one")

	var messages []map[string]string
	getJSON(t, srv.URL+"/history/lobby", http.StatusOK, &messages)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message in open mode, got %d", len(messages))
	}
}

func TestHMACReference(t *testing.T) {
	srv, _ := newTestServer(t, testSecret)

	var resp struct {
		Signature string `json:"signature"`
	}
	getJSON(t, srv.URL+"/hmac/salty/alice/lobby/1700000000000", http.StatusOK, &resp)

	want := auth.Signature("alice", "lobby", 1700000000000, "salty")
	if resp.Signature != want {
		t.Fatalf("got %q, want %q", resp.Signature, want)
	}
}

// The metrics and logging middleware wrap every response writer, so the
// upgrade on /ws only works if the wrappers pass http.Hijacker through.
func TestWebsocketUpgradeThroughRouter(t *testing.T) {
	srv, _ := newTestServer(t, testSecret)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", wsURL, err, status)
	}
	defer ws.Close()

	issued := time.Now().UnixMilli()
	join := map[string]interface{}{
		"event":   "join",
		"user":    "alice",
		"name":    "Alice",
		"channel": "lobby",
		"hash":    auth.Signature("alice", "lobby", issued, testSecret),
		"issued":  issued,
	}
	if err := ws.WriteJSON(join); err != nil {
		t.Fatal(err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Event != "chat-lobby" {
		t.Fatalf("expected join announce on chat-lobby, got %q", frame.Event)
	}
	var announce models.ChannelMessage
	if err := json.Unmarshal(frame.Data, &announce); err != nil {
		t.Fatal(err)
	}
	if announce.Action != models.ActionControl || announce.Msg != chat.AnnounceJoin {
		t.Fatalf("unexpected announce %+v", announce)
	}
}

func TestHistoryCountZeroLeavesHistoryIntact(t *testing.T) {
	srv, broker := newTestServer(t, testSecret)
	seedHistory(t, broker, "lobby", "one", "two", "three")

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/history/lobby/0?%s", srv.URL, signedQuery("alice", "lobby")), nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status %d", resp.StatusCode)
	}

	var purged []map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&purged); err != nil {
		t.Fatal(err)
	}
	if len(purged) != 0 {
		t.Fatalf("count 0 should purge nothing, got %v", purged)
	}

	var after []map[string]string
	getJSON(t, fmt.Sprintf("%s/history/lobby?%s", srv.URL, signedQuery("alice", "lobby")), http.StatusOK, &after)
	if len(after) != 3 {
		t.Fatalf("expected 3 messages to survive, got %d", len(after))
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRequestLogCarriesChannel(t *testing.T) {
	var out syncBuffer
	broker := &chat.Broker{
		Store:       store.NewMemoryStore(),
		Bus:         bus.NewMemoryBus(),
		Secret:      testSecret,
		Window:      24 * time.Hour,
		TopicPrefix: "chat",
		LeaveText:   " went offline.",
		Logger:      zerolog.Nop(),
	}
	srv := httptest.NewServer(NewRouter(zerolog.New(&out), broker))
	t.Cleanup(srv.Close)

	getJSON(t, fmt.Sprintf("%s/history/lobby?%s", srv.URL, signedQuery("alice", "lobby")), http.StatusOK, nil)

	// The log line lands after the handler returns, which can trail the
	// client seeing the response.
	deadline := time.Now().Add(time.Second)
	for {
		logged := out.String()
		if strings.Contains(logged, `"channel":"lobby"`) && strings.Contains(logged, "request served") {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("request log missing channel field: %s", logged)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUnknownPathIsPermissive(t *testing.T) {
	srv, _ := newTestServer(t, testSecret)

	resp, err := http.Get(srv.URL + "/definitely/not/a/route")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected permissive 200, got %d", resp.StatusCode)
	}
}
