package store

import (
	"context"
	"testing"

	"github.com/dcollien/Chatitat/internal/models"
)

func TestNextMessageIDStrictlyIncreasing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var prev int64
	for i := 0; i < 100; i++ {
		id, err := s.NextMessageID(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestHistoryRange(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if err := s.AppendHistory(ctx, "lobby", i); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name        string
		start, stop int64
		want        []int64
	}{
		{"full range", 0, -1, []int64{1, 2, 3, 4, 5}},
		{"oldest three", 0, 2, []int64{1, 2, 3}},
		{"middle", 1, 3, []int64{2, 3, 4}},
		{"stop past end", 3, 99, []int64{4, 5}},
		{"start past end", 9, -1, nil},
		{"negative start", -2, -1, []int64{4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HistoryRange(ctx, "lobby", tt.start, tt.stop)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestRemoveFromHistoryPreservesOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		s.AppendHistory(ctx, "lobby", i)
	}
	if err := s.RemoveFromHistory(ctx, "lobby", 2); err != nil {
		t.Fatal(err)
	}

	got, _ := s.HistoryRange(ctx, "lobby", 0, -1)
	want := []int64{1, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestMessageAbsentAfterRemove(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.StoreMessage(ctx, 7, map[string]string{"msg": "hello"})
	fields, err := s.Message(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if fields["msg"] != "hello" {
		t.Fatalf("expected stored message, got %v", fields)
	}

	s.RemoveMessage(ctx, 7)
	fields, err = s.Message(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 0 {
		t.Fatalf("expected empty fields after remove, got %v", fields)
	}
}

func TestPresenceLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.AddPresence(ctx, "lobby", "alice")
	s.SetPresenceDetail(ctx, "lobby", models.PresenceEntry{User: "alice", Name: "Alice", ConnectedAt: 123})

	users, _ := s.ListPresence(ctx, "lobby")
	if len(users) != 1 || users[0] != "alice" {
		t.Fatalf("expected [alice], got %v", users)
	}

	entry, ok, err := s.PresenceDetail(ctx, "lobby", "alice")
	if err != nil || !ok {
		t.Fatalf("expected detail record, ok=%v err=%v", ok, err)
	}
	if entry.Name != "Alice" || entry.ConnectedAt != 123 {
		t.Fatalf("unexpected detail %+v", entry)
	}

	s.RemovePresence(ctx, "lobby", "alice")
	s.RemovePresenceDetail(ctx, "lobby", "alice")

	users, _ = s.ListPresence(ctx, "lobby")
	if len(users) != 0 {
		t.Fatalf("expected empty presence, got %v", users)
	}
	_, ok, _ = s.PresenceDetail(ctx, "lobby", "alice")
	if ok {
		t.Fatal("expected detail record to be gone")
	}

	// Double removal is a no-op.
	if err := s.RemovePresence(ctx, "lobby", "alice"); err != nil {
		t.Fatal(err)
	}
}
