package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "talbot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// insertAt inserts a message with an explicit timestamp, bypassing the
// append-time clock so tests can build windows deterministically.
func insertAt(t *testing.T, s *Store, chatID, userID int64, text string, ts int64) int64 {
	t.Helper()
	res, err := s.db.Exec(`
		INSERT INTO messages (chat_id, user_id, content, ts) VALUES (?, ?, ?, ?);
	`, chatID, userID, text, ts)
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestAppendAndQueryOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := []string{"first", "second", "third"}
	for _, text := range want {
		if _, err := store.AppendMessage(ctx, 100, 1, text); err != nil {
			t.Fatalf("append %q: %v", text, err)
		}
	}

	got, err := store.MessagesSince(ctx, 100, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestAppendAssignsTimestampAndID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	before := time.Now().Unix()
	msg, err := store.AppendMessage(ctx, 5, 42, "hello")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	after := time.Now().Unix()

	if msg.ID <= 0 {
		t.Fatalf("expected positive id, got %d", msg.ID)
	}
	if msg.Timestamp < before || msg.Timestamp > after {
		t.Fatalf("timestamp %d outside [%d, %d]", msg.Timestamp, before, after)
	}
}

func TestMessagesSinceBoundaryInclusive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().Unix()
	insertAt(t, store, 7, 1, "too old", now-3601)
	insertAt(t, store, 7, 1, "on boundary", now-3600)
	insertAt(t, store, 7, 1, "recent", now-10)

	got, err := store.MessagesSince(ctx, 7, now-3600)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d: %v", len(got), got)
	}
	if got[0] != "on boundary" || got[1] != "recent" {
		t.Fatalf("unexpected texts: %v", got)
	}
}

func TestMessagesSinceEmptyChat(t *testing.T) {
	store := openTestStore(t)

	got, err := store.MessagesSince(context.Background(), 999, 0)
	if err != nil {
		t.Fatalf("query empty chat: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no messages, got %v", got)
	}
}

func TestMessagesAreIsolatedPerChat(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendMessage(ctx, 1, 1, "chat one"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.AppendMessage(ctx, 2, 1, "chat two"); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.MessagesSince(ctx, 1, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0] != "chat one" {
		t.Fatalf("chat 1 should only see its own message, got %v", got)
	}
}

func TestListConversations(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, chatID := range []int64{10, 20, 10, 30, 20} {
		if _, err := store.AppendMessage(ctx, chatID, 1, "msg"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	chats, err := store.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	seen := make(map[int64]bool)
	for _, id := range chats {
		seen[id] = true
	}
	if len(chats) != 3 || !seen[10] || !seen[20] || !seen[30] {
		t.Fatalf("expected chats {10,20,30}, got %v", chats)
	}
}

func TestPurgeRemovesExactlyExpiredRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().Unix()
	oldA := insertAt(t, store, 1, 1, "old-a", now-100)
	oldB := insertAt(t, store, 2, 1, "old-b", now-50)
	keepA := insertAt(t, store, 1, 1, "keep-a", now-49)
	keepB := insertAt(t, store, 3, 1, "keep-b", now)
	_ = oldA
	_ = oldB

	deleted, err := store.PurgeOlderThan(ctx, now-49)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 rows deleted, got %d", deleted)
	}

	ids, err := store.MessageIDs(ctx)
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != keepA || ids[1] != keepB {
		t.Fatalf("expected remaining ids [%d %d], got %v", keepA, keepB, ids)
	}
}

func TestPurgeIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().Unix()
	insertAt(t, store, 1, 1, "old", now-100)

	if deleted, err := store.PurgeOlderThan(ctx, now); err != nil || deleted != 1 {
		t.Fatalf("first purge: deleted=%d err=%v", deleted, err)
	}
	if deleted, err := store.PurgeOlderThan(ctx, now); err != nil || deleted != 0 {
		t.Fatalf("second purge should delete nothing: deleted=%d err=%v", deleted, err)
	}
}

func TestPurgeEmptyStore(t *testing.T) {
	store := openTestStore(t)

	deleted, err := store.PurgeOlderThan(context.Background(), time.Now().Unix())
	if err != nil {
		t.Fatalf("purge empty store: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected 0 deleted, got %d", deleted)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "talbot.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.AppendMessage(ctx, 1, 1, "persisted"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.MessagesSince(ctx, 1, 0)
	if err != nil {
		t.Fatalf("query after reopen: %v", err)
	}
	if len(got) != 1 || got[0] != "persisted" {
		t.Fatalf("expected message to survive restart, got %v", got)
	}
}

func TestStoreErrorKind(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Close the underlying DB to force an unavailability error.
	_ = store.db.Close()

	_, err := store.AppendMessage(ctx, 1, 1, "dropped")
	if err == nil {
		t.Fatal("expected append to fail on closed store")
	}
	if Kind(err) != KindUnavailable {
		t.Fatalf("expected kind %s, got %s", KindUnavailable, Kind(err))
	}
}
