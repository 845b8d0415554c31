package persistence

import (
	"context"
	"time"
)

// StoredMessage is one row of the message log. Rows are never mutated;
// only the retention sweeper deletes them.
type StoredMessage struct {
	ID        int64
	ChatID    int64
	UserID    int64
	Text      string
	Timestamp int64 // unix seconds, assigned at append time
}

// AppendMessage stores an inbound chat message, assigning the timestamp at
// call time. On storage failure the error is returned and the message is
// dropped; there is no buffering or retry beyond the busy-retry below.
func (s *Store) AppendMessage(ctx context.Context, chatID, userID int64, text string) (StoredMessage, error) {
	msg := StoredMessage{
		ChatID:    chatID,
		UserID:    userID,
		Text:      text,
		Timestamp: time.Now().Unix(),
	}

	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO messages (chat_id, user_id, content, ts)
			VALUES (?, ?, ?, ?);
		`, msg.ChatID, msg.UserID, msg.Text, msg.Timestamp)
		if err != nil {
			return err
		}
		msg.ID, _ = res.LastInsertId()
		return nil
	})
	if err != nil {
		return StoredMessage{}, storeErr(KindUnavailable, "append message", err)
	}
	return msg, nil
}

// MessagesSince returns the texts of all messages in the given chat with
// timestamp >= since, in insertion order. An empty result is not an error.
func (s *Store) MessagesSince(ctx context.Context, chatID, since int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content FROM messages
		WHERE chat_id = ? AND ts >= ?
		ORDER BY id ASC;
	`, chatID, since)
	if err != nil {
		return nil, storeErr(KindQuery, "query messages", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, storeErr(KindQuery, "scan message", err)
		}
		out = append(out, text)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(KindQuery, "message rows", err)
	}
	return out, nil
}

// ListConversations returns every distinct chat id present in the log.
// Used by the recurring digest broadcast.
func (s *Store) ListConversations(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT chat_id FROM messages;`)
	if err != nil {
		return nil, storeErr(KindQuery, "list conversations", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, storeErr(KindQuery, "scan conversation", err)
		}
		out = append(out, chatID)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(KindQuery, "conversation rows", err)
	}
	return out, nil
}

// PurgeOlderThan deletes every message with timestamp < cutoff and returns
// the number of rows removed. It is idempotent: a repeat call with the same
// cutoff deletes nothing.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	var deleted int64
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE ts < ?;`, cutoff)
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, storeErr(KindUnavailable, "purge messages", err)
	}
	return deleted, nil
}

// CountMessages returns the total number of stored messages. Used by tests
// and the startup log line.
func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages;`).Scan(&count); err != nil {
		return 0, storeErr(KindQuery, "count messages", err)
	}
	return count, nil
}

// MessageIDs returns all message ids in insertion order. Test helper used
// to verify purge exactness.
func (s *Store) MessageIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM messages ORDER BY id ASC;`)
	if err != nil {
		return nil, storeErr(KindQuery, "list ids", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr(KindQuery, "scan id", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(KindQuery, "id rows", err)
	}
	return out, nil
}
