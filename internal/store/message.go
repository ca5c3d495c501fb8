package store

import (
	"database/sql"
	"slices"
	"time"
)

// AppendMessage adds a message to the end of its conversation. Messages are
// immutable once created: a second append with the same (chat, id) is ignored
// and reported as false.
func (db *DB) AppendMessage(m *Message) (bool, error) {
	buttons, err := encodeList(m.Buttons)
	if err != nil {
		return false, err
	}
	res, err := db.Exec(`
		INSERT INTO messages (chat_jid, msg_id, sender, body, from_me, status, media_url, media_type, buttons, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_jid, msg_id) DO NOTHING`,
		m.ChatJID, m.MsgID, m.Sender, m.Body, m.FromMe, m.Status, m.MediaURL, m.MediaType, buttons, m.Timestamp, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		m.Seq, _ = res.LastInsertId()
	}
	return n > 0, nil
}

// SetMessageStatus updates the delivery status of an outbound message.
func (db *DB) SetMessageStatus(chatJID, msgID, status string) error {
	_, err := db.Exec(`UPDATE messages SET status = ? WHERE chat_jid = ? AND msg_id = ?`, status, chatJID, msgID)
	return err
}

// ListMessages returns the newest limit messages of a conversation in arrival order.
func (db *DB) ListMessages(chatJID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT seq, chat_jid, msg_id, sender, body, from_me, status, media_url, media_type, buttons, timestamp
		FROM messages
		WHERE chat_jid = ?
		ORDER BY seq DESC
		LIMIT ?`, chatJID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var buttons string
		if err := rows.Scan(&m.Seq, &m.ChatJID, &m.MsgID, &m.Sender, &m.Body, &m.FromMe, &m.Status, &m.MediaURL, &m.MediaType, &buttons, &m.Timestamp); err != nil {
			return nil, err
		}
		if m.Buttons, err = decodeList(buttons); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// ClearConversation deletes every message of a conversation and resets the
// contact's unread counter and preview. The contact itself stays.
func (db *DB) ClearConversation(chatJID string) (int64, error) {
	var n int64
	err := db.InTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM messages WHERE chat_jid = ?`, chatJID)
		if err != nil {
			return err
		}
		if n, err = res.RowsAffected(); err != nil {
			return err
		}
		_, err = tx.Exec(`
			UPDATE contacts SET unread_count = 0, last_message_preview = ''
			WHERE jid = ?`, chatJID)
		return err
	})
	return n, err
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
