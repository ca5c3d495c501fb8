package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const contactColumns = `jid, name, phone, unread_count, last_message_preview, last_message_at`

// SaveContacts writes the merged directory in a single transaction. The slice
// order becomes the listing order. Unread counters and previews of existing
// rows are owned by the conversation path and are left untouched.
func (db *DB) SaveContacts(contacts []Contact) error {
	now := time.Now().UnixMilli()
	return db.InTx(func(tx *sql.Tx) error {
		for i, c := range contacts {
			if _, err := tx.Exec(`
				INSERT INTO contacts (jid, name, phone, unread_count, position, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(jid) DO UPDATE SET
					name = excluded.name,
					phone = excluded.phone,
					position = excluded.position,
					updated_at = excluded.updated_at`,
				c.JID, c.Name, c.Phone, c.UnreadCount, i, now); err != nil {
				return fmt.Errorf("save contact %q: %w", c.JID, err)
			}
		}
		return nil
	})
}

// EnsureContact inserts a contact discovered through an inbound message.
// Existing rows are not modified. Reports whether a row was created.
func (db *DB) EnsureContact(c *Contact) (bool, error) {
	res, err := db.Exec(`
		INSERT INTO contacts (jid, name, phone, position, updated_at)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM contacts), ?)
		ON CONFLICT(jid) DO NOTHING`,
		c.JID, c.Name, c.Phone, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetContact returns a contact by JID, or nil if it is not cached.
func (db *DB) GetContact(jid string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE jid = ?`, jid).
		Scan(&c.JID, &c.Name, &c.Phone, &c.UnreadCount, &c.LastMessagePreview, &c.LastMessageAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns the cached directory in listing order.
func (db *DB) ListContacts() ([]Contact, error) {
	return db.queryContacts(`SELECT ` + contactColumns + ` FROM contacts ORDER BY position, jid`)
}

// SearchContacts filters the directory by a case-insensitive name substring
// or a phone substring.
func (db *DB) SearchContacts(term string) ([]Contact, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return db.ListContacts()
	}
	like := "%" + escapeLike(strings.ToLower(term)) + "%"
	return db.queryContacts(`
		SELECT `+contactColumns+` FROM contacts
		WHERE lower(name) LIKE ? ESCAPE '\' OR phone LIKE ? ESCAPE '\'
		ORDER BY position, jid`, like, like)
}

// DeleteContact removes a contact. Only operators delete contacts.
func (db *DB) DeleteContact(jid string) (bool, error) {
	res, err := db.Exec(`DELETE FROM contacts WHERE jid = ?`, jid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RecordInbound bumps the unread counter and refreshes the preview of a contact.
func (db *DB) RecordInbound(jid, preview string, ts int64) error {
	_, err := db.Exec(`
		UPDATE contacts SET unread_count = unread_count + 1,
			last_message_preview = ?, last_message_at = MAX(last_message_at, ?)
		WHERE jid = ?`, preview, ts, jid)
	return err
}

// RecordOutbound refreshes the preview of a contact without touching unread.
func (db *DB) RecordOutbound(jid, preview string, ts int64) error {
	_, err := db.Exec(`
		UPDATE contacts SET last_message_preview = ?, last_message_at = MAX(last_message_at, ?)
		WHERE jid = ?`, preview, ts, jid)
	return err
}

// MarkRead resets the unread counter of a contact.
func (db *DB) MarkRead(jid string) error {
	_, err := db.Exec(`UPDATE contacts SET unread_count = 0 WHERE jid = ?`, jid)
	return err
}

// ContactCount returns the size of the cached directory.
func (db *DB) ContactCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM contacts`).Scan(&count)
	return count, err
}

func (db *DB) queryContacts(query string, args ...any) ([]Contact, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.JID, &c.Name, &c.Phone, &c.UnreadCount, &c.LastMessagePreview, &c.LastMessageAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
