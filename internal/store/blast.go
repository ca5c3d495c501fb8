package store

import (
	"database/sql"
	"fmt"
)

// InsertBlast appends a record to the campaign history. Records are never
// updated afterwards.
func (db *DB) InsertBlast(r *BlastRecord) error {
	recipients, err := encodeList(r.Recipients)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO blast_history (id, campaign_label, message, recipients, status, dispatched_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.CampaignLabel, r.Message, recipients, r.Status, r.DispatchedAt)
	return err
}

// GetBlast returns a history record by id, or nil if it does not exist.
func (db *DB) GetBlast(id string) (*BlastRecord, error) {
	var r BlastRecord
	var recipients string
	err := db.QueryRow(`
		SELECT id, campaign_label, message, recipients, status, dispatched_at
		FROM blast_history WHERE id = ?`, id).
		Scan(&r.ID, &r.CampaignLabel, &r.Message, &recipients, &r.Status, &r.DispatchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.Recipients, err = decodeList(recipients); err != nil {
		return nil, fmt.Errorf("blast %q: %w", id, err)
	}
	return &r, nil
}

// ListBlasts returns the campaign history, newest first.
func (db *DB) ListBlasts() ([]BlastRecord, error) {
	rows, err := db.Query(`
		SELECT id, campaign_label, message, recipients, status, dispatched_at
		FROM blast_history ORDER BY dispatched_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []BlastRecord
	for rows.Next() {
		var r BlastRecord
		var recipients string
		if err := rows.Scan(&r.ID, &r.CampaignLabel, &r.Message, &recipients, &r.Status, &r.DispatchedAt); err != nil {
			return nil, err
		}
		if r.Recipients, err = decodeList(recipients); err != nil {
			return nil, fmt.Errorf("blast %q: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LatestBlastTime returns the dispatched_at of the newest record, or 0.
func (db *DB) LatestBlastTime() (int64, error) {
	var ts int64
	err := db.QueryRow(`SELECT COALESCE(MAX(dispatched_at), 0) FROM blast_history`).Scan(&ts)
	return ts, err
}

// DeleteBlast removes one whole history record. Reports whether it existed.
func (db *DB) DeleteBlast(id string) (bool, error) {
	res, err := db.Exec(`DELETE FROM blast_history WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
