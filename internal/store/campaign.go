package store

import (
	"database/sql"
	"fmt"
)

// CreateGroup inserts a new campaign group.
func (db *DB) CreateGroup(g *CampaignGroup) error {
	members, err := encodeList(g.Members)
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT INTO campaign_groups (id, name, members, created_at) VALUES (?, ?, ?, ?)`,
		g.ID, g.Name, members, g.CreatedAt)
	return err
}

// UpdateGroup replaces the name and member list of a group. Reports whether it existed.
func (db *DB) UpdateGroup(g *CampaignGroup) (bool, error) {
	members, err := encodeList(g.Members)
	if err != nil {
		return false, err
	}
	res, err := db.Exec(`UPDATE campaign_groups SET name = ?, members = ? WHERE id = ?`, g.Name, members, g.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteGroup removes a group. Reports whether it existed.
func (db *DB) DeleteGroup(id string) (bool, error) {
	res, err := db.Exec(`DELETE FROM campaign_groups WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetGroup returns a group by id, or nil if it does not exist.
func (db *DB) GetGroup(id string) (*CampaignGroup, error) {
	var g CampaignGroup
	var members string
	err := db.QueryRow(`SELECT id, name, members, created_at FROM campaign_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &members, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if g.Members, err = decodeList(members); err != nil {
		return nil, fmt.Errorf("group %q: %w", id, err)
	}
	return &g, nil
}

// ListGroups returns all groups, oldest first.
func (db *DB) ListGroups() ([]CampaignGroup, error) {
	rows, err := db.Query(`SELECT id, name, members, created_at FROM campaign_groups ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var groups []CampaignGroup
	for rows.Next() {
		var g CampaignGroup
		var members string
		if err := rows.Scan(&g.ID, &g.Name, &members, &g.CreatedAt); err != nil {
			return nil, err
		}
		if g.Members, err = decodeList(members); err != nil {
			return nil, fmt.Errorf("group %q: %w", g.ID, err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
