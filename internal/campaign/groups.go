package campaign

import (
	"fmt"
	"strings"

	"github.com/matheus3301/wabot/internal/store"
	"github.com/matheus3301/wabot/internal/transport"
)

// normalizeMembers maps members to JIDs, dropping blanks and duplicates while
// keeping first-seen order.
func normalizeMembers(members []string) []string {
	out := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		jid := transport.EnsureJID(m)
		if jid == "" {
			continue
		}
		if _, dup := seen[jid]; dup {
			continue
		}
		seen[jid] = struct{}{}
		out = append(out, jid)
	}
	return out
}

// CreateGroup stores a new named recipient list.
func (s *Service) CreateGroup(name string, members []string) (*store.CampaignGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyGroupName
	}
	g := &store.CampaignGroup{
		ID:        s.newID(),
		Name:      name,
		Members:   normalizeMembers(members),
		CreatedAt: s.now().UnixMilli(),
	}
	if err := s.db.CreateGroup(g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

// UpdateGroup replaces the name and members of a group.
func (s *Service) UpdateGroup(id, name string, members []string) (*store.CampaignGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyGroupName
	}
	g, err := s.db.GetGroup(id)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}
	g.Name = name
	g.Members = normalizeMembers(members)
	ok, err := s.db.UpdateGroup(g)
	if err != nil {
		return nil, fmt.Errorf("update group: %w", err)
	}
	if !ok {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

// DeleteGroup removes a group. History records that used it are kept.
func (s *Service) DeleteGroup(id string) error {
	ok, err := s.db.DeleteGroup(id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if !ok {
		return ErrGroupNotFound
	}
	return nil
}

// Group returns one group.
func (s *Service) Group(id string) (*store.CampaignGroup, error) {
	g, err := s.db.GetGroup(id)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

// ListGroups returns every group, oldest first.
func (s *Service) ListGroups() ([]store.CampaignGroup, error) {
	return s.db.ListGroups()
}
