package models

import (
	"errors"
	"fmt"
)

var ErrInvalidRecord = errors.New("invalid record")

// Member is a participant in a group.
type Member struct {
	// ID is assigned when the member joins the group (UUID format) and is
	// never reused.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`
}

// Group represents a set of members who share expenses.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Roommates", "Ski Trip").
	Name string `json:"name"`

	// Members is the roster in join order.
	Members []Member `json:"members"`

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64 `json:"created_at"`
}

// MemberIDs returns the roster IDs in join order.
func (g *Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

// HasMember reports whether id is on the roster.
func (g *Group) HasMember(id string) bool {
	for _, m := range g.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Validate checks required fields and member ID uniqueness.
func (g *Group) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("%w: group name required", ErrInvalidRecord)
	}
	seen := make(map[string]bool, len(g.Members))
	for _, m := range g.Members {
		if m.Name == "" {
			return fmt.Errorf("%w: member name required", ErrInvalidRecord)
		}
		if m.ID != "" && seen[m.ID] {
			return fmt.Errorf("%w: duplicate member id %s", ErrInvalidRecord, m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}
