package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/polycle/member/internal/sheet"
)

// MembersTab is the tab the team roster lives in.
const MembersTab = "Members"

// Default role for members created by login.
const RoleMember = "member"

const (
	colSlug        = "slug"
	colSlackUserID = "slackUserId"
	colRole        = "role"
	colJoinedAt    = "joinedAt"
)

var memberHeader = []string{colSlug, colName, colEmail, colSlackUserID, colRole, colJoinedAt}

// Member is one person on the team.
type Member struct {
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	SlackUserID string    `json:"slackUserId,omitempty"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

func (m Member) record() Record {
	return Record{
		colSlug:        m.Slug,
		colName:        m.Name,
		colEmail:       m.Email,
		colSlackUserID: m.SlackUserID,
		colRole:        m.Role,
		colJoinedAt:    formatTime(m.JoinedAt),
	}
}

func memberFromRecord(rec Record) Member {
	return Member{
		Slug:        NormalizeSlug(rec[colSlug]),
		Name:        rec[colName],
		Email:       rec[colEmail],
		SlackUserID: rec[colSlackUserID],
		Role:        rec[colRole],
		JoinedAt:    parseTime(rec[colJoinedAt]),
	}
}

func matchMember(slug string) func(Record) bool {
	return func(rec Record) bool { return NormalizeSlug(rec[colSlug]) == slug }
}

// mergeMember keeps joinedAt and role, and does not let a login through one
// provider erase the identifiers recorded by the other.
func mergeMember(existing, incoming Record) Record {
	out := Overlay(existing, incoming)
	for _, col := range []string{colJoinedAt, colRole} {
		if existing[col] != "" {
			out[col] = existing[col]
		}
	}
	for _, col := range []string{colEmail, colSlackUserID, colName} {
		if incoming[col] == "" {
			out[col] = existing[col]
		}
	}
	return out
}

// Members is the roster repository.
type Members struct {
	table *Table
	now   func() time.Time
}

// NewMembers returns a roster repository over grid.
func NewMembers(grid sheet.Grid, opts Options) *Members {
	return &Members{
		table: NewTable(grid, MembersTab, memberHeader, opts),
		now:   time.Now,
	}
}

// List returns every member sorted by slug.
func (r *Members) List(ctx context.Context) ([]Member, error) {
	recs, err := r.table.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	seen := make(map[string]bool, len(recs))
	out := make([]Member, 0, len(recs))
	for _, rec := range recs {
		m := memberFromRecord(rec)
		if m.Slug == "" || seen[m.Slug] {
			continue
		}
		seen[m.Slug] = true
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// Get returns the member with slug.
func (r *Members) Get(ctx context.Context, slug string) (Member, error) {
	slug = NormalizeSlug(slug)
	members, err := r.List(ctx)
	if err != nil {
		return Member{}, err
	}
	for _, m := range members {
		if m.Slug == slug {
			return m, nil
		}
	}
	return Member{}, fmt.Errorf("%w: member %s", ErrNotFound, slug)
}

// Upsert records m, deriving the slug from the email or name when empty.
// joinedAt and role survive later logins.
func (r *Members) Upsert(ctx context.Context, m Member) (Member, error) {
	if m.Slug == "" {
		m.Slug = m.Email
	}
	if m.Slug == "" {
		m.Slug = m.Name
	}
	m.Slug = NormalizeSlug(m.Slug)
	if m.Slug == "" {
		return Member{}, fmt.Errorf("%w: member needs a slug, email or name", ErrInvalid)
	}
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	if m.Role == "" {
		m.Role = RoleMember
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = r.now().UTC()
	}

	res, err := r.table.Upsert(ctx, m.record(), matchMember(m.Slug), mergeMember)
	if err != nil {
		return Member{}, fmt.Errorf("saving member %s: %w", m.Slug, err)
	}
	return memberFromRecord(res.Record), nil
}

// Ensure creates the Members tab when it is missing.
func (r *Members) Ensure(ctx context.Context) error {
	return r.table.Ensure(ctx)
}
