package domain

import (
	"sort"
	"time"
)

// Category selects which face set(s) a decision is drawn from
type Category string

const (
	CategoryActivity Category = "activity"
	CategoryFood     Category = "food"
	CategoryMovie    Category = "movie"
	// CategoryQuick draws one activity and one food face
	CategoryQuick Category = "quick"
)

// Categories lists every category a decision can be created with
var Categories = []Category{CategoryActivity, CategoryFood, CategoryMovie, CategoryQuick}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a decision
type Status string

const (
	StatusOpen     Status = "open"
	StatusAccepted Status = "accepted"
	StatusRerolled Status = "rerolled"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further transition may leave s
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRerolled || s == StatusExpired
}

// Label is a localized display string pair
type Label struct {
	EN string `json:"en"`
	FR string `json:"fr"`
}

// Result is one drawn face. Immutable once attached to a decision.
type Result struct {
	FaceID string `json:"face_id"`
	Emoji  string `json:"emoji"`
	Label  Label  `json:"label"`
}

// VoteSet is a sorted, duplicate-free set of member ids.
// The zero value is an empty set.
type VoteSet []string

// NewVoteSet builds a canonical set from members in any order
func NewVoteSet(members ...string) VoteSet {
	if len(members) == 0 {
		return VoteSet{}
	}
	seen := make(map[string]struct{}, len(members))
	set := make(VoteSet, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		set = append(set, m)
	}
	sort.Strings(set)
	return set
}

// Contains reports whether member is in the set
func (v VoteSet) Contains(member string) bool {
	i := sort.SearchStrings(v, member)
	return i < len(v) && v[i] == member
}

// Toggle returns a new set with member added if absent or removed if present.
// The receiver is never modified.
func (v VoteSet) Toggle(member string) VoteSet {
	next := make(VoteSet, 0, len(v)+1)
	i := sort.SearchStrings(v, member)
	if i < len(v) && v[i] == member {
		next = append(next, v[:i]...)
		return append(next, v[i+1:]...)
	}
	next = append(next, v[:i]...)
	next = append(next, member)
	return append(next, v[i:]...)
}

// Equal reports whether both sets hold the same members
func (v VoteSet) Equal(other VoteSet) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if v[i] != other[i] {
			return false
		}
	}
	return true
}

// Len returns the number of votes
func (v VoteSet) Len() int {
	return len(v)
}

// Decision is a proposed outcome awaiting group endorsement
type Decision struct {
	ID           string     `json:"id"`
	GroupID      string     `json:"group_id"`
	CreatedBy    string     `json:"created_by"`
	Category     Category   `json:"category"`
	Results      []Result   `json:"results"`
	Status       Status     `json:"status"`
	Votes        VoteSet    `json:"votes"`
	RerolledFrom *string    `json:"rerolled_from,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// IsOpen reports whether the decision still accepts votes
func (d *Decision) IsOpen() bool {
	return d.Status == StatusOpen
}

// IsReroll reports whether the decision replaced an earlier one
func (d *Decision) IsReroll() bool {
	return d.RerolledFrom != nil
}

// CreateDecisionRequest is the body of a create call
type CreateDecisionRequest struct {
	Category Category `json:"category"`
}

// VoteOutcome is returned from a vote toggle
type VoteOutcome struct {
	Decision  *Decision `json:"decision"`
	Voted     bool      `json:"voted"`
	Accepted  bool      `json:"accepted"`
	Threshold int       `json:"threshold"`
}

// OpenDecisionStatus answers whether a group currently has a live decision
type OpenDecisionStatus struct {
	GroupID  string    `json:"group_id"`
	HasOpen  bool      `json:"has_open"`
	Decision *Decision `json:"decision,omitempty"`
}
