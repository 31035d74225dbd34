package domain

import (
	"math"
	"strings"
)

// Status is the moderation state of a recipe.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
)

// Statuses lists every moderation state in display order.
var Statuses = []Status{StatusDraft, StatusPending, StatusPublished, StatusRejected}

// ParseStatus converts s into a Status. Matching ignores surrounding
// whitespace and case; ok is false for unknown values.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusDraft, StatusPending, StatusPublished, StatusRejected:
		return st, true
	}
	return "", false
}

// Valid reports whether s is a known moderation state.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPublished, StatusRejected:
		return true
	}
	return false
}

// Difficulty is the self-declared difficulty of a recipe.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of easy, medium or hard.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Role is the coarse permission level of a principal.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
)

// ParseRole returns the stored role for s. Anonymous is not a storable role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAdmin:
		return r, true
	}
	return "", false
}

// Aggregate is the derived rating summary of a recipe.
type Aggregate struct {
	AverageRating float64 `json:"averageRating"`
	RatingCount   int     `json:"totalRatings"`
}

// ComputeAggregate returns the arithmetic mean of values rounded to one
// decimal place, together with the number of values. An empty slice yields
// the zero Aggregate.
func ComputeAggregate(values []int) Aggregate {
	if len(values) == 0 {
		return Aggregate{}
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return Aggregate{
		AverageRating: RoundRating(float64(sum) / float64(len(values))),
		RatingCount:   len(values),
	}
}

// RoundRating rounds v to one decimal place, halves away from zero.
func RoundRating(v float64) float64 {
	return math.Round(v*10) / 10
}
