// Package waitlist holds the scoring, ranking and assignment rules for the
// ambassador waitlist. Everything here is pure; randomness is injected.
package waitlist

import (
	"errors"
	"strings"
)

// ErrNegativeDelta is returned when a point change would lower a total.
var ErrNegativeDelta = errors.New("waitlist: point delta must not be negative")

// Config carries the formula constants. The zero value is not useful; use
// DefaultConfig or Normalize a loaded one.
type Config struct {
	BaseScore          int
	PerInterest        int
	ContentBonus       int
	PerHouseholdMember int
	HouseholdCap       int
	PoolSize           int
	PointsPerRank      int
}

// DefaultConfig returns the launch formula.
func DefaultConfig() Config {
	return Config{
		BaseScore:          10,
		PerInterest:        5,
		ContentBonus:       20,
		PerHouseholdMember: 3,
		HouseholdCap:       10,
		PoolSize:           1000,
		PointsPerRank:      1,
	}
}

// Normalize clamps negative increments to zero and fills a missing pool.
func (c Config) Normalize() Config {
	c.BaseScore = nonNegative(c.BaseScore)
	c.PerInterest = nonNegative(c.PerInterest)
	c.ContentBonus = nonNegative(c.ContentBonus)
	c.PerHouseholdMember = nonNegative(c.PerHouseholdMember)
	if c.HouseholdCap < 1 {
		c.HouseholdCap = 1
	}
	if c.PoolSize < 1 {
		c.PoolSize = DefaultConfig().PoolSize
	}
	c.PointsPerRank = nonNegative(c.PointsPerRank)
	return c
}

// ScoreInput is the slice of the intake form that feeds the score.
type ScoreInput struct {
	Interests       []string
	HouseholdSize   int
	ContentUploaded bool
}

// Score derives the intake score. Duplicate and blank interests count once
// and not at all respectively.
func (c Config) Score(in ScoreInput) int {
	score := c.BaseScore
	score += c.PerInterest * countDistinct(in.Interests)
	if in.ContentUploaded {
		score += c.ContentBonus
	}
	household := in.HouseholdSize
	if household < 1 {
		household = 1
	}
	if household > c.HouseholdCap {
		household = c.HouseholdCap
	}
	score += c.PerHouseholdMember * household
	return nonNegative(score)
}

// Position maps a point total to a waitlist position. Lower is better and
// the result is never below 1.
func (c Config) Position(points int) int {
	points = nonNegative(points)
	position := c.PoolSize - points*c.PointsPerRank
	if position < 1 {
		return 1
	}
	return position
}

// Ledger is the outcome of applying a point change.
type Ledger struct {
	Total    int `json:"total"`
	Position int `json:"waitlist_position"`
}

// ApplyPoints adds delta to current and re-derives the position.
func (c Config) ApplyPoints(current, delta int) (Ledger, error) {
	if delta < 0 {
		return Ledger{}, ErrNegativeDelta
	}
	total := current + delta
	return Ledger{Total: total, Position: c.Position(total)}, nil
}

func countDistinct(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
