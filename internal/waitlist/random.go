package waitlist

import (
	"math/rand"
	"strings"
)

// RandomSource is the randomness the package consumes. *rand.Rand
// satisfies it.
type RandomSource interface {
	Float64() float64
	Intn(n int) int
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }
func (globalSource) Intn(n int) int   { return rand.Intn(n) }

// GlobalSource returns a goroutine-safe source backed by the process-wide
// generator.
func GlobalSource() RandomSource {
	return globalSource{}
}

// ReferralCodeLength is the number of characters in a referral code.
const ReferralCodeLength = 8

// ReferralAlphabet omits 0, O, 1 and I so codes survive being read aloud.
const ReferralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ReferralCode draws a fresh code. Uniqueness is the storage layer's job.
func ReferralCode(src RandomSource) string {
	if src == nil {
		src = GlobalSource()
	}
	var b strings.Builder
	b.Grow(ReferralCodeLength)
	for i := 0; i < ReferralCodeLength; i++ {
		b.WriteByte(ReferralAlphabet[src.Intn(len(ReferralAlphabet))])
	}
	return b.String()
}

// IsReferralCode reports whether raw has the shape of a generated code.
func IsReferralCode(raw string) bool {
	if len(raw) != ReferralCodeLength {
		return false
	}
	for i := 0; i < len(raw); i++ {
		if strings.IndexByte(ReferralAlphabet, raw[i]) < 0 {
			return false
		}
	}
	return true
}

// Weighted is one candidate for SelectWeighted.
type Weighted struct {
	Name   string
	Weight float64
}

// SelectWeighted picks one item with probability proportional to its
// weight. Negative weights count as zero. An empty slice returns false;
// when every weight is zero the first item is returned.
func SelectWeighted(items []Weighted, src RandomSource) (Weighted, bool) {
	if len(items) == 0 {
		return Weighted{}, false
	}
	var total float64
	for _, item := range items {
		if item.Weight > 0 {
			total += item.Weight
		}
	}
	if total <= 0 {
		return items[0], true
	}
	if src == nil {
		src = GlobalSource()
	}
	r := src.Float64() * total
	for _, item := range items {
		if item.Weight <= 0 {
			continue
		}
		r -= item.Weight
		if r < 0 {
			return item, true
		}
	}
	// float drift can leave r at exactly zero after the last positive weight
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Weight > 0 {
			return items[i], true
		}
	}
	return items[0], true
}
