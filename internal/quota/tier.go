// Package quota decides whether a subscription tier grants a feature, a
// minimum tier, or room for one more resource. The tier matrix is static and
// validated at startup; the Gate resolves the caller's subscription and
// fails closed when it cannot.
package quota

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTier     = errors.New("unknown tier")
	ErrUnknownFeature  = errors.New("unknown feature")
	ErrUnknownResource = errors.New("unknown resource")
)

// Tier is ordered: a higher value is a higher plan.
type Tier int

const (
	TierFree Tier = iota
	TierProfessional
	TierEnterprise

	tierCount
)

var tierNames = [tierCount]string{
	TierFree:         "free",
	TierProfessional: "professional",
	TierEnterprise:   "enterprise",
}

// AllTiers lists tiers in ascending order.
func AllTiers() []Tier {
	tiers := make([]Tier, 0, tierCount)
	for t := TierFree; t < tierCount; t++ {
		tiers = append(tiers, t)
	}
	return tiers
}

func (t Tier) Valid() bool {
	return t >= TierFree && t < tierCount
}

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier accepts the tier names and "pro" for professional.
func ParseTier(s string) (Tier, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "pro" {
		return TierProfessional, nil
	}
	for t, n := range tierNames {
		if n == name {
			return Tier(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
