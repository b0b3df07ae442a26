package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate is one "N per period" tuple.
type Rate struct {
	Limit  int
	Period time.Duration
}

var periods = map[string]time.Duration{
	"minute": time.Minute,
	"hour":   time.Hour,
}

// ParseRate parses "{N}/{minute|hour}".
func ParseRate(s string) (Rate, error) {
	n, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: expected N/period", s)
	}

	limit, err := strconv.Atoi(strings.TrimSpace(n))
	if err != nil || limit <= 0 {
		return Rate{}, fmt.Errorf("invalid rate %q: limit must be a positive integer", s)
	}

	period, ok := periods[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: period must be minute or hour", s)
	}

	return Rate{Limit: limit, Period: period}, nil
}

func (r Rate) String() string {
	unit := "minute"
	if r.Period == time.Hour {
		unit = "hour"
	}
	return fmt.Sprintf("%d/%s", r.Limit, unit)
}

func (r Rate) periodSeconds() int64 {
	return int64(r.Period / time.Second)
}

// Class names an endpoint class with its own limit tuples.
type Class string

const (
	ClassDefault          Class = "default"
	ClassAuthentication   Class = "authentication"
	ClassChat             Class = "chat"
	ClassTierFree         Class = "tier_free"
	ClassTierProfessional Class = "tier_professional"
	ClassTierEnterprise   Class = "tier_enterprise"
	ClassHealth           Class = "health"
)

// TierClass maps a subscription tier name to its session class.
func TierClass(tier string) (Class, bool) {
	switch strings.ToLower(tier) {
	case "free":
		return ClassTierFree, true
	case "professional", "pro":
		return ClassTierProfessional, true
	case "enterprise":
		return ClassTierEnterprise, true
	default:
		return "", false
	}
}

// Policy holds the limit tuples per class. A class with no tuples is unlimited.
type Policy map[Class][]Rate

// ParsePolicy builds a Policy from configuration. Every rate string must
// parse and the default class must exist, since unknown classes fall back to it.
func ParsePolicy(classes map[string][]string) (Policy, error) {
	p := make(Policy, len(classes))
	for name, specs := range classes {
		rates := make([]Rate, 0, len(specs))
		for _, spec := range specs {
			r, err := ParseRate(spec)
			if err != nil {
				return nil, fmt.Errorf("rate class %s: %w", name, err)
			}
			rates = append(rates, r)
		}
		p[Class(name)] = rates
	}

	if _, ok := p[ClassDefault]; !ok {
		return nil, fmt.Errorf("rate class %s is required", ClassDefault)
	}
	return p, nil
}

// Rates returns the tuples for class, falling back to the default class.
func (p Policy) Rates(class Class) []Rate {
	if rates, ok := p[class]; ok {
		return rates
	}
	return p[ClassDefault]
}
