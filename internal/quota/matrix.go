package quota

import (
	"errors"
	"fmt"
	"strings"
)

// TierDefinition is the static description of one tier.
type TierDefinition struct {
	Tier     Tier     `json:"tier"`
	Limits   Limits   `json:"limits"`
	Features Features `json:"features"`
}

// Matrix has exactly one definition per tier, indexed by Tier.
type Matrix [tierCount]TierDefinition

// DefaultMatrix is the plan matrix the service ships with.
func DefaultMatrix() Matrix {
	return Matrix{
		TierFree: {
			Tier: TierFree,
			Limits: Limits{
				Projects:          Limit(1),
				TeamMembers:       Limit(1),
				QuestionsPerMonth: Limit(50),
			},
		},
		TierProfessional: {
			Tier: TierProfessional,
			Limits: Limits{
				Projects:          Limit(10),
				TeamMembers:       Limit(5),
				QuestionsPerMonth: Limit(1000),
			},
			Features: Features{
				DirectMode:       true,
				CodeGeneration:   true,
				Collaboration:    true,
				RepositoryImport: true,
			},
		},
		TierEnterprise: {
			Tier: TierEnterprise,
			Features: Features{
				DirectMode:        true,
				CodeGeneration:    true,
				Collaboration:     true,
				RepositoryImport:  true,
				AdvancedAnalytics: true,
				MultiProviderLLM:  true,
				APIAccess:         true,
			},
		},
	}
}

// Validate checks that every slot holds its own tier and that limits and
// features never shrink from one tier to the next. An invalid matrix must
// stop the process from starting.
func (m Matrix) Validate() error {
	var errs []error

	for i, def := range m {
		if def.Tier != Tier(i) {
			errs = append(errs, fmt.Errorf("matrix slot %s holds tier %s", Tier(i), def.Tier))
		}
		for _, r := range allResources {
			if l, _ := def.Limits.For(r); l != nil && *l < 0 {
				errs = append(errs, fmt.Errorf("%s: %s limit is negative", def.Tier, r))
			}
		}
	}

	for i := 1; i < len(m); i++ {
		lower, higher := m[i-1], m[i]

		for _, r := range allResources {
			lo, _ := lower.Limits.For(r)
			hi, _ := higher.Limits.For(r)
			if !limitAtLeast(hi, lo) {
				errs = append(errs, fmt.Errorf("%s %s limit %s is below %s limit %s",
					higher.Tier, r, formatLimit(hi), lower.Tier, formatLimit(lo)))
			}
		}

		for _, f := range allFeatures {
			lo, _ := lower.Features.Has(f)
			hi, _ := higher.Features.Has(f)
			if lo && !hi {
				errs = append(errs, fmt.Errorf("%s removes feature %s granted to %s", higher.Tier, f, lower.Tier))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid tier matrix: %w", errors.Join(errs...))
	}
	return nil
}

// limitAtLeast reports a >= b where nil is unlimited.
func limitAtLeast(a, b *int) bool {
	switch {
	case a == nil:
		return true
	case b == nil:
		return false
	default:
		return *a >= *b
	}
}

func formatLimit(l *int) string {
	if l == nil {
		return "unlimited"
	}
	return fmt.Sprint(*l)
}

func (m Matrix) Definition(t Tier) (TierDefinition, error) {
	if !t.Valid() {
		return TierDefinition{}, fmt.Errorf("%w: %d", ErrUnknownTier, int(t))
	}
	return m[t], nil
}

// CheckResourceQuota allows one more of r when the tier's limit is unlimited
// or current is below it. The message names the limit and tier on rejection.
func (m Matrix) CheckResourceQuota(tier Tier, r Resource, current int) (bool, string) {
	def, err := m.Definition(tier)
	if err != nil {
		return false, err.Error()
	}
	limit, err := def.Limits.For(r)
	if err != nil {
		return false, err.Error()
	}

	if limit == nil {
		return true, fmt.Sprintf("Unlimited %s on %s tier", strings.ReplaceAll(string(r), "_", " "), tier)
	}
	if current < *limit {
		return true, fmt.Sprintf("%s usage %d of %d on %s tier", r.label(), current, *limit, tier)
	}
	return false, fmt.Sprintf("%s limit (%d) reached for %s tier", r.label(), *limit, tier)
}

// CheckFeature reports whether tier grants f. Unknown tiers and features grant nothing.
func (m Matrix) CheckFeature(tier Tier, f Feature) bool {
	def, err := m.Definition(tier)
	if err != nil {
		return false
	}
	ok, err := def.Features.Has(f)
	return err == nil && ok
}

// MinimumTier is the lowest tier granting f, used for upgrade prompts.
func (m Matrix) MinimumTier(f Feature) (Tier, bool) {
	for _, t := range AllTiers() {
		if m.CheckFeature(t, f) {
			return t, true
		}
	}
	return 0, false
}
