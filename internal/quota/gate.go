package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/governance-api/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Subscription is what the gate needs to know about a caller.
type Subscription struct {
	UserID string
	Tier   Tier
	Usage  Usage
}

// SubscriptionStore resolves a caller's tier and current usage. Any error,
// including an unknown user, denies the request.
type SubscriptionStore interface {
	Subscription(ctx context.Context, userID string) (Subscription, error)
}

// Code classifies a gate rejection.
type Code string

const (
	CodeFeatureNotAvailable     Code = "feature_not_available"
	CodeTierRequired            Code = "tier_required"
	CodeQuotaExceeded           Code = "quota_exceeded"
	CodeSubscriptionUnavailable Code = "subscription_unavailable"
)

// Rejection is the structured payload returned to the client so it can
// render an upgrade prompt.
type Rejection struct {
	Code         Code     `json:"error"`
	Message      string   `json:"message"`
	Feature      Feature  `json:"feature,omitempty"`
	CurrentTier  string   `json:"current_tier,omitempty"`
	RequiredTier string   `json:"required_tier,omitempty"`
	Resource     Resource `json:"resource,omitempty"`
	Limit        *int     `json:"limit,omitempty"`
	CurrentCount *int     `json:"current_count,omitempty"`
}

type Decision struct {
	Allowed   bool
	Tier      Tier
	Rejection *Rejection
}

// RequirementKind says what a route declares.
type RequirementKind int

const (
	RequireNothing RequirementKind = iota
	RequireFeature
	RequireTier
	RequireQuota
)

// Requirement is the declaration attached to a route.
type Requirement struct {
	Kind     RequirementKind
	Feature  Feature
	Tier     Tier
	Resource Resource
}

func NeedsFeature(f Feature) Requirement {
	return Requirement{Kind: RequireFeature, Feature: f}
}

func NeedsTier(t Tier) Requirement {
	return Requirement{Kind: RequireTier, Tier: t}
}

func NeedsQuota(r Resource) Requirement {
	return Requirement{Kind: RequireQuota, Resource: r}
}

func (r Requirement) IsZero() bool {
	return r.Kind == RequireNothing
}

// Validate rejects declarations naming unknown features, tiers or resources,
// so a typo in a route table fails at startup instead of denying everyone.
func (r Requirement) Validate() error {
	switch r.Kind {
	case RequireNothing:
		return nil
	case RequireFeature:
		_, err := (Features{}).Has(r.Feature)
		return err
	case RequireTier:
		if !r.Tier.Valid() {
			return fmt.Errorf("%w: %d", ErrUnknownTier, int(r.Tier))
		}
		return nil
	case RequireQuota:
		_, err := (Limits{}).For(r.Resource)
		return err
	default:
		return fmt.Errorf("unknown requirement kind %d", r.Kind)
	}
}

// Gate evaluates route requirements against the caller's subscription.
type Gate struct {
	matrix  Matrix
	store   SubscriptionStore
	timeout time.Duration
	log     *logrus.Logger
}

func NewGate(matrix Matrix, store SubscriptionStore, timeout time.Duration, log *logrus.Logger) *Gate {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gate{
		matrix:  matrix,
		store:   store,
		timeout: timeout,
		log:     log,
	}
}

func (g *Gate) Matrix() Matrix { return g.matrix }

func (g *Gate) Check(ctx context.Context, userID string, req Requirement) Decision {
	switch req.Kind {
	case RequireFeature:
		return g.RequireFeature(ctx, userID, req.Feature)
	case RequireTier:
		return g.RequireTier(ctx, userID, req.Tier)
	case RequireQuota:
		return g.RequireQuota(ctx, userID, req.Resource)
	default:
		return Decision{Allowed: true}
	}
}

func (g *Gate) RequireFeature(ctx context.Context, userID string, f Feature) Decision {
	sub, rej := g.resolve(ctx, userID)
	if rej != nil {
		return g.deny(sub.Tier, rej)
	}

	if g.matrix.CheckFeature(sub.Tier, f) {
		return g.allow(sub.Tier)
	}

	rej = &Rejection{
		Code:        CodeFeatureNotAvailable,
		Feature:     f,
		CurrentTier: sub.Tier.String(),
	}
	if required, ok := g.matrix.MinimumTier(f); ok {
		rej.RequiredTier = required.String()
		rej.Message = fmt.Sprintf("%s requires the %s tier or higher. Your current tier is %s.", f.Label(), required, sub.Tier)
	} else {
		rej.Message = fmt.Sprintf("%s is not available on any tier.", f.Label())
	}
	return g.deny(sub.Tier, rej)
}

func (g *Gate) RequireTier(ctx context.Context, userID string, required Tier) Decision {
	sub, rej := g.resolve(ctx, userID)
	if rej != nil {
		return g.deny(sub.Tier, rej)
	}

	if sub.Tier >= required {
		return g.allow(sub.Tier)
	}

	return g.deny(sub.Tier, &Rejection{
		Code:         CodeTierRequired,
		Message:      fmt.Sprintf("This endpoint requires the %s tier or higher. Your current tier is %s.", required, sub.Tier),
		CurrentTier:  sub.Tier.String(),
		RequiredTier: required.String(),
	})
}

// RequireQuota admits when the caller can create one more of r. Counts come
// from the store; the gate never mutates them.
func (g *Gate) RequireQuota(ctx context.Context, userID string, r Resource) Decision {
	sub, rej := g.resolve(ctx, userID)
	if rej != nil {
		return g.deny(sub.Tier, rej)
	}

	current, err := sub.Usage.For(r)
	if err != nil {
		return g.deny(sub.Tier, &Rejection{Code: CodeQuotaExceeded, Message: err.Error(), Resource: r})
	}

	ok, msg := g.matrix.CheckResourceQuota(sub.Tier, r, current)
	if ok {
		return g.allow(sub.Tier)
	}

	limit, _ := g.matrix[sub.Tier].Limits.For(r)
	return g.deny(sub.Tier, &Rejection{
		Code:         CodeQuotaExceeded,
		Message:      msg,
		CurrentTier:  sub.Tier.String(),
		Resource:     r,
		Limit:        limit,
		CurrentCount: &current,
	})
}

func (g *Gate) resolve(ctx context.Context, userID string) (Subscription, *Rejection) {
	unavailable := &Rejection{
		Code:    CodeSubscriptionUnavailable,
		Message: "Unable to verify your subscription right now. Please try again.",
	}
	if userID == "" {
		return Subscription{}, unavailable
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	sub, err := g.store.Subscription(ctx, userID)
	if err == nil && !sub.Tier.Valid() {
		err = fmt.Errorf("%w: %d", ErrUnknownTier, int(sub.Tier))
	}
	if err != nil {
		g.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("Subscription lookup failed, denying request")
		metrics.RecordAdmission(metrics.LayerQuota, metrics.OutcomeFailed)
		return Subscription{}, unavailable
	}
	return sub, nil
}

func (g *Gate) allow(t Tier) Decision {
	metrics.RecordAdmission(metrics.LayerQuota, metrics.OutcomeAdmitted)
	return Decision{Allowed: true, Tier: t}
}

func (g *Gate) deny(t Tier, rej *Rejection) Decision {
	if rej.Code != CodeSubscriptionUnavailable {
		metrics.RecordAdmission(metrics.LayerQuota, metrics.OutcomeRejected)
	}
	return Decision{Allowed: false, Tier: t, Rejection: rej}
}
