package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-churiwal/governance-api/internal/models"
	"github.com/aman-churiwal/governance-api/internal/quota"
	"golang.org/x/sync/singleflight"
)

var ErrUserNotFound = errors.New("user not found")

// lookupTimeout bounds a shared lookup once it no longer follows a caller's deadline.
const lookupTimeout = 2 * time.Second

// UserStore is the persistence the subscription service reads.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateTier(ctx context.Context, id, tier string) error
}

// SubscriptionService resolves tiers and usage for the quota gate. Every
// check reads the store; concurrent lookups for one user share a query.
type SubscriptionService struct {
	users UserStore
	group singleflight.Group
}

func NewSubscriptionService(users UserStore) *SubscriptionService {
	return &SubscriptionService{users: users}
}

// Subscription implements quota.SubscriptionStore. The shared lookup runs
// detached from any one caller, so a caller that goes away does not fail
// the others waiting on it; each caller still stops waiting on its own ctx.
func (s *SubscriptionService) Subscription(ctx context.Context, userID string) (quota.Subscription, error) {
	ch := s.group.DoChan(userID, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return s.load(lookupCtx, userID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return quota.Subscription{}, res.Err
		}
		return res.Val.(quota.Subscription), nil
	case <-ctx.Done():
		return quota.Subscription{}, ctx.Err()
	}
}

func (s *SubscriptionService) load(ctx context.Context, userID string) (quota.Subscription, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return quota.Subscription{}, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	if user == nil {
		return quota.Subscription{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	tier, err := quota.ParseTier(user.Tier)
	if err != nil {
		return quota.Subscription{}, fmt.Errorf("user %s: %w", userID, err)
	}

	return quota.Subscription{
		UserID: userID,
		Tier:   tier,
		Usage: quota.Usage{
			Projects:           user.ProjectsCount,
			TeamMembers:        user.TeamMembersCount,
			QuestionsThisMonth: user.QuestionsThisMonth,
		},
	}, nil
}

// ChangeTier moves a user to another tier. The next check sees it.
func (s *SubscriptionService) ChangeTier(ctx context.Context, userID string, tier quota.Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: %d", quota.ErrUnknownTier, int(tier))
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	if user == nil {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	return s.users.UpdateTier(ctx, userID, tier.String())
}
