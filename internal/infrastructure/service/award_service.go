// Package service contains infrastructure-side collaborators plugged
// into the application layer: award policies and notification delivery.
package service

import (
	"context"
	"fmt"

	"github.com/idorecall/referral-service/internal/domain/user"
	"github.com/idorecall/referral-service/pkg/logger"
)

// FixedAwardPolicy grants a fixed number of points to the referrer for
// every successful referral. This is the production policy.
type FixedAwardPolicy struct {
	repo   user.Repository
	amount user.Points
	log    *logger.Logger
}

// NewFixedAwardPolicy creates a policy granting amount points per referral.
func NewFixedAwardPolicy(repo user.Repository, amount user.Points, log *logger.Logger) *FixedAwardPolicy {
	return &FixedAwardPolicy{
		repo:   repo,
		amount: amount,
		log:    log,
	}
}

// Award credits the referrer. The referred user receives nothing.
func (p *FixedAwardPolicy) Award(ctx context.Context, referrerID, referredID string) error {
	if err := p.repo.AddPoints(ctx, referrerID, p.amount); err != nil {
		return fmt.Errorf("failed to award referral points: %w", err)
	}

	p.log.Info("referral points awarded",
		logger.ReferrerID(referrerID),
		logger.UserID(referredID),
		logger.PointsAmount(int(p.amount)),
	)

	return nil
}

// NoopAwardPolicy ignores referral events. Used when the deployment
// tracks referral links without granting points.
type NoopAwardPolicy struct{}

// NewNoopAwardPolicy creates a policy that awards nothing.
func NewNoopAwardPolicy() *NoopAwardPolicy {
	return &NoopAwardPolicy{}
}

// Award does nothing.
func (p *NoopAwardPolicy) Award(ctx context.Context, referrerID, referredID string) error {
	return nil
}

var (
	_ user.AwardPolicy = (*FixedAwardPolicy)(nil)
	_ user.AwardPolicy = (*NoopAwardPolicy)(nil)
)
