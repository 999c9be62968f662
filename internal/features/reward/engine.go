// Package reward implements the pluggable strategy engine that turns raw
// referral and trading activity into point awards. Strategies are pure given
// the period's config and the state snapshots handed in; persistence of the
// resulting deltas belongs to the referral service.
package reward

import (
	"time"

	"referral-rewards-backend/internal/common/errors"
	periodmodels "referral-rewards-backend/internal/features/period/models"
	"referral-rewards-backend/internal/features/referral/models"
)

// EventKind distinguishes the two facts consumed from the trading subsystem.
type EventKind string

const (
	EventSignup EventKind = "signup"
	EventBet    EventKind = "bet"
)

// Event is one unit of activity attributed to a wallet.
type Event struct {
	Kind   EventKind
	Wallet string
	Volume float64
	At     time.Time
}

// State carries the repository-derived snapshots a strategy may need beyond
// the event and the bettor's own inbound link.
type State struct {
	// BettorActiveReferrals is the betting wallet's current count of active
	// referrals (the wallet acting as referrer).
	BettorActiveReferrals int

	// TeamVolume is the volume already accumulated in the current team window
	// by the team the betting wallet belongs to, including this event.
	TeamVolume float64

	// ReferrerMonthShare is the inbound referrer's revenue-share total for the
	// current calendar month, before this event.
	ReferrerMonthShare float64
}

// Delta is the point award for one event. All fields are non-negative;
// ledgers only ever grow.
type Delta struct {
	// TradingPoints and BonusPoints are credited to the betting wallet.
	TradingPoints float64
	BonusPoints   float64

	// ReferrerBonus is credited to the wallet's inbound referrer.
	ReferrerBonus float64

	// Milestone labels that fired on this event, recorded on the link so each
	// fires at most once per referral.
	FiredMilestones        []string
	FiredRefereeMilestones []string
}

// Strategy is one reward variant. Implementations are stateless.
type Strategy interface {
	Name() periodmodels.StrategyType

	// ValidateConfig rejects structurally invalid strategy configs at period
	// creation time.
	ValidateConfig(cfg *periodmodels.StrategyConfig) error

	// IsActiveReferral decides whether a referral counts toward tier and
	// ranking eligibility.
	IsActiveReferral(link *models.ReferralLink, cfg *periodmodels.StrategyConfig, now time.Time) bool

	// ComputeDelta computes the award for one event. The link is the betting
	// wallet's inbound referral edge (nil for unreferred wallets) in its
	// state before the event.
	ComputeDelta(event Event, link *models.ReferralLink, st State, cfg *periodmodels.StrategyConfig) (Delta, error)
}

// Registry holds the closed set of strategies keyed by tag.
type Registry struct {
	strategies map[periodmodels.StrategyType]Strategy
}

// NewRegistry builds a registry with all four variants registered.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[periodmodels.StrategyType]Strategy)}
	r.register(&GrowthMultiplier{})
	r.register(&RevenueShare{})
	r.register(&MilestoneQuest{})
	r.register(&TeamVolume{})
	return r
}

func (r *Registry) register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get resolves a strategy tag. Unknown tags fail fast; the engine never
// silently computes zero for an unrecognized strategy.
func (r *Registry) Get(tag periodmodels.StrategyType) (Strategy, error) {
	s, ok := r.strategies[tag]
	if !ok {
		return nil, errors.NewUnsupportedStrategyError(string(tag))
	}
	return s, nil
}

// basePoints converts a bet's volume basis into trading points.
func basePoints(event Event) float64 {
	if event.Volume < 0 {
		return 0
	}
	return event.Volume
}

// hasFirstBet reports whether the referee behind the link has traded at all.
// Variants without their own activity bar use it as the active definition.
func hasFirstBet(link *models.ReferralLink) bool {
	return link != nil && link.FirstBetAt != nil
}
