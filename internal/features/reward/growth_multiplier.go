package reward

import (
	"time"

	"referral-rewards-backend/internal/common/errors"
	periodmodels "referral-rewards-backend/internal/features/period/models"
	"referral-rewards-backend/internal/features/referral/models"
)

// GrowthMultiplier scales a referrer's own trading points by a tier
// multiplier earned through the number of active referrals they hold.
type GrowthMultiplier struct{}

func (s *GrowthMultiplier) Name() periodmodels.StrategyType {
	return periodmodels.StrategyGrowthMultiplier
}

func (s *GrowthMultiplier) ValidateConfig(cfg *periodmodels.StrategyConfig) error {
	if cfg == nil || len(cfg.Tiers) == 0 {
		return errors.NewValidationError("strategy_config.tiers", "at least one tier is required")
	}
	prev := -1
	for i, tier := range cfg.Tiers {
		if tier.Referrals <= prev {
			return errors.NewValidationError("strategy_config.tiers", "tiers must be sorted ascending by referrals with unique thresholds")
		}
		if tier.Referrals < 1 {
			return errors.NewValidationError("strategy_config.tiers", "tier referral threshold must be at least 1")
		}
		if tier.Multiplier < 1 {
			return errors.NewValidationError("strategy_config.tiers", "tier multiplier must be at least 1")
		}
		prev = cfg.Tiers[i].Referrals
	}
	if cfg.ActiveDefinition == nil {
		return errors.NewValidationError("strategy_config.active_definition", "active definition is required")
	}
	if cfg.ActiveDefinition.BetWithinDays <= 0 {
		return errors.NewValidationError("strategy_config.active_definition.bet_within_days", "must be positive")
	}
	if cfg.ActiveDefinition.MinLifetimeVolume < 0 {
		return errors.NewValidationError("strategy_config.active_definition.min_lifetime_volume", "must not be negative")
	}
	return nil
}

// IsActiveReferral: lifetime volume has met the bar and the most recent bet
// is within the recency window.
func (s *GrowthMultiplier) IsActiveReferral(link *models.ReferralLink, cfg *periodmodels.StrategyConfig, now time.Time) bool {
	if link == nil || cfg.ActiveDefinition == nil {
		return false
	}
	def := cfg.ActiveDefinition
	if link.LifetimeVolume < def.MinLifetimeVolume {
		return false
	}
	if link.LastBetAt == nil {
		return false
	}
	cutoff := now.Add(-time.Duration(def.BetWithinDays) * 24 * time.Hour)
	return !link.LastBetAt.Before(cutoff)
}

func (s *GrowthMultiplier) ComputeDelta(event Event, link *models.ReferralLink, st State, cfg *periodmodels.StrategyConfig) (Delta, error) {
	if event.Kind != EventBet {
		return Delta{}, nil
	}

	return Delta{
		TradingPoints: basePoints(event) * MultiplierForCount(cfg.Tiers, st.BettorActiveReferrals),
	}, nil
}

// MultiplierForCount picks the multiplier of the highest tier whose threshold
// the active-referral count meets. Below the lowest tier the multiplier is 1.
func MultiplierForCount(tiers []periodmodels.Tier, activeReferrals int) float64 {
	multiplier := 1.0
	for _, tier := range tiers {
		if activeReferrals >= tier.Referrals {
			multiplier = tier.Multiplier
		}
	}
	return multiplier
}
