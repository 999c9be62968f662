package reward

import (
	"time"

	"referral-rewards-backend/internal/common/errors"
	periodmodels "referral-rewards-backend/internal/features/period/models"
	"referral-rewards-backend/internal/features/referral/models"
)

// RevenueShare pays the referrer a percentage of each qualifying referee
// trade, capped per referral over its lifetime and per referrer per calendar
// month. The referee's own trading points are unaffected.
type RevenueShare struct{}

func (s *RevenueShare) Name() periodmodels.StrategyType {
	return periodmodels.StrategyRevenueShare
}

func (s *RevenueShare) ValidateConfig(cfg *periodmodels.StrategyConfig) error {
	if cfg == nil || cfg.SharePercentage <= 0 || cfg.SharePercentage > 100 {
		return errors.NewValidationError("strategy_config.share_percentage", "must be in (0, 100]")
	}
	if cfg.MaxPerReferral < 0 {
		return errors.NewValidationError("strategy_config.max_per_referral", "must not be negative")
	}
	if cfg.MaxMonthlyTotal < 0 {
		return errors.NewValidationError("strategy_config.max_monthly_total", "must not be negative")
	}
	if cfg.DurationDays != nil && *cfg.DurationDays <= 0 {
		return errors.NewValidationError("strategy_config.duration_days", "must be positive when set")
	}
	return nil
}

func (s *RevenueShare) IsActiveReferral(link *models.ReferralLink, cfg *periodmodels.StrategyConfig, now time.Time) bool {
	return hasFirstBet(link)
}

func (s *RevenueShare) ComputeDelta(event Event, link *models.ReferralLink, st State, cfg *periodmodels.StrategyConfig) (Delta, error) {
	if event.Kind != EventBet {
		return Delta{}, nil
	}

	delta := Delta{TradingPoints: basePoints(event)}

	if link == nil {
		return delta, nil
	}

	// Relationship aged out: the referee keeps trading, the share stops.
	if cfg.DurationDays != nil {
		expiry := link.LinkedAt.Add(time.Duration(*cfg.DurationDays) * 24 * time.Hour)
		if event.At.After(expiry) {
			return delta, nil
		}
	}

	share := basePoints(event) * cfg.SharePercentage / 100

	if cfg.MaxPerReferral > 0 {
		remaining := cfg.MaxPerReferral - link.ShareAccrued
		if remaining < 0 {
			remaining = 0
		}
		if share > remaining {
			share = remaining
		}
	}

	if cfg.MaxMonthlyTotal > 0 {
		remaining := cfg.MaxMonthlyTotal - st.ReferrerMonthShare
		if remaining < 0 {
			remaining = 0
		}
		if share > remaining {
			share = remaining
		}
	}

	delta.ReferrerBonus = share
	return delta, nil
}
