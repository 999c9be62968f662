package reward

import (
	"time"

	"referral-rewards-backend/internal/common/errors"
	periodmodels "referral-rewards-backend/internal/features/period/models"
	"referral-rewards-backend/internal/features/referral/models"
)

// TeamVolume scales every team member's trading points by the multiplier of
// the highest tier the team's window volume has reached. A team is a referrer
// plus their active referrals; windows are calendar-aligned and reset
// independently of the outer period.
type TeamVolume struct{}

func (s *TeamVolume) Name() periodmodels.StrategyType {
	return periodmodels.StrategyTeamVolume
}

func (s *TeamVolume) ValidateConfig(cfg *periodmodels.StrategyConfig) error {
	if cfg == nil || len(cfg.TeamTiers) == 0 {
		return errors.NewValidationError("strategy_config.team_tiers", "at least one tier is required")
	}
	if cfg.ResetFrequency != periodmodels.FrequencyWeekly && cfg.ResetFrequency != periodmodels.FrequencyMonthly {
		return errors.NewValidationError("strategy_config.reset_frequency", "must be weekly or monthly")
	}
	prev := -1.0
	for _, tier := range cfg.TeamTiers {
		if tier.WeeklyVolume <= prev {
			return errors.NewValidationError("strategy_config.team_tiers", "tiers must be sorted ascending by volume with unique thresholds")
		}
		if tier.WeeklyVolume <= 0 {
			return errors.NewValidationError("strategy_config.team_tiers", "tier volume threshold must be positive")
		}
		if tier.Multiplier < 1 {
			return errors.NewValidationError("strategy_config.team_tiers", "tier multiplier must be at least 1")
		}
		prev = tier.WeeklyVolume
	}
	return nil
}

func (s *TeamVolume) IsActiveReferral(link *models.ReferralLink, cfg *periodmodels.StrategyConfig, now time.Time) bool {
	return hasFirstBet(link)
}

func (s *TeamVolume) ComputeDelta(event Event, link *models.ReferralLink, st State, cfg *periodmodels.StrategyConfig) (Delta, error) {
	if event.Kind != EventBet {
		return Delta{}, nil
	}

	return Delta{
		TradingPoints: basePoints(event) * TeamMultiplierForVolume(cfg.TeamTiers, st.TeamVolume),
	}, nil
}

// TeamMultiplierForVolume picks the multiplier of the highest tier the
// window volume meets, defaulting to 1.
func TeamMultiplierForVolume(tiers []periodmodels.TeamTier, teamVolume float64) float64 {
	multiplier := 1.0
	for _, tier := range tiers {
		if teamVolume >= tier.WeeklyVolume {
			multiplier = tier.Multiplier
		}
	}
	return multiplier
}

// WindowStart returns the start of the calendar window containing t: Monday
// 00:00 UTC for weekly, the 1st 00:00 UTC for monthly.
func WindowStart(frequency periodmodels.ScheduleFrequency, t time.Time) time.Time {
	t = t.UTC()
	switch frequency {
	case periodmodels.FrequencyMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		daysSinceMonday := (int(t.Weekday()) + 6) % 7
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return day.AddDate(0, 0, -daysSinceMonday)
	}
}

// WindowKey is the stable bucket label used for per-window volume counters.
func WindowKey(frequency periodmodels.ScheduleFrequency, t time.Time) string {
	return WindowStart(frequency, t).Format("2006-01-02")
}
