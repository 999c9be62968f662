package reward

import (
	"time"

	"referral-rewards-backend/internal/common/errors"
	periodmodels "referral-rewards-backend/internal/features/period/models"
	"referral-rewards-backend/internal/features/referral/models"
)

// MilestoneQuest awards one-time bonuses as a referee's cumulative volume
// crosses configured thresholds inside a window starting at linkedAt.
type MilestoneQuest struct{}

func (s *MilestoneQuest) Name() periodmodels.StrategyType {
	return periodmodels.StrategyMilestoneQuest
}

func (s *MilestoneQuest) ValidateConfig(cfg *periodmodels.StrategyConfig) error {
	if cfg == nil || len(cfg.ReferrerMilestones) == 0 {
		return errors.NewValidationError("strategy_config.referrer_milestones", "at least one milestone is required")
	}
	if cfg.DurationDays == nil || *cfg.DurationDays <= 0 {
		return errors.NewValidationError("strategy_config.duration_days", "a positive quest window is required")
	}
	if err := validateMilestones("strategy_config.referrer_milestones", cfg.ReferrerMilestones); err != nil {
		return err
	}
	if len(cfg.RefereeMilestones) > 0 {
		if err := validateMilestones("strategy_config.referee_milestones", cfg.RefereeMilestones); err != nil {
			return err
		}
	}
	return nil
}

func validateMilestones(field string, milestones []periodmodels.Milestone) error {
	prev := -1.0
	seen := make(map[string]struct{}, len(milestones))
	for _, m := range milestones {
		if m.Volume <= prev {
			return errors.NewValidationError(field, "milestones must be sorted ascending by volume with unique thresholds")
		}
		if m.Volume <= 0 {
			return errors.NewValidationError(field, "milestone volume must be positive")
		}
		if m.Reward <= 0 {
			return errors.NewValidationError(field, "milestone reward must be positive")
		}
		if m.Label == "" {
			return errors.NewValidationError(field, "milestone label is required")
		}
		if _, dup := seen[m.Label]; dup {
			return errors.NewValidationError(field, "milestone labels must be unique")
		}
		seen[m.Label] = struct{}{}
		prev = m.Volume
	}
	return nil
}

func (s *MilestoneQuest) IsActiveReferral(link *models.ReferralLink, cfg *periodmodels.StrategyConfig, now time.Time) bool {
	return hasFirstBet(link)
}

func (s *MilestoneQuest) ComputeDelta(event Event, link *models.ReferralLink, st State, cfg *periodmodels.StrategyConfig) (Delta, error) {
	if event.Kind != EventBet {
		return Delta{}, nil
	}

	delta := Delta{TradingPoints: basePoints(event)}

	if link == nil {
		return delta, nil
	}

	// No milestone fires past the quest window, even if the threshold is
	// crossed later.
	windowEnd := link.LinkedAt.Add(time.Duration(*cfg.DurationDays) * 24 * time.Hour)
	if event.At.After(windowEnd) {
		return delta, nil
	}

	newVolume := link.LifetimeVolume + event.Volume

	for _, m := range cfg.ReferrerMilestones {
		if newVolume < m.Volume || link.HasFiredMilestone(m.Label) {
			continue
		}
		delta.ReferrerBonus += m.Reward
		delta.FiredMilestones = append(delta.FiredMilestones, m.Label)
	}

	for _, m := range cfg.RefereeMilestones {
		if newVolume < m.Volume || link.HasFiredRefereeMilestone(m.Label) {
			continue
		}
		delta.BonusPoints += m.Reward
		delta.FiredRefereeMilestones = append(delta.FiredRefereeMilestones, m.Label)
	}

	return delta, nil
}
