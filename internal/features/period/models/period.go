package models

import (
	"time"
)

// PeriodStatus represents the lifecycle state of a referral period.
type PeriodStatus string

const (
	PeriodStatusDraft     PeriodStatus = "draft"
	PeriodStatusActive    PeriodStatus = "active"
	PeriodStatusCompleted PeriodStatus = "completed"
	PeriodStatusCancelled PeriodStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s PeriodStatus) IsTerminal() bool {
	return s == PeriodStatusCompleted || s == PeriodStatusCancelled
}

// StrategyType is the closed set of reward strategy variants.
type StrategyType string

const (
	StrategyGrowthMultiplier StrategyType = "growth_multiplier"
	StrategyRevenueShare     StrategyType = "revenue_share"
	StrategyMilestoneQuest   StrategyType = "milestone_quest"
	StrategyTeamVolume       StrategyType = "team_volume"
)

// ResetMode controls how a period ends.
type ResetMode string

const (
	ResetModeManual        ResetMode = "manual"
	ResetModeScheduled     ResetMode = "scheduled"
	ResetModeRollingExpiry ResetMode = "rolling_expiry"
)

// ScheduleFrequency is the cadence of a scheduled reset.
type ScheduleFrequency string

const (
	FrequencyDaily   ScheduleFrequency = "daily"
	FrequencyWeekly  ScheduleFrequency = "weekly"
	FrequencyMonthly ScheduleFrequency = "monthly"
)

// Tier maps an active-referral count threshold to a trading point multiplier.
type Tier struct {
	Referrals  int     `json:"referrals"`
	Multiplier float64 `json:"multiplier"`
}

// ActiveDefinition is the recency/volume bar a referral must meet to count
// as active under growth_multiplier.
type ActiveDefinition struct {
	BetWithinDays     int     `json:"bet_within_days"`
	MinLifetimeVolume float64 `json:"min_lifetime_volume"`
}

// Milestone awards a one-time bonus when a referee's cumulative volume first
// crosses Volume.
type Milestone struct {
	Volume float64 `json:"volume"`
	Reward float64 `json:"reward"`
	Label  string  `json:"label"`
}

// TeamTier maps a team-window volume threshold to a multiplier.
type TeamTier struct {
	WeeklyVolume float64 `json:"weekly_volume"`
	Multiplier   float64 `json:"multiplier"`
}

// StrategyConfig holds the variant-specific ruleset. Only the fields for the
// period's strategy are populated; validation is per-variant.
type StrategyConfig struct {
	// growth_multiplier
	Tiers            []Tier            `json:"tiers,omitempty"`
	ActiveDefinition *ActiveDefinition `json:"active_definition,omitempty"`

	// revenue_share
	SharePercentage float64 `json:"share_percentage,omitempty"`
	MaxPerReferral  float64 `json:"max_per_referral,omitempty"`
	MaxMonthlyTotal float64 `json:"max_monthly_total,omitempty"`

	// revenue_share and milestone_quest window; nil means lifetime
	DurationDays *int `json:"duration_days,omitempty"`

	// milestone_quest
	ReferrerMilestones []Milestone `json:"referrer_milestones,omitempty"`
	RefereeMilestones  []Milestone `json:"referee_milestones,omitempty"`

	// team_volume
	ResetFrequency ScheduleFrequency `json:"reset_frequency,omitempty"`
	TeamTiers      []TeamTier        `json:"team_tiers,omitempty"`
}

// ScheduleConfig describes when a scheduled period rolls over.
type ScheduleConfig struct {
	Frequency   ScheduleFrequency `json:"frequency"`
	DayOfWeek   *int              `json:"day_of_week,omitempty"`   // 0 = Sunday .. 6 = Saturday
	DayOfMonth  *int              `json:"day_of_month,omitempty"`  // 1..31, clamped to month length
	TimeUTC     string            `json:"time_utc"`                // "HH:MM"
	NextResetAt *time.Time        `json:"next_reset_at,omitempty"` // stamped on activation
}

// ResetConfig is the variant-specific reset ruleset.
type ResetConfig struct {
	Schedule    *ScheduleConfig `json:"schedule,omitempty"`     // scheduled mode
	RollingDays int             `json:"rolling_days,omitempty"` // rolling_expiry mode
}

// RefereeBenefits are the perks granted to the referred wallet.
type RefereeBenefits struct {
	SignupBonus        float64 `json:"signup_bonus"`
	FirstBetMultiplier float64 `json:"first_bet_multiplier"`
	MaxStake           float64 `json:"max_stake"`
}

// ReferralPeriod is a named competition window with one active ruleset.
type ReferralPeriod struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Strategy        StrategyType    `json:"strategy"`
	StrategyConfig  StrategyConfig  `json:"strategy_config"`
	ResetMode       ResetMode       `json:"reset_mode"`
	ResetConfig     ResetConfig     `json:"reset_config"`
	RefereeBenefits RefereeBenefits `json:"referee_benefits"`
	Status          PeriodStatus    `json:"status"`
	StartsAt        *time.Time      `json:"starts_at,omitempty"`
	EndsAt          *time.Time      `json:"ends_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PeriodCreate is the admin payload for a new draft period.
type PeriodCreate struct {
	Name            string          `json:"name" binding:"required,min=3,max=100"`
	Strategy        StrategyType    `json:"strategy" binding:"required"`
	StrategyConfig  StrategyConfig  `json:"strategy_config"`
	ResetMode       ResetMode       `json:"reset_mode" binding:"required"`
	ResetConfig     ResetConfig     `json:"reset_config"`
	RefereeBenefits RefereeBenefits `json:"referee_benefits"`
}

// PeriodUpdate patches a draft period. Nil fields are left unchanged.
type PeriodUpdate struct {
	Name            *string          `json:"name,omitempty" binding:"omitempty,min=3,max=100"`
	StrategyConfig  *StrategyConfig  `json:"strategy_config,omitempty"`
	ResetConfig     *ResetConfig     `json:"reset_config,omitempty"`
	RefereeBenefits *RefereeBenefits `json:"referee_benefits,omitempty"`
}

// PeriodStats is the live admin view over the active ledger.
type PeriodStats struct {
	PeriodID          string  `json:"period_id"`
	TotalUsers        int     `json:"total_users"`
	TotalReferrals    int     `json:"total_referrals"`
	TotalTradingPts   float64 `json:"total_trading_points"`
	TotalBonusAwarded float64 `json:"total_bonus_awarded"`
	TopReferrer       string  `json:"top_referrer,omitempty"`
}
