package models

import "time"

// RankingEntry is one frozen leaderboard row.
type RankingEntry struct {
	Rank        int     `json:"rank"`
	Address     string  `json:"address"`
	Points      float64 `json:"points"`
	Referrals   int     `json:"referrals"`
	BonusPoints float64 `json:"bonus_points"`
}

// ArchiveStats summarizes a completed season.
type ArchiveStats struct {
	TotalUsers        int     `json:"total_users"`
	TotalReferrals    int     `json:"total_referrals"`
	TotalBonusAwarded float64 `json:"total_bonus_awarded"`
	TopReferrer       string  `json:"top_referrer,omitempty"`
}

// CompletionResult is what a completePeriod call hands back: the frozen
// period, its archive, and the successor when one was chained.
type CompletionResult struct {
	Period    *ReferralPeriod `json:"period"`
	Archive   *PeriodArchive  `json:"archive"`
	Successor *ReferralPeriod `json:"successor,omitempty"`
}

// PeriodArchive is the immutable snapshot written exactly once when a period
// completes. Historical standings live only here once the period is replaced.
type PeriodArchive struct {
	PeriodID    string         `json:"period_id"`
	PeriodName  string         `json:"period_name"`
	Strategy    StrategyType   `json:"strategy"`
	ResetMode   ResetMode      `json:"reset_mode"`
	PeriodStart time.Time      `json:"period_start"`
	PeriodEnd   time.Time      `json:"period_end"`
	Rankings    []RankingEntry `json:"rankings"`
	Stats       ArchiveStats   `json:"stats"`
	ArchivedAt  time.Time      `json:"archived_at"`
}
