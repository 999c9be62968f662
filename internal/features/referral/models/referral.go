package models

import (
	"time"
)

// LinkStatus tracks whether a referral has crossed the strategy's activity bar.
type LinkStatus string

const (
	LinkStatusPending LinkStatus = "pending"
	LinkStatusActive  LinkStatus = "active"
)

// ReferralLink is the referrer→referee edge created at signup. The identity
// fields never change; the derived activity and accrual fields are updated as
// the referee trades.
type ReferralLink struct {
	Referrer       string     `json:"referrer"`
	Referee        string     `json:"referee"`
	Status         LinkStatus `json:"status"`
	LinkedAt       time.Time  `json:"linked_at"`
	FirstBetAt     *time.Time `json:"first_bet_at,omitempty"`
	LastBetAt      *time.Time `json:"last_bet_at,omitempty"`
	LifetimeVolume float64    `json:"lifetime_volume"`

	// Per-link accrual state consumed by the reward strategies.
	ShareAccrued           float64  `json:"share_accrued,omitempty"`
	MilestonesFired        []string `json:"milestones_fired,omitempty"`
	RefereeMilestonesFired []string `json:"referee_milestones_fired,omitempty"`
}

// HasFiredMilestone reports whether the referrer-side milestone label already
// paid out for this link.
func (l *ReferralLink) HasFiredMilestone(label string) bool {
	for _, fired := range l.MilestonesFired {
		if fired == label {
			return true
		}
	}
	return false
}

// HasFiredRefereeMilestone is the referee-side counterpart.
func (l *ReferralLink) HasFiredRefereeMilestone(label string) bool {
	for _, fired := range l.RefereeMilestonesFired {
		if fired == label {
			return true
		}
	}
	return false
}

// ReferralCode is a wallet's shareable code. Codes are stored uppercased so
// lookups are case-insensitive; Seq records creation order for leaderboard
// tiebreaks.
type ReferralCode struct {
	Code          string    `json:"code"`
	Wallet        string    `json:"wallet"`
	ReferralCount int       `json:"referral_count"`
	Seq           int64     `json:"seq"`
	CreatedAt     time.Time `json:"created_at"`
}

// LedgerEntry is a wallet's point balance within one period. Balances only
// grow; corrections are out of scope.
type LedgerEntry struct {
	Wallet        string  `json:"wallet"`
	TradingPoints float64 `json:"trading_points"`
	BonusPoints   float64 `json:"bonus_points"`
}

// TotalPoints is the ranking score.
func (e *LedgerEntry) TotalPoints() float64 {
	return e.TradingPoints + e.BonusPoints
}

// ReferralStats is the user-facing summary for the active period.
type ReferralStats struct {
	Wallet          string  `json:"wallet"`
	Code            string  `json:"code"`
	ReferralCount   int     `json:"referral_count"`
	ActiveReferrals int     `json:"active_referrals"`
	TradingPoints   float64 `json:"trading_points"`
	BonusPoints     float64 `json:"bonus_points"`
	TotalPoints     float64 `json:"total_points"`
}
