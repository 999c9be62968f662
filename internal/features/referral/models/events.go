package models

import "time"

// TradingEvent is one message from the trading subsystem, either a referred
// signup or a settled bet.
type TradingEvent struct {
	Kind   string    `json:"kind" binding:"required,oneof=signup bet"`
	Wallet string    `json:"wallet" binding:"required"`
	Code   string    `json:"code,omitempty"`
	Volume float64   `json:"volume,omitempty"`
	At     time.Time `json:"at"`
}

// ReferralInfo is one row in a referrer's own referral list.
type ReferralInfo struct {
	Referee        string     `json:"referee"`
	Status         LinkStatus `json:"status"`
	LinkedAt       time.Time  `json:"linked_at"`
	FirstBetAt     *time.Time `json:"first_bet_at,omitempty"`
	LastBetAt      *time.Time `json:"last_bet_at,omitempty"`
	LifetimeVolume float64    `json:"lifetime_volume"`
	Active         bool       `json:"active"`
}
