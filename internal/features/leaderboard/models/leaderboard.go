package models

import (
	"time"

	periodmodels "referral-rewards-backend/internal/features/period/models"
)

// Leaderboard is the live ranking view over the active period's ledger.
type Leaderboard struct {
	PeriodID    string                      `json:"period_id"`
	PeriodName  string                      `json:"period_name"`
	Strategy    periodmodels.StrategyType   `json:"strategy"`
	GeneratedAt time.Time                   `json:"generated_at"`
	Total       int                         `json:"total"`
	Entries     []periodmodels.RankingEntry `json:"entries"`
}

// ArchiveSummary is the list-view projection of a frozen season.
type ArchiveSummary struct {
	PeriodID   string                    `json:"period_id"`
	PeriodName string                    `json:"period_name"`
	Strategy   periodmodels.StrategyType `json:"strategy"`
	PeriodEnd  time.Time                 `json:"period_end"`
	TotalUsers int                       `json:"total_users"`
}
