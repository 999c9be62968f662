package repository

import (
	"context"
	"errors"

	"referral-rewards-backend/internal/features/referral/models"
)

var (
	ErrCodeNotFound = errors.New("referral code not found")
	ErrCodeTaken    = errors.New("referral code already taken")
	ErrLinkNotFound = errors.New("referral link not found")
	ErrLinkExists   = errors.New("wallet already has a referrer")
)

// ReferralRepository persists codes, links and the per-period point ledgers.
type ReferralRepository interface {
	// CreateCode claims a code for a wallet. ErrCodeTaken when another wallet
	// already holds the code.
	CreateCode(ctx context.Context, code *models.ReferralCode) error
	GetCode(ctx context.Context, code string) (*models.ReferralCode, error)
	GetCodeByWallet(ctx context.Context, wallet string) (*models.ReferralCode, error)
	IncrementReferralCount(ctx context.Context, code string) error

	// NextCodeSeq hands out the monotonically increasing creation sequence
	// used for ranking tiebreaks.
	NextCodeSeq(ctx context.Context) (int64, error)

	// CreateLink records the referrer→referee edge. ErrLinkExists when the
	// referee is already linked; links are immutable on the identity side.
	CreateLink(ctx context.Context, link *models.ReferralLink) error
	GetLinkByReferee(ctx context.Context, referee string) (*models.ReferralLink, error)
	UpdateLink(ctx context.Context, link *models.ReferralLink) error
	GetReferees(ctx context.Context, referrer string) ([]string, error)

	// AddPoints accrues points into a wallet's ledger for one period.
	// Amounts are non-negative; the ledger only grows.
	AddPoints(ctx context.Context, periodID, wallet string, tradingPoints, bonusPoints float64) error
	GetLedgerEntry(ctx context.Context, periodID, wallet string) (*models.LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, periodID string) ([]*models.LedgerEntry, error)

	// Monthly revenue-share accrual per referrer, keyed by "YYYY-MM".
	AddMonthShare(ctx context.Context, periodID, referrer, month string, amount float64) error
	GetMonthShare(ctx context.Context, periodID, referrer, month string) (float64, error)

	// Team volume accrual per calendar window, keyed by the window start date.
	AddTeamVolume(ctx context.Context, periodID, referrer, window string, amount float64) (float64, error)
	GetTeamVolume(ctx context.Context, periodID, referrer, window string) (float64, error)
}
