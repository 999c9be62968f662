package repository

import (
	"context"
	"errors"

	"referral-rewards-backend/internal/features/period/models"
)

var (
	ErrPeriodNotFound  = errors.New("period not found")
	ErrArchiveNotFound = errors.New("archive not found")
	ErrArchiveExists   = errors.New("archive already written")
	ErrActiveExists    = errors.New("another period is already active")
	ErrStatusMismatch  = errors.New("period status changed concurrently")
)

// PeriodRepository persists periods, the single-active pointer and the
// write-once archives.
type PeriodRepository interface {
	Create(ctx context.Context, period *models.ReferralPeriod) error
	GetByID(ctx context.Context, id string) (*models.ReferralPeriod, error)
	Update(ctx context.Context, period *models.ReferralPeriod) error
	Delete(ctx context.Context, id string) error

	// GetByStatus lists the periods currently in one status.
	GetByStatus(ctx context.Context, status models.PeriodStatus) ([]*models.ReferralPeriod, error)
	GetAll(ctx context.Context) ([]*models.ReferralPeriod, error)

	// GetActive resolves the active-period pointer. ErrPeriodNotFound when
	// there is no active period.
	GetActive(ctx context.Context) (*models.ReferralPeriod, error)

	// Activate flips a draft period to active, claiming the single-active
	// pointer. ErrActiveExists when another period holds it, ErrStatusMismatch
	// when the period left draft concurrently.
	Activate(ctx context.Context, period *models.ReferralPeriod) error

	// Finish moves an active period to completed or cancelled, releasing the
	// active pointer. ErrStatusMismatch when the period is not active anymore.
	Finish(ctx context.Context, period *models.ReferralPeriod) error

	SaveArchive(ctx context.Context, archive *models.PeriodArchive) error
	GetArchive(ctx context.Context, periodID string) (*models.PeriodArchive, error)
	ListArchives(ctx context.Context, limit, offset int) ([]*models.PeriodArchive, error)
}
