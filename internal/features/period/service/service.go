package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"referral-rewards-backend/internal/common/cache"
	apperrors "referral-rewards-backend/internal/common/errors"
	"referral-rewards-backend/internal/common/logger"
	"referral-rewards-backend/internal/features/period/models"
	"referral-rewards-backend/internal/features/period/repository"
	"referral-rewards-backend/internal/features/reward"
)

// successorAttempts bounds retries when chaining a replacement period after a
// rollover.
const successorAttempts = 3

// RankingBuilder materializes the final standings of a period when it is
// archived.
type RankingBuilder interface {
	BuildRankings(ctx context.Context, periodID string) ([]models.RankingEntry, *models.ArchiveStats, error)
}

// Service owns the period lifecycle: draft → active → completed | cancelled,
// with at most one active period at a time.
type Service struct {
	repo     repository.PeriodRepository
	rankings RankingBuilder
	registry *reward.Registry
	cache    *cache.CacheService
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(repo repository.PeriodRepository, rankings RankingBuilder, registry *reward.Registry, cacheService *cache.CacheService) *Service {
	return &Service{
		repo:     repo,
		rankings: rankings,
		registry: registry,
		cache:    cacheService,
		log:      logger.With("period_service"),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreatePeriod validates the ruleset and stores a new draft.
func (s *Service) CreatePeriod(ctx context.Context, input *models.PeriodCreate) (*models.ReferralPeriod, error) {
	strategy, err := s.registry.Get(input.Strategy)
	if err != nil {
		return nil, err
	}
	if err := strategy.ValidateConfig(&input.StrategyConfig); err != nil {
		return nil, err
	}
	if err := validateResetConfig(input.ResetMode, &input.ResetConfig); err != nil {
		return nil, err
	}
	if err := validateRefereeBenefits(&input.RefereeBenefits); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	period := &models.ReferralPeriod{
		ID:              uuid.New().String(),
		Name:            input.Name,
		Strategy:        input.Strategy,
		StrategyConfig:  input.StrategyConfig,
		ResetMode:       input.ResetMode,
		ResetConfig:     input.ResetConfig,
		RefereeBenefits: input.RefereeBenefits,
		Status:          models.PeriodStatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, period); err != nil {
		return nil, apperrors.NewDatabaseError("create period", err)
	}

	s.log.Info().Str("period_id", period.ID).Str("strategy", string(period.Strategy)).Msg("period created")
	return period, nil
}

// GetPeriod fetches one period by ID.
func (s *Service) GetPeriod(ctx context.Context, id string) (*models.ReferralPeriod, error) {
	period, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrPeriodNotFound {
			return nil, apperrors.NewNotFoundError("period", id)
		}
		return nil, apperrors.NewDatabaseError("get period", err)
	}
	return period, nil
}

// ListPeriods lists periods, optionally filtered by status.
func (s *Service) ListPeriods(ctx context.Context, status string) ([]*models.ReferralPeriod, error) {
	if status == "" {
		periods, err := s.repo.GetAll(ctx)
		if err != nil {
			return nil, apperrors.NewDatabaseError("list periods", err)
		}
		return periods, nil
	}

	parsed := models.PeriodStatus(status)
	switch parsed {
	case models.PeriodStatusDraft, models.PeriodStatusActive, models.PeriodStatusCompleted, models.PeriodStatusCancelled:
	default:
		return nil, apperrors.NewValidationError("status", "unknown period status")
	}

	periods, err := s.repo.GetByStatus(ctx, parsed)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list periods", err)
	}
	return periods, nil
}

// GetActivePeriod resolves the current active period, if any.
func (s *Service) GetActivePeriod(ctx context.Context) (*models.ReferralPeriod, error) {
	period, err := s.repo.GetActive(ctx)
	if err != nil {
		if err == repository.ErrPeriodNotFound {
			return nil, apperrors.NewNotFoundError("active period", nil)
		}
		return nil, apperrors.NewDatabaseError("get active period", err)
	}
	return period, nil
}

// UpdatePeriod patches a draft. Rulesets are frozen once the period leaves
// draft.
func (s *Service) UpdatePeriod(ctx context.Context, id string, input *models.PeriodUpdate) (*models.ReferralPeriod, error) {
	period, err := s.GetPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.Status != models.PeriodStatusDraft {
		return nil, apperrors.NewInvalidStateError("update", string(period.Status))
	}

	if input.Name != nil {
		period.Name = *input.Name
	}
	if input.StrategyConfig != nil {
		strategy, err := s.registry.Get(period.Strategy)
		if err != nil {
			return nil, err
		}
		if err := strategy.ValidateConfig(input.StrategyConfig); err != nil {
			return nil, err
		}
		period.StrategyConfig = *input.StrategyConfig
	}
	if input.ResetConfig != nil {
		if err := validateResetConfig(period.ResetMode, input.ResetConfig); err != nil {
			return nil, err
		}
		period.ResetConfig = *input.ResetConfig
	}
	if input.RefereeBenefits != nil {
		if err := validateRefereeBenefits(input.RefereeBenefits); err != nil {
			return nil, err
		}
		period.RefereeBenefits = *input.RefereeBenefits
	}
	period.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, period); err != nil {
		return nil, apperrors.NewDatabaseError("update period", err)
	}
	return period, nil
}

// DeletePeriod removes a draft. Non-drafts are part of history and stay.
func (s *Service) DeletePeriod(ctx context.Context, id string) error {
	period, err := s.GetPeriod(ctx, id)
	if err != nil {
		return err
	}
	if period.Status != models.PeriodStatusDraft {
		return apperrors.NewInvalidStateError("delete", string(period.Status))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperrors.NewDatabaseError("delete period", err)
	}
	return nil
}

// ActivatePeriod flips a draft to active. Fails with a conflict when another
// period is already active.
func (s *Service) ActivatePeriod(ctx context.Context, id string) (*models.ReferralPeriod, error) {
	period, err := s.GetPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.Status != models.PeriodStatusDraft {
		return nil, apperrors.NewInvalidStateError("activate", string(period.Status))
	}

	now := s.now().UTC()
	period.Status = models.PeriodStatusActive
	period.StartsAt = &now
	period.UpdatedAt = now

	switch period.ResetMode {
	case models.ResetModeScheduled:
		next, err := NextResetTime(period.ResetConfig.Schedule, now)
		if err != nil {
			return nil, apperrors.NewValidationError("reset_config.schedule", err.Error())
		}
		period.ResetConfig.Schedule.NextResetAt = &next
	case models.ResetModeRollingExpiry:
		ends := now.AddDate(0, 0, period.ResetConfig.RollingDays)
		period.EndsAt = &ends
	}

	if err := s.repo.Activate(ctx, period); err != nil {
		switch err {
		case repository.ErrActiveExists:
			return nil, apperrors.NewConflictError("period", "another period is already active")
		case repository.ErrStatusMismatch:
			return nil, apperrors.NewInvalidStateError("activate", "period changed concurrently")
		case repository.ErrPeriodNotFound:
			return nil, apperrors.NewNotFoundError("period", id)
		default:
			return nil, apperrors.NewDatabaseError("activate period", err)
		}
	}

	s.invalidate(ctx, period.ID)
	s.log.Info().Str("period_id", period.ID).Msg("period activated")
	return period, nil
}

// CompletePeriod freezes an active period: standings are archived, the
// period becomes completed and, when chainNext is set, a successor with the
// same ruleset starts immediately. Only active periods complete; a second
// call on the same id fails with an invalid-state error while the archive
// stays write-once.
func (s *Service) CompletePeriod(ctx context.Context, id string, chainNext bool) (*models.CompletionResult, error) {
	period, err := s.GetPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.Status != models.PeriodStatusActive {
		return nil, apperrors.NewInvalidStateError("complete", string(period.Status))
	}

	now := s.now().UTC()

	rankings, stats, err := s.rankings.BuildRankings(ctx, id)
	if err != nil {
		return nil, err
	}

	archive := &models.PeriodArchive{
		PeriodID:   period.ID,
		PeriodName: period.Name,
		Strategy:   period.Strategy,
		ResetMode:  period.ResetMode,
		PeriodEnd:  now,
		Rankings:   rankings,
		Stats:      *stats,
		ArchivedAt: now,
	}
	if period.StartsAt != nil {
		archive.PeriodStart = *period.StartsAt
	}

	if err := s.repo.SaveArchive(ctx, archive); err != nil && err != repository.ErrArchiveExists {
		return nil, apperrors.NewDatabaseError("save archive", err)
	}

	period.Status = models.PeriodStatusCompleted
	period.CompletedAt = &now
	period.EndsAt = &now
	period.UpdatedAt = now

	if err := s.repo.Finish(ctx, period); err != nil {
		switch err {
		case repository.ErrStatusMismatch:
			return nil, apperrors.NewInvalidStateError("complete", "period changed concurrently")
		default:
			return nil, apperrors.NewDatabaseError("complete period", err)
		}
	}

	s.invalidate(ctx, period.ID)
	s.log.Info().Str("period_id", period.ID).Int("ranked", len(rankings)).Msg("period completed")

	result := &models.CompletionResult{Period: period, Archive: archive}
	if chainNext {
		for attempt := 1; attempt <= successorAttempts; attempt++ {
			successor, err := s.chainSuccessor(ctx, period)
			if err == nil {
				result.Successor = successor
				break
			}
			s.log.Error().Err(err).
				Str("period_id", period.ID).
				Int("attempt", attempt).
				Msg("failed to start successor period")
		}
		if result.Successor == nil {
			// The completed period is already frozen; until an admin
			// activates a replacement there is no active period at all.
			s.log.Error().
				Str("period_id", period.ID).
				Msg("no successor could be started, manual activation required")
		}
	}

	return result, nil
}

// CancelPeriod abandons an unstarted draft without writing an archive. Active
// periods can only be completed.
func (s *Service) CancelPeriod(ctx context.Context, id string) (*models.ReferralPeriod, error) {
	period, err := s.GetPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.Status != models.PeriodStatusDraft {
		return nil, apperrors.NewInvalidStateError("cancel", string(period.Status))
	}

	now := s.now().UTC()
	period.Status = models.PeriodStatusCancelled
	period.EndsAt = &now
	period.UpdatedAt = now

	if err := s.repo.Update(ctx, period); err != nil {
		return nil, apperrors.NewDatabaseError("cancel period", err)
	}

	s.invalidate(ctx, period.ID)
	s.log.Info().Str("period_id", period.ID).Msg("period cancelled")
	return period, nil
}

// GetPeriodStats summarizes the live ledger for the admin dashboard.
func (s *Service) GetPeriodStats(ctx context.Context, id string) (*models.PeriodStats, error) {
	if _, err := s.GetPeriod(ctx, id); err != nil {
		return nil, err
	}

	rankings, stats, err := s.rankings.BuildRankings(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &models.PeriodStats{
		PeriodID:          id,
		TotalUsers:        stats.TotalUsers,
		TotalReferrals:    stats.TotalReferrals,
		TotalBonusAwarded: stats.TotalBonusAwarded,
		TopReferrer:       stats.TopReferrer,
	}
	for _, entry := range rankings {
		result.TotalTradingPts += entry.Points - entry.BonusPoints
	}
	return result, nil
}

// chainSuccessor clones the completed period's ruleset into a fresh active
// period so scheduled resets roll over without a gap.
func (s *Service) chainSuccessor(ctx context.Context, previous *models.ReferralPeriod) (*models.ReferralPeriod, error) {
	draft, err := s.CreatePeriod(ctx, &models.PeriodCreate{
		Name:            successorName(previous.Name),
		Strategy:        previous.Strategy,
		StrategyConfig:  previous.StrategyConfig,
		ResetMode:       previous.ResetMode,
		ResetConfig:     previous.ResetConfig,
		RefereeBenefits: previous.RefereeBenefits,
	})
	if err != nil {
		return nil, err
	}
	return s.ActivatePeriod(ctx, draft.ID)
}

// successorName bumps a trailing "#N" counter, or starts one.
func successorName(name string) string {
	if idx := strings.LastIndex(name, "#"); idx >= 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(name[idx+1:])); err == nil {
			return fmt.Sprintf("%s#%d", name[:idx], n+1)
		}
	}
	return name + " #2"
}

func (s *Service) invalidate(ctx context.Context, periodID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePeriodCache(ctx, periodID); err != nil {
		s.log.Warn().Err(err).Str("period_id", periodID).Msg("cache invalidation failed")
	}
}

func validateResetConfig(mode models.ResetMode, cfg *models.ResetConfig) error {
	switch mode {
	case models.ResetModeManual:
		return nil
	case models.ResetModeScheduled:
		if cfg == nil || cfg.Schedule == nil {
			return apperrors.NewValidationError("reset_config.schedule", "required for scheduled reset mode")
		}
		return validateSchedule(cfg.Schedule)
	case models.ResetModeRollingExpiry:
		if cfg == nil || cfg.RollingDays <= 0 {
			return apperrors.NewValidationError("reset_config.rolling_days", "must be positive for rolling expiry")
		}
		return nil
	default:
		return apperrors.NewValidationError("reset_mode", "unknown reset mode")
	}
}

func validateSchedule(schedule *models.ScheduleConfig) error {
	switch schedule.Frequency {
	case models.FrequencyDaily:
	case models.FrequencyWeekly:
		if schedule.DayOfWeek == nil || *schedule.DayOfWeek < 0 || *schedule.DayOfWeek > 6 {
			return apperrors.NewValidationError("reset_config.schedule.day_of_week", "must be 0 (Sunday) through 6")
		}
	case models.FrequencyMonthly:
		if schedule.DayOfMonth == nil || *schedule.DayOfMonth < 1 || *schedule.DayOfMonth > 31 {
			return apperrors.NewValidationError("reset_config.schedule.day_of_month", "must be 1 through 31")
		}
	default:
		return apperrors.NewValidationError("reset_config.schedule.frequency", "must be daily, weekly or monthly")
	}

	if _, _, err := parseTimeUTC(schedule.TimeUTC); err != nil {
		return apperrors.NewValidationError("reset_config.schedule.time_utc", err.Error())
	}
	return nil
}

func validateRefereeBenefits(benefits *models.RefereeBenefits) error {
	if benefits.SignupBonus < 0 {
		return apperrors.NewValidationError("referee_benefits.signup_bonus", "must not be negative")
	}
	// Zero means the field was omitted; a multiplier of 1 is the no-boost
	// baseline and anything below it would shrink the referee's own points.
	if benefits.FirstBetMultiplier == 0 {
		benefits.FirstBetMultiplier = 1
	}
	if benefits.FirstBetMultiplier < 1 {
		return apperrors.NewValidationError("referee_benefits.first_bet_multiplier", "must be at least 1")
	}
	if benefits.MaxStake < 0 {
		return apperrors.NewValidationError("referee_benefits.max_stake", "must not be negative")
	}
	return nil
}

func parseTimeUTC(value string) (hour, minute int, err error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour out of range in %q", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute out of range in %q", value)
	}
	return hour, minute, nil
}

// NextResetTime computes the first scheduled reset strictly after now.
// Monthly days past the month's end clamp to its last day.
func NextResetTime(schedule *models.ScheduleConfig, now time.Time) (time.Time, error) {
	if schedule == nil {
		return time.Time{}, fmt.Errorf("schedule is not configured")
	}
	hour, minute, err := parseTimeUTC(schedule.TimeUTC)
	if err != nil {
		return time.Time{}, err
	}

	now = now.UTC()
	switch schedule.Frequency {
	case models.FrequencyDaily:
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case models.FrequencyWeekly:
		if schedule.DayOfWeek == nil {
			return time.Time{}, fmt.Errorf("day_of_week is not configured")
		}
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
		daysAhead := (*schedule.DayOfWeek - int(now.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, daysAhead)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next, nil

	case models.FrequencyMonthly:
		if schedule.DayOfMonth == nil {
			return time.Time{}, fmt.Errorf("day_of_month is not configured")
		}
		next := monthlyOccurrence(now.Year(), now.Month(), *schedule.DayOfMonth, hour, minute)
		if !next.After(now) {
			year, month := now.Year(), now.Month()+1
			next = monthlyOccurrence(year, month, *schedule.DayOfMonth, hour, minute)
		}
		return next, nil

	default:
		// Unrecognized frequencies still make forward progress instead of
		// wedging the rollover loop.
		return now.AddDate(0, 0, 7), nil
	}
}

func monthlyOccurrence(year int, month time.Month, day, hour, minute int) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}
