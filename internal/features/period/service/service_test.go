package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "referral-rewards-backend/internal/common/errors"
	"referral-rewards-backend/internal/features/period/models"
	"referral-rewards-backend/internal/features/period/repository"
	"referral-rewards-backend/internal/features/reward"
)

type fakePeriodRepo struct {
	mu          sync.Mutex
	periods     map[string]*models.ReferralPeriod
	activeID    string
	archives    map[string]*models.PeriodArchive
	failCreates int
}

func newFakePeriodRepo() *fakePeriodRepo {
	return &fakePeriodRepo{
		periods:  make(map[string]*models.ReferralPeriod),
		archives: make(map[string]*models.PeriodArchive),
	}
}

func clonePeriod(p *models.ReferralPeriod) *models.ReferralPeriod {
	cp := *p
	return &cp
}

func (f *fakePeriodRepo) Create(_ context.Context, p *models.ReferralPeriod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates > 0 {
		f.failCreates--
		return errors.New("store unavailable")
	}
	f.periods[p.ID] = clonePeriod(p)
	return nil
}

func (f *fakePeriodRepo) GetByID(_ context.Context, id string) (*models.ReferralPeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.periods[id]
	if !ok {
		return nil, repository.ErrPeriodNotFound
	}
	return clonePeriod(p), nil
}

func (f *fakePeriodRepo) Update(_ context.Context, p *models.ReferralPeriod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.periods[p.ID]; !ok {
		return repository.ErrPeriodNotFound
	}
	f.periods[p.ID] = clonePeriod(p)
	return nil
}

func (f *fakePeriodRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.periods, id)
	return nil
}

func (f *fakePeriodRepo) GetByStatus(_ context.Context, status models.PeriodStatus) ([]*models.ReferralPeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ReferralPeriod
	for _, p := range f.periods {
		if p.Status == status {
			out = append(out, clonePeriod(p))
		}
	}
	return out, nil
}

func (f *fakePeriodRepo) GetAll(_ context.Context) ([]*models.ReferralPeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ReferralPeriod
	for _, p := range f.periods {
		out = append(out, clonePeriod(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakePeriodRepo) GetActive(_ context.Context) (*models.ReferralPeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeID == "" {
		return nil, repository.ErrPeriodNotFound
	}
	return clonePeriod(f.periods[f.activeID]), nil
}

func (f *fakePeriodRepo) Activate(_ context.Context, p *models.ReferralPeriod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeID != "" && f.activeID != p.ID {
		return repository.ErrActiveExists
	}
	stored, ok := f.periods[p.ID]
	if !ok {
		return repository.ErrPeriodNotFound
	}
	if stored.Status != models.PeriodStatusDraft {
		return repository.ErrStatusMismatch
	}
	f.periods[p.ID] = clonePeriod(p)
	f.activeID = p.ID
	return nil
}

func (f *fakePeriodRepo) Finish(_ context.Context, p *models.ReferralPeriod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.periods[p.ID]
	if !ok {
		return repository.ErrPeriodNotFound
	}
	if stored.Status != models.PeriodStatusActive {
		return repository.ErrStatusMismatch
	}
	f.periods[p.ID] = clonePeriod(p)
	if f.activeID == p.ID {
		f.activeID = ""
	}
	return nil
}

func (f *fakePeriodRepo) SaveArchive(_ context.Context, a *models.PeriodArchive) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.archives[a.PeriodID]; ok {
		return repository.ErrArchiveExists
	}
	cp := *a
	f.archives[a.PeriodID] = &cp
	return nil
}

func (f *fakePeriodRepo) GetArchive(_ context.Context, periodID string) (*models.PeriodArchive, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.archives[periodID]
	if !ok {
		return nil, repository.ErrArchiveNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakePeriodRepo) ListArchives(_ context.Context, limit, offset int) ([]*models.PeriodArchive, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PeriodArchive
	for _, a := range f.archives {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodEnd.After(out[j].PeriodEnd) })
	return out, nil
}

type fakeRankings struct {
	rankings []models.RankingEntry
	stats    models.ArchiveStats
}

func (f *fakeRankings) BuildRankings(_ context.Context, _ string) ([]models.RankingEntry, *models.ArchiveStats, error) {
	stats := f.stats
	return f.rankings, &stats, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func growthCreate(name string) *models.PeriodCreate {
	return &models.PeriodCreate{
		Name:     name,
		Strategy: models.StrategyGrowthMultiplier,
		StrategyConfig: models.StrategyConfig{
			Tiers:            []models.Tier{{Referrals: 1, Multiplier: 1.1}},
			ActiveDefinition: &models.ActiveDefinition{BetWithinDays: 7, MinLifetimeVolume: 10},
		},
		ResetMode: models.ResetModeManual,
	}
}

func newTestService(repo *fakePeriodRepo, now time.Time) *Service {
	return NewService(repo, &fakeRankings{}, reward.NewRegistry(), nil).WithClock(fixedClock(now))
}

func TestCreatePeriod(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(newFakePeriodRepo(), now)

	period, err := svc.CreatePeriod(context.Background(), growthCreate("Season One"))
	require.NoError(t, err)
	assert.NotEmpty(t, period.ID)
	assert.Equal(t, models.PeriodStatusDraft, period.Status)
	assert.Equal(t, now, period.CreatedAt)

	t.Run("unknown strategy", func(t *testing.T) {
		input := growthCreate("Bad")
		input.Strategy = "mystery_box"
		_, err := svc.CreatePeriod(context.Background(), input)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeUnsupportedStrategy, appErr.Code)
	})

	t.Run("invalid strategy config", func(t *testing.T) {
		input := growthCreate("Bad")
		input.StrategyConfig.Tiers = nil
		_, err := svc.CreatePeriod(context.Background(), input)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
	})

	t.Run("scheduled mode requires schedule", func(t *testing.T) {
		input := growthCreate("Bad")
		input.ResetMode = models.ResetModeScheduled
		_, err := svc.CreatePeriod(context.Background(), input)
		require.Error(t, err)
	})

	t.Run("fractional first bet multiplier rejected", func(t *testing.T) {
		input := growthCreate("Bad")
		input.RefereeBenefits = models.RefereeBenefits{FirstBetMultiplier: 0.5}
		_, err := svc.CreatePeriod(context.Background(), input)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
	})

	t.Run("omitted first bet multiplier defaults to one", func(t *testing.T) {
		created, err := svc.CreatePeriod(context.Background(), growthCreate("Plain"))
		require.NoError(t, err)
		assert.Equal(t, 1.0, created.RefereeBenefits.FirstBetMultiplier)
	})
}

func TestCompletePeriodRetriesSuccessor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakePeriodRepo()
	svc := newTestService(repo, now)
	ctx := context.Background()

	period, err := svc.CreatePeriod(ctx, growthCreate("Season #1"))
	require.NoError(t, err)
	_, err = svc.ActivatePeriod(ctx, period.ID)
	require.NoError(t, err)

	// One transient store failure: the retry still chains a successor.
	repo.failCreates = 1
	result, err := svc.CompletePeriod(ctx, period.ID, true)
	require.NoError(t, err)
	require.NotNil(t, result.Successor)

	active, err := svc.GetActivePeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.Successor.ID, active.ID)
}

func TestCompletePeriodSuccessorExhaustsRetries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakePeriodRepo()
	svc := newTestService(repo, now)
	ctx := context.Background()

	period, err := svc.CreatePeriod(ctx, growthCreate("Season #1"))
	require.NoError(t, err)
	_, err = svc.ActivatePeriod(ctx, period.ID)
	require.NoError(t, err)

	// The store stays down: completion itself still succeeds and the gap is
	// left for manual activation.
	repo.failCreates = successorAttempts
	result, err := svc.CompletePeriod(ctx, period.ID, true)
	require.NoError(t, err)
	assert.Nil(t, result.Successor)
	assert.Equal(t, models.PeriodStatusCompleted, result.Period.Status)

	_, err = svc.GetActivePeriod(ctx)
	require.Error(t, err)
}

func TestActivatePeriodSingleActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakePeriodRepo()
	svc := newTestService(repo, now)
	ctx := context.Background()

	first, err := svc.CreatePeriod(ctx, growthCreate("First"))
	require.NoError(t, err)
	second, err := svc.CreatePeriod(ctx, growthCreate("Second"))
	require.NoError(t, err)

	activated, err := svc.ActivatePeriod(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusActive, activated.Status)
	require.NotNil(t, activated.StartsAt)
	assert.Equal(t, now, *activated.StartsAt)

	// The invariant: a second activation must be refused.
	_, err = svc.ActivatePeriod(ctx, second.ID)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeConflict, appErr.Code)

	// Re-activating the active period is not a draft transition.
	_, err = svc.ActivatePeriod(ctx, first.ID)
	appErr, ok = apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidState, appErr.Code)
}

func TestActivateScheduledStampsNextReset(t *testing.T) {
	// Saturday 21:00; weekly reset on Sunday 00:00 lands 3 hours later.
	now := time.Date(2026, 3, 7, 21, 0, 0, 0, time.UTC)
	svc := newTestService(newFakePeriodRepo(), now)
	ctx := context.Background()

	day := 0 // Sunday
	input := growthCreate("Weekly")
	input.ResetMode = models.ResetModeScheduled
	input.ResetConfig = models.ResetConfig{Schedule: &models.ScheduleConfig{
		Frequency: models.FrequencyWeekly,
		DayOfWeek: &day,
		TimeUTC:   "00:00",
	}}

	period, err := svc.CreatePeriod(ctx, input)
	require.NoError(t, err)

	activated, err := svc.ActivatePeriod(ctx, period.ID)
	require.NoError(t, err)
	require.NotNil(t, activated.ResetConfig.Schedule.NextResetAt)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), *activated.ResetConfig.Schedule.NextResetAt)
}

func TestActivateRollingStampsEndsAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(newFakePeriodRepo(), now)
	ctx := context.Background()

	input := growthCreate("Rolling")
	input.ResetMode = models.ResetModeRollingExpiry
	input.ResetConfig = models.ResetConfig{RollingDays: 30}

	period, err := svc.CreatePeriod(ctx, input)
	require.NoError(t, err)

	activated, err := svc.ActivatePeriod(ctx, period.ID)
	require.NoError(t, err)
	require.NotNil(t, activated.EndsAt)
	assert.Equal(t, now.AddDate(0, 0, 30), *activated.EndsAt)
}

func TestCompletePeriod(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakePeriodRepo()
	rankings := &fakeRankings{
		rankings: []models.RankingEntry{{Rank: 1, Address: "EQtop", Points: 500, Referrals: 3}},
		stats:    models.ArchiveStats{TotalUsers: 1, TotalReferrals: 3, TopReferrer: "EQtop"},
	}
	svc := NewService(repo, rankings, reward.NewRegistry(), nil).WithClock(fixedClock(now))
	ctx := context.Background()

	period, err := svc.CreatePeriod(ctx, growthCreate("Season"))
	require.NoError(t, err)
	_, err = svc.ActivatePeriod(ctx, period.ID)
	require.NoError(t, err)

	result, err := svc.CompletePeriod(ctx, period.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusCompleted, result.Period.Status)
	require.NotNil(t, result.Period.CompletedAt)
	require.NotNil(t, result.Archive)
	assert.Nil(t, result.Successor)

	archive, err := repo.GetArchive(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, "EQtop", archive.Stats.TopReferrer)
	assert.Len(t, archive.Rankings, 1)

	t.Run("second complete rejected", func(t *testing.T) {
		_, err := svc.CompletePeriod(ctx, period.ID, false)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeInvalidState, appErr.Code)

		// The first call's archive is untouched.
		again, err := repo.GetArchive(ctx, period.ID)
		require.NoError(t, err)
		assert.Equal(t, "EQtop", again.Stats.TopReferrer)
	})

	t.Run("draft cannot complete", func(t *testing.T) {
		draft, err := svc.CreatePeriod(ctx, growthCreate("Draft"))
		require.NoError(t, err)
		_, err = svc.CompletePeriod(ctx, draft.ID, false)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeInvalidState, appErr.Code)
	})
}

func TestCompletePeriodChainsSuccessor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakePeriodRepo()
	svc := newTestService(repo, now)
	ctx := context.Background()

	period, err := svc.CreatePeriod(ctx, growthCreate("Season #1"))
	require.NoError(t, err)
	_, err = svc.ActivatePeriod(ctx, period.ID)
	require.NoError(t, err)

	result, err := svc.CompletePeriod(ctx, period.ID, true)
	require.NoError(t, err)
	require.NotNil(t, result.Successor)

	successor, err := svc.GetActivePeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.Successor.ID, successor.ID)
	assert.NotEqual(t, period.ID, successor.ID)
	assert.Equal(t, "Season #2", successor.Name)
	assert.Equal(t, period.Strategy, successor.Strategy)
	assert.Equal(t, period.StrategyConfig, successor.StrategyConfig)
}

func TestCancelPeriodDraftOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakePeriodRepo()
	svc := newTestService(repo, now)
	ctx := context.Background()

	period, err := svc.CreatePeriod(ctx, growthCreate("Doomed"))
	require.NoError(t, err)

	cancelled, err := svc.CancelPeriod(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusCancelled, cancelled.Status)

	_, err = repo.GetArchive(ctx, period.ID)
	assert.Equal(t, repository.ErrArchiveNotFound, err)

	// Started periods can only complete, never cancel.
	running, err := svc.CreatePeriod(ctx, growthCreate("Running"))
	require.NoError(t, err)
	_, err = svc.ActivatePeriod(ctx, running.ID)
	require.NoError(t, err)

	_, err = svc.CancelPeriod(ctx, running.ID)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidState, appErr.Code)
}

func TestUpdateAndDeleteDraftOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(newFakePeriodRepo(), now)
	ctx := context.Background()

	period, err := svc.CreatePeriod(ctx, growthCreate("Mutable"))
	require.NoError(t, err)

	name := "Renamed"
	updated, err := svc.UpdatePeriod(ctx, period.ID, &models.PeriodUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	_, err = svc.ActivatePeriod(ctx, period.ID)
	require.NoError(t, err)

	_, err = svc.UpdatePeriod(ctx, period.ID, &models.PeriodUpdate{Name: &name})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidState, appErr.Code)

	err = svc.DeletePeriod(ctx, period.ID)
	appErr, ok = apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidState, appErr.Code)
}

func TestNextResetTime(t *testing.T) {
	day31 := 31
	sunday := 0

	cases := []struct {
		name     string
		schedule models.ScheduleConfig
		now      time.Time
		want     time.Time
	}{
		{
			name:     "daily later today",
			schedule: models.ScheduleConfig{Frequency: models.FrequencyDaily, TimeUTC: "18:00"},
			now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		},
		{
			name:     "daily already passed rolls to tomorrow",
			schedule: models.ScheduleConfig{Frequency: models.FrequencyDaily, TimeUTC: "06:00"},
			now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
		},
		{
			name:     "weekly same day past time rolls a week",
			schedule: models.ScheduleConfig{Frequency: models.FrequencyWeekly, DayOfWeek: &sunday, TimeUTC: "00:00"},
			now:      time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), // Sunday 00:00 exactly
			want:     time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly day clamped to short month",
			schedule: models.ScheduleConfig{Frequency: models.FrequencyMonthly, DayOfMonth: &day31, TimeUTC: "00:00"},
			now:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly rolls into next month",
			schedule: models.ScheduleConfig{Frequency: models.FrequencyMonthly, DayOfMonth: &day31, TimeUTC: "00:00"},
			now:      time.Date(2026, 3, 31, 1, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "unknown frequency falls back a week ahead",
			schedule: models.ScheduleConfig{Frequency: "fortnightly", TimeUTC: "00:00"},
			now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextResetTime(&tc.schedule, tc.now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("malformed time rejected", func(t *testing.T) {
		_, err := NextResetTime(&models.ScheduleConfig{Frequency: models.FrequencyDaily, TimeUTC: "25:00"}, time.Now())
		require.Error(t, err)
	})
}
