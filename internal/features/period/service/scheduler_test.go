package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-rewards-backend/internal/features/period/models"
	"referral-rewards-backend/internal/features/reward"
)

func TestSchedulerTickNoActivePeriod(t *testing.T) {
	svc := newTestService(newFakePeriodRepo(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	scheduler := NewScheduler(svc, time.Minute)

	assert.NoError(t, scheduler.Tick(context.Background()))
}

func TestSchedulerTickRollsScheduledPeriodOver(t *testing.T) {
	start := time.Date(2026, 3, 7, 21, 0, 0, 0, time.UTC) // Saturday
	repo := newFakePeriodRepo()
	svc := newTestService(repo, start)
	ctx := context.Background()

	day := 0
	input := growthCreate("Weekly #1")
	input.ResetMode = models.ResetModeScheduled
	input.ResetConfig = models.ResetConfig{Schedule: &models.ScheduleConfig{
		Frequency: models.FrequencyWeekly,
		DayOfWeek: &day,
		TimeUTC:   "00:00",
	}}

	period, err := svc.CreatePeriod(ctx, input)
	require.NoError(t, err)
	_, err = svc.ActivatePeriod(ctx, period.ID)
	require.NoError(t, err)

	scheduler := NewScheduler(svc, time.Minute).WithClock(fixedClock(start))

	// Before the reset is due nothing happens.
	require.NoError(t, scheduler.Tick(ctx))
	active, err := svc.GetActivePeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, period.ID, active.ID)

	// Advance past Sunday 00:00: the period completes and a successor starts.
	after := time.Date(2026, 3, 8, 0, 1, 0, 0, time.UTC)
	svc.WithClock(fixedClock(after))
	scheduler.WithClock(fixedClock(after))
	require.NoError(t, scheduler.Tick(ctx))

	finished, err := svc.GetPeriod(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusCompleted, finished.Status)

	successor, err := svc.GetActivePeriod(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, period.ID, successor.ID)
	assert.Equal(t, "Weekly #2", successor.Name)
	require.NotNil(t, successor.ResetConfig.Schedule.NextResetAt)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), *successor.ResetConfig.Schedule.NextResetAt)
}

func TestSchedulerTickCompletesExpiredRollingPeriod(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakePeriodRepo()
	svc := newTestService(repo, start)
	ctx := context.Background()

	input := growthCreate("Rolling")
	input.ResetMode = models.ResetModeRollingExpiry
	input.ResetConfig = models.ResetConfig{RollingDays: 7}

	period, err := svc.CreatePeriod(ctx, input)
	require.NoError(t, err)
	_, err = svc.ActivatePeriod(ctx, period.ID)
	require.NoError(t, err)

	after := start.AddDate(0, 0, 8)
	svc.WithClock(fixedClock(after))
	scheduler := NewScheduler(svc, time.Minute).WithClock(fixedClock(after))
	require.NoError(t, scheduler.Tick(ctx))

	finished, err := svc.GetPeriod(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusCompleted, finished.Status)

	// Rolling periods do not chain a successor.
	_, err = svc.GetActivePeriod(ctx)
	require.Error(t, err)
}

func TestSchedulerTickLeavesManualPeriodAlone(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(newFakePeriodRepo(), start)
	ctx := context.Background()

	period, err := svc.CreatePeriod(ctx, growthCreate("Manual"))
	require.NoError(t, err)
	_, err = svc.ActivatePeriod(ctx, period.ID)
	require.NoError(t, err)

	far := start.AddDate(1, 0, 0)
	svc.WithClock(fixedClock(far))
	scheduler := NewScheduler(svc, time.Minute).WithClock(fixedClock(far))
	require.NoError(t, scheduler.Tick(ctx))

	active, err := svc.GetActivePeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, period.ID, active.ID)
}

func TestSchedulerDefaultsInterval(t *testing.T) {
	svc := NewService(newFakePeriodRepo(), &fakeRankings{}, reward.NewRegistry(), nil)
	scheduler := NewScheduler(svc, 0)
	assert.Equal(t, time.Minute, scheduler.interval)
}
