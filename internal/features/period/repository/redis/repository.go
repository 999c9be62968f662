package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"referral-rewards-backend/internal/features/period/models"
	"referral-rewards-backend/internal/features/period/repository"
)

const (
	keyPrefixPeriod  = "period:"
	keyPrefixArchive = "archive:"
	keyActivePeriod  = "period:active"
	keyArchivesIndex = "archives:index"

	maxTxRetries = 5
)

type redisRepository struct {
	client *redis.Client
}

func NewRedisPeriodRepository(client *redis.Client) repository.PeriodRepository {
	return &redisRepository{client: client}
}

func makePeriodKey(id string) string {
	return keyPrefixPeriod + id
}

func makeStatusKey(status models.PeriodStatus) string {
	return fmt.Sprintf("periods:by_status:%s", status)
}

func makeArchiveKey(periodID string) string {
	return keyPrefixArchive + periodID
}

func (r *redisRepository) Create(ctx context.Context, period *models.ReferralPeriod) error {
	data, err := json.Marshal(period)
	if err != nil {
		return fmt.Errorf("failed to marshal period: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, makePeriodKey(period.ID), data, 0)
	pipe.SAdd(ctx, makeStatusKey(period.Status), period.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisRepository) GetByID(ctx context.Context, id string) (*models.ReferralPeriod, error) {
	data, err := r.client.Get(ctx, makePeriodKey(id)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrPeriodNotFound
	}
	if err != nil {
		return nil, err
	}

	var period models.ReferralPeriod
	if err := json.Unmarshal(data, &period); err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *redisRepository) Update(ctx context.Context, period *models.ReferralPeriod) error {
	current, err := r.GetByID(ctx, period.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(period)
	if err != nil {
		return fmt.Errorf("failed to marshal period: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, makePeriodKey(period.ID), data, 0)
	if current.Status != period.Status {
		pipe.SRem(ctx, makeStatusKey(current.Status), period.ID)
		pipe.SAdd(ctx, makeStatusKey(period.Status), period.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisRepository) Delete(ctx context.Context, id string) error {
	period, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, makePeriodKey(id))
	pipe.SRem(ctx, makeStatusKey(period.Status), id)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisRepository) GetByStatus(ctx context.Context, status models.PeriodStatus) ([]*models.ReferralPeriod, error) {
	ids, err := r.client.SMembers(ctx, makeStatusKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s periods: %w", status, err)
	}
	return r.fetchPeriods(ctx, ids)
}

func (r *redisRepository) GetAll(ctx context.Context) ([]*models.ReferralPeriod, error) {
	var all []*models.ReferralPeriod
	for _, status := range []models.PeriodStatus{
		models.PeriodStatusDraft,
		models.PeriodStatusActive,
		models.PeriodStatusCompleted,
		models.PeriodStatusCancelled,
	} {
		periods, err := r.GetByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		all = append(all, periods...)
	}
	return all, nil
}

func (r *redisRepository) fetchPeriods(ctx context.Context, ids []string) ([]*models.ReferralPeriod, error) {
	periods := make([]*models.ReferralPeriod, 0, len(ids))
	for _, id := range ids {
		period, err := r.GetByID(ctx, id)
		if err != nil {
			if err == repository.ErrPeriodNotFound {
				continue
			}
			return nil, fmt.Errorf("failed to get period %s: %w", id, err)
		}
		periods = append(periods, period)
	}
	return periods, nil
}

func (r *redisRepository) GetActive(ctx context.Context) (*models.ReferralPeriod, error) {
	id, err := r.client.Get(ctx, keyActivePeriod).Result()
	if err == redis.Nil {
		return nil, repository.ErrPeriodNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Activate claims the single-active pointer under WATCH so two concurrent
// activations cannot both win.
func (r *redisRepository) Activate(ctx context.Context, period *models.ReferralPeriod) error {
	data, err := json.Marshal(period)
	if err != nil {
		return fmt.Errorf("failed to marshal period: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, keyActivePeriod).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil && current != "" && current != period.ID {
			return repository.ErrActiveExists
		}

		stored, err := r.getStatusTx(ctx, tx, period.ID)
		if err != nil {
			return err
		}
		if stored != models.PeriodStatusDraft {
			return repository.ErrStatusMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, makePeriodKey(period.ID), data, 0)
			pipe.Set(ctx, keyActivePeriod, period.ID, 0)
			pipe.SRem(ctx, makeStatusKey(models.PeriodStatusDraft), period.ID)
			pipe.SAdd(ctx, makeStatusKey(models.PeriodStatusActive), period.ID)
			return nil
		})
		return err
	}

	return r.watchRetry(ctx, txf, keyActivePeriod, makePeriodKey(period.ID))
}

// Finish releases the active pointer and moves the period into its terminal
// status set.
func (r *redisRepository) Finish(ctx context.Context, period *models.ReferralPeriod) error {
	if !period.Status.IsTerminal() {
		return fmt.Errorf("finish requires a terminal status, got %s", period.Status)
	}

	data, err := json.Marshal(period)
	if err != nil {
		return fmt.Errorf("failed to marshal period: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		stored, err := r.getStatusTx(ctx, tx, period.ID)
		if err != nil {
			return err
		}
		if stored != models.PeriodStatusActive {
			return repository.ErrStatusMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, makePeriodKey(period.ID), data, 0)
			pipe.SRem(ctx, makeStatusKey(models.PeriodStatusActive), period.ID)
			pipe.SAdd(ctx, makeStatusKey(period.Status), period.ID)
			return nil
		})
		if err != nil {
			return err
		}

		// Release the pointer only if this period still holds it.
		current, err := r.client.Get(ctx, keyActivePeriod).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if current == period.ID {
			return r.client.Del(ctx, keyActivePeriod).Err()
		}
		return nil
	}

	return r.watchRetry(ctx, txf, keyActivePeriod, makePeriodKey(period.ID))
}

func (r *redisRepository) getStatusTx(ctx context.Context, tx *redis.Tx, id string) (models.PeriodStatus, error) {
	data, err := tx.Get(ctx, makePeriodKey(id)).Bytes()
	if err == redis.Nil {
		return "", repository.ErrPeriodNotFound
	}
	if err != nil {
		return "", err
	}
	var period models.ReferralPeriod
	if err := json.Unmarshal(data, &period); err != nil {
		return "", err
	}
	return period.Status, nil
}

func (r *redisRepository) watchRetry(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = r.client.Watch(ctx, txf, keys...)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return err
}

// SaveArchive writes the frozen snapshot exactly once. A second write for the
// same period fails instead of overwriting history.
func (r *redisRepository) SaveArchive(ctx context.Context, archive *models.PeriodArchive) error {
	data, err := json.Marshal(archive)
	if err != nil {
		return fmt.Errorf("failed to marshal archive: %w", err)
	}

	ok, err := r.client.SetNX(ctx, makeArchiveKey(archive.PeriodID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrArchiveExists
	}

	score := float64(archive.PeriodEnd.UnixMilli())
	return r.client.ZAdd(ctx, keyArchivesIndex, redis.Z{Score: score, Member: archive.PeriodID}).Err()
}

func (r *redisRepository) GetArchive(ctx context.Context, periodID string) (*models.PeriodArchive, error) {
	data, err := r.client.Get(ctx, makeArchiveKey(periodID)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrArchiveNotFound
	}
	if err != nil {
		return nil, err
	}

	var archive models.PeriodArchive
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, err
	}
	return &archive, nil
}

// ListArchives returns archives newest first.
func (r *redisRepository) ListArchives(ctx context.Context, limit, offset int) ([]*models.PeriodArchive, error) {
	if limit <= 0 {
		limit = 20
	}
	stop := int64(offset + limit - 1)

	ids, err := r.client.ZRevRange(ctx, keyArchivesIndex, int64(offset), stop).Result()
	if err != nil {
		return nil, err
	}

	archives := make([]*models.PeriodArchive, 0, len(ids))
	for _, id := range ids {
		archive, err := r.GetArchive(ctx, id)
		if err != nil {
			if err == repository.ErrArchiveNotFound {
				continue
			}
			return nil, err
		}
		archives = append(archives, archive)
	}
	return archives, nil
}
