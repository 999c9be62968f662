package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"referral-rewards-backend/internal/features/referral/models"
	"referral-rewards-backend/internal/features/referral/repository"
)

const (
	keyPrefixCode     = "code:"
	keyPrefixLink     = "link:"
	keyCodeSeq        = "codes:seq"
	fieldTradingPts   = "trading_points"
	fieldBonusPts     = "bonus_points"
)

type redisRepository struct {
	client *redis.Client
}

func NewRedisReferralRepository(client *redis.Client) repository.ReferralRepository {
	return &redisRepository{client: client}
}

func makeCodeKey(code string) string {
	return keyPrefixCode + strings.ToUpper(code)
}

func makeWalletCodeKey(wallet string) string {
	return fmt.Sprintf("wallet:%s:code", wallet)
}

func makeLinkKey(referee string) string {
	return keyPrefixLink + referee
}

func makeRefereesKey(referrer string) string {
	return fmt.Sprintf("referrals:%s", referrer)
}

func makeLedgerKey(periodID, wallet string) string {
	return fmt.Sprintf("ledger:%s:%s", periodID, wallet)
}

func makeLedgerWalletsKey(periodID string) string {
	return fmt.Sprintf("ledger:%s:wallets", periodID)
}

func makeShareKey(periodID, referrer, month string) string {
	return fmt.Sprintf("share:%s:%s:%s", periodID, referrer, month)
}

func makeTeamKey(periodID, referrer, window string) string {
	return fmt.Sprintf("team:%s:%s:%s", periodID, referrer, window)
}

func (r *redisRepository) CreateCode(ctx context.Context, code *models.ReferralCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal code: %w", err)
	}

	ok, err := r.client.SetNX(ctx, makeCodeKey(code.Code), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrCodeTaken
	}

	return r.client.Set(ctx, makeWalletCodeKey(code.Wallet), strings.ToUpper(code.Code), 0).Err()
}

func (r *redisRepository) GetCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	data, err := r.client.Get(ctx, makeCodeKey(code)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}

	var rc models.ReferralCode
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *redisRepository) GetCodeByWallet(ctx context.Context, wallet string) (*models.ReferralCode, error) {
	code, err := r.client.Get(ctx, makeWalletCodeKey(wallet)).Result()
	if err == redis.Nil {
		return nil, repository.ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetCode(ctx, code)
}

func (r *redisRepository) IncrementReferralCount(ctx context.Context, code string) error {
	rc, err := r.GetCode(ctx, code)
	if err != nil {
		return err
	}
	rc.ReferralCount++

	data, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("failed to marshal code: %w", err)
	}
	return r.client.Set(ctx, makeCodeKey(rc.Code), data, 0).Err()
}

func (r *redisRepository) NextCodeSeq(ctx context.Context) (int64, error) {
	return r.client.Incr(ctx, keyCodeSeq).Result()
}

func (r *redisRepository) CreateLink(ctx context.Context, link *models.ReferralLink) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	ok, err := r.client.SetNX(ctx, makeLinkKey(link.Referee), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrLinkExists
	}

	return r.client.SAdd(ctx, makeRefereesKey(link.Referrer), link.Referee).Err()
}

func (r *redisRepository) GetLinkByReferee(ctx context.Context, referee string) (*models.ReferralLink, error) {
	data, err := r.client.Get(ctx, makeLinkKey(referee)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}

	var link models.ReferralLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *redisRepository) UpdateLink(ctx context.Context, link *models.ReferralLink) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}
	return r.client.Set(ctx, makeLinkKey(link.Referee), data, 0).Err()
}

func (r *redisRepository) GetReferees(ctx context.Context, referrer string) ([]string, error) {
	return r.client.SMembers(ctx, makeRefereesKey(referrer)).Result()
}

func (r *redisRepository) AddPoints(ctx context.Context, periodID, wallet string, tradingPoints, bonusPoints float64) error {
	if tradingPoints == 0 && bonusPoints == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	key := makeLedgerKey(periodID, wallet)
	if tradingPoints != 0 {
		pipe.HIncrByFloat(ctx, key, fieldTradingPts, tradingPoints)
	}
	if bonusPoints != 0 {
		pipe.HIncrByFloat(ctx, key, fieldBonusPts, bonusPoints)
	}
	pipe.SAdd(ctx, makeLedgerWalletsKey(periodID), wallet)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *redisRepository) GetLedgerEntry(ctx context.Context, periodID, wallet string) (*models.LedgerEntry, error) {
	fields, err := r.client.HGetAll(ctx, makeLedgerKey(periodID, wallet)).Result()
	if err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{Wallet: wallet}
	if v, ok := fields[fieldTradingPts]; ok {
		entry.TradingPoints, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := fields[fieldBonusPts]; ok {
		entry.BonusPoints, _ = strconv.ParseFloat(v, 64)
	}
	return entry, nil
}

func (r *redisRepository) ListLedgerEntries(ctx context.Context, periodID string) ([]*models.LedgerEntry, error) {
	wallets, err := r.client.SMembers(ctx, makeLedgerWalletsKey(periodID)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]*models.LedgerEntry, 0, len(wallets))
	for _, wallet := range wallets {
		entry, err := r.GetLedgerEntry(ctx, periodID, wallet)
		if err != nil {
			return nil, fmt.Errorf("failed to get ledger entry for %s: %w", wallet, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *redisRepository) AddMonthShare(ctx context.Context, periodID, referrer, month string, amount float64) error {
	if amount == 0 {
		return nil
	}
	return r.client.IncrByFloat(ctx, makeShareKey(periodID, referrer, month), amount).Err()
}

func (r *redisRepository) GetMonthShare(ctx context.Context, periodID, referrer, month string) (float64, error) {
	v, err := r.client.Get(ctx, makeShareKey(periodID, referrer, month)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

func (r *redisRepository) AddTeamVolume(ctx context.Context, periodID, referrer, window string, amount float64) (float64, error) {
	return r.client.IncrByFloat(ctx, makeTeamKey(periodID, referrer, window), amount).Result()
}

func (r *redisRepository) GetTeamVolume(ctx context.Context, periodID, referrer, window string) (float64, error) {
	v, err := r.client.Get(ctx, makeTeamKey(periodID, referrer, window)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}
