package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	apperrors "referral-rewards-backend/internal/common/errors"
	"referral-rewards-backend/internal/common/logger"
	"referral-rewards-backend/internal/features/leaderboard/models"
	periodmodels "referral-rewards-backend/internal/features/period/models"
	periodrepo "referral-rewards-backend/internal/features/period/repository"
	referralrepo "referral-rewards-backend/internal/features/referral/repository"
)

// Cache is the subset of the shared cache service the leaderboard needs.
type Cache interface {
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, setter func() (interface{}, error)) error
}

// Service builds ranking views over the live ledger and serves frozen
// archives.
type Service struct {
	periods        periodrepo.PeriodRepository
	referrals      referralrepo.ReferralRepository
	cache          Cache
	leaderboardTTL time.Duration
	log            zerolog.Logger
}

func NewService(periods periodrepo.PeriodRepository, referrals referralrepo.ReferralRepository, cache Cache, leaderboardTTL time.Duration) *Service {
	return &Service{
		periods:        periods,
		referrals:      referrals,
		cache:          cache,
		leaderboardTTL: leaderboardTTL,
		log:            logger.With("leaderboard"),
	}
}

// GetLeaderboard ranks the active period's ledger. Ranks run 1..N with no
// gaps and no shared ranks; the tiebreak in BuildRankings makes the order
// total.
func (s *Service) GetLeaderboard(ctx context.Context, limit, offset int) (*models.Leaderboard, error) {
	period, err := s.periods.GetActive(ctx)
	if err != nil {
		if err == periodrepo.ErrPeriodNotFound {
			return nil, apperrors.NewNotFoundError("active period", nil)
		}
		return nil, apperrors.NewDatabaseError("get active period", err)
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var board models.Leaderboard
	key := fmt.Sprintf("leaderboard:%s", period.ID)
	err = s.cacheOrBuild(ctx, key, &board, func() (interface{}, error) {
		rankings, _, err := s.BuildRankings(ctx, period.ID)
		if err != nil {
			return nil, err
		}
		return &models.Leaderboard{
			PeriodID:    period.ID,
			PeriodName:  period.Name,
			Strategy:    period.Strategy,
			GeneratedAt: time.Now().UTC(),
			Total:       len(rankings),
			Entries:     rankings,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	board.Entries = paginate(board.Entries, limit, offset)
	return &board, nil
}

func (s *Service) cacheOrBuild(ctx context.Context, key string, dest *models.Leaderboard, build func() (interface{}, error)) error {
	if s.cache == nil {
		v, err := build()
		if err != nil {
			return err
		}
		*dest = *v.(*models.Leaderboard)
		return nil
	}
	return s.cache.GetOrSet(ctx, key, dest, s.leaderboardTTL, build)
}

func paginate(entries []periodmodels.RankingEntry, limit, offset int) []periodmodels.RankingEntry {
	if offset >= len(entries) {
		return []periodmodels.RankingEntry{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}

// BuildRankings materializes the full ranking for one period from its ledger.
// Ordering is strict: ties on total points go to the first mover, the wallet
// that linked or minted its code earliest.
func (s *Service) BuildRankings(ctx context.Context, periodID string) ([]periodmodels.RankingEntry, *periodmodels.ArchiveStats, error) {
	entries, err := s.referrals.ListLedgerEntries(ctx, periodID)
	if err != nil {
		return nil, nil, apperrors.NewDatabaseError("list ledger entries", err)
	}

	type scored struct {
		wallet    string
		trading   float64
		bonus     float64
		total     float64
		referrals int
		joined    time.Time
		seq       int64
	}

	farFuture := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]scored, 0, len(entries))
	for _, entry := range entries {
		row := scored{
			wallet:  entry.Wallet,
			trading: entry.TradingPoints,
			bonus:   entry.BonusPoints,
			total:   entry.TotalPoints(),
			joined:  farFuture,
			seq:     int64(1) << 62,
		}
		code, err := s.referrals.GetCodeByWallet(ctx, entry.Wallet)
		if err == nil {
			row.referrals = code.ReferralCount
			row.seq = code.Seq
			row.joined = code.CreatedAt
		} else if err != referralrepo.ErrCodeNotFound {
			return nil, nil, apperrors.NewDatabaseError("get code by wallet", err)
		}
		link, err := s.referrals.GetLinkByReferee(ctx, entry.Wallet)
		if err == nil {
			if link.LinkedAt.Before(row.joined) {
				row.joined = link.LinkedAt
			}
		} else if err != referralrepo.ErrLinkNotFound {
			return nil, nil, apperrors.NewDatabaseError("get link by referee", err)
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].total != rows[j].total {
			return rows[i].total > rows[j].total
		}
		if !rows[i].joined.Equal(rows[j].joined) {
			return rows[i].joined.Before(rows[j].joined)
		}
		if rows[i].seq != rows[j].seq {
			return rows[i].seq < rows[j].seq
		}
		return rows[i].wallet < rows[j].wallet
	})

	rankings := make([]periodmodels.RankingEntry, len(rows))
	stats := &periodmodels.ArchiveStats{TotalUsers: len(rows)}
	for i, row := range rows {
		rankings[i] = periodmodels.RankingEntry{
			Rank:        i + 1,
			Address:     row.wallet,
			Points:      row.total,
			Referrals:   row.referrals,
			BonusPoints: row.bonus,
		}
		stats.TotalReferrals += row.referrals
		stats.TotalBonusAwarded += row.bonus
	}
	if len(rankings) > 0 {
		stats.TopReferrer = rankings[0].Address
	}

	return rankings, stats, nil
}

// GetArchive returns one frozen season.
func (s *Service) GetArchive(ctx context.Context, periodID string) (*periodmodels.PeriodArchive, error) {
	archive, err := s.periods.GetArchive(ctx, periodID)
	if err != nil {
		if err == periodrepo.ErrArchiveNotFound {
			return nil, apperrors.NewNotFoundError("archive", periodID)
		}
		return nil, apperrors.NewDatabaseError("get archive", err)
	}
	return archive, nil
}

// ListArchives returns season summaries, newest first.
func (s *Service) ListArchives(ctx context.Context, limit, offset int) ([]models.ArchiveSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	archives, err := s.periods.ListArchives(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list archives", err)
	}

	summaries := make([]models.ArchiveSummary, len(archives))
	for i, archive := range archives {
		summaries[i] = models.ArchiveSummary{
			PeriodID:   archive.PeriodID,
			PeriodName: archive.PeriodName,
			Strategy:   archive.Strategy,
			PeriodEnd:  archive.PeriodEnd,
			TotalUsers: archive.Stats.TotalUsers,
		}
	}
	return summaries, nil
}
