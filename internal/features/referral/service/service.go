package service

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "referral-rewards-backend/internal/common/errors"
	"referral-rewards-backend/internal/common/logger"
	periodmodels "referral-rewards-backend/internal/features/period/models"
	periodrepo "referral-rewards-backend/internal/features/period/repository"
	"referral-rewards-backend/internal/features/referral/models"
	"referral-rewards-backend/internal/features/referral/repository"
	"referral-rewards-backend/internal/features/reward"
)

const (
	codeLength      = 8
	codeCharset     = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxCodeAttempts = 5
)

// Service handles codes, links and event processing against the active
// period's ruleset.
type Service struct {
	repo     repository.ReferralRepository
	periods  periodrepo.PeriodRepository
	registry *reward.Registry
	log      zerolog.Logger
	now      func() time.Time
	randInt  func(n int) int
}

func NewService(repo repository.ReferralRepository, periods periodrepo.PeriodRepository, registry *reward.Registry) *Service {
	return &Service{
		repo:     repo,
		periods:  periods,
		registry: registry,
		log:      logger.With("referral_service"),
		now:      time.Now,
		randInt:  rand.Intn,
	}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetOrCreateCode returns the wallet's code, minting one on first use.
func (s *Service) GetOrCreateCode(ctx context.Context, wallet string) (*models.ReferralCode, error) {
	existing, err := s.repo.GetCodeByWallet(ctx, wallet)
	if err == nil {
		return existing, nil
	}
	if err != repository.ErrCodeNotFound {
		return nil, apperrors.NewDatabaseError("get code by wallet", err)
	}

	seq, err := s.repo.NextCodeSeq(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("next code seq", err)
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := &models.ReferralCode{
			Code:      s.generateCode(),
			Wallet:    wallet,
			Seq:       seq,
			CreatedAt: s.now().UTC(),
		}
		err := s.repo.CreateCode(ctx, code)
		if err == nil {
			s.log.Info().Str("wallet", wallet).Str("code", code.Code).Msg("referral code minted")
			return code, nil
		}
		if err != repository.ErrCodeTaken {
			return nil, apperrors.NewDatabaseError("create code", err)
		}
	}
	return nil, apperrors.New(apperrors.ErrCodeInternal, "could not mint a unique referral code")
}

func (s *Service) generateCode() string {
	var b strings.Builder
	b.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeCharset[s.randInt(len(codeCharset))])
	}
	return b.String()
}

// RegisterSignup links a new wallet to the owner of the given code and pays
// the signup bonus into the active period's ledger, when one is configured.
func (s *Service) RegisterSignup(ctx context.Context, code, referee string) (*models.ReferralLink, error) {
	rc, err := s.repo.GetCode(ctx, code)
	if err != nil {
		if err == repository.ErrCodeNotFound {
			return nil, apperrors.NewNotFoundError("referral code", code)
		}
		return nil, apperrors.NewDatabaseError("get code", err)
	}

	if rc.Wallet == referee {
		return nil, apperrors.NewValidationError("code", "self-referral is not allowed")
	}

	link := &models.ReferralLink{
		Referrer: rc.Wallet,
		Referee:  referee,
		Status:   models.LinkStatusPending,
		LinkedAt: s.now().UTC(),
	}

	if err := s.repo.CreateLink(ctx, link); err != nil {
		if err == repository.ErrLinkExists {
			return nil, apperrors.NewConflictError("referral link", "wallet is already referred")
		}
		return nil, apperrors.NewDatabaseError("create link", err)
	}

	if err := s.repo.IncrementReferralCount(ctx, rc.Code); err != nil {
		s.log.Error().Err(err).Str("code", rc.Code).Msg("failed to bump referral count")
	}

	// Signup bonus lands in the period that is active at signup time. No
	// active period, no bonus.
	period, err := s.periods.GetActive(ctx)
	if err == nil && period.RefereeBenefits.SignupBonus > 0 {
		if err := s.repo.AddPoints(ctx, period.ID, referee, 0, period.RefereeBenefits.SignupBonus); err != nil {
			s.log.Error().Err(err).Str("wallet", referee).Msg("failed to credit signup bonus")
		}
	} else if err != nil && err != periodrepo.ErrPeriodNotFound {
		return nil, apperrors.NewDatabaseError("get active period", err)
	}

	s.log.Info().Str("referrer", rc.Wallet).Str("referee", referee).Msg("referral registered")
	return link, nil
}

// ProcessEvent routes one trading event. Signup events must carry a code;
// bet events accrue points under the active period's strategy.
func (s *Service) ProcessEvent(ctx context.Context, event *models.TradingEvent) error {
	at := event.At
	if at.IsZero() {
		at = s.now().UTC()
	}

	switch event.Kind {
	case string(reward.EventSignup):
		if event.Code == "" {
			return apperrors.NewValidationError("code", "signup events require a referral code")
		}
		_, err := s.RegisterSignup(ctx, event.Code, event.Wallet)
		return err

	case string(reward.EventBet):
		if event.Volume < 0 {
			return apperrors.NewValidationError("volume", "must not be negative")
		}
		return s.processBet(ctx, event.Wallet, event.Volume, at)

	default:
		return apperrors.NewValidationError("kind", "must be signup or bet")
	}
}

// processBet resolves the active period once and computes the award against
// that snapshot. Events arriving with no active period still advance the
// link's lifetime volume so later periods see accurate history.
func (s *Service) processBet(ctx context.Context, wallet string, volume float64, at time.Time) error {
	link, err := s.repo.GetLinkByReferee(ctx, wallet)
	if err != nil && err != repository.ErrLinkNotFound {
		return apperrors.NewDatabaseError("get link", err)
	}
	if err == repository.ErrLinkNotFound {
		link = nil
	}

	period, err := s.periods.GetActive(ctx)
	if err != nil {
		if err == periodrepo.ErrPeriodNotFound {
			return s.recordBetOutsidePeriod(ctx, link, volume, at)
		}
		return apperrors.NewDatabaseError("get active period", err)
	}

	strategy, err := s.registry.Get(period.Strategy)
	if err != nil {
		return err
	}

	// Referred wallets only qualify volume up to the configured stake cap.
	qualifying := volume
	if link != nil && period.RefereeBenefits.MaxStake > 0 && qualifying > period.RefereeBenefits.MaxStake {
		qualifying = period.RefereeBenefits.MaxStake
	}

	event := reward.Event{Kind: reward.EventBet, Wallet: wallet, Volume: qualifying, At: at}

	st, err := s.buildState(ctx, period, strategy, event, link)
	if err != nil {
		return err
	}

	delta, err := strategy.ComputeDelta(event, link, st, &period.StrategyConfig)
	if err != nil {
		return err
	}

	// First referred bet gets the configured boost on top of the strategy
	// outcome.
	firstBet := link != nil && link.FirstBetAt == nil
	if firstBet && period.RefereeBenefits.FirstBetMultiplier > 1 {
		delta.TradingPoints *= period.RefereeBenefits.FirstBetMultiplier
	}

	if err := s.repo.AddPoints(ctx, period.ID, wallet, delta.TradingPoints, delta.BonusPoints); err != nil {
		return apperrors.NewDatabaseError("add points", err)
	}
	if link != nil && delta.ReferrerBonus > 0 {
		if err := s.repo.AddPoints(ctx, period.ID, link.Referrer, 0, delta.ReferrerBonus); err != nil {
			return apperrors.NewDatabaseError("add referrer bonus", err)
		}
		if period.Strategy == periodmodels.StrategyRevenueShare {
			month := at.UTC().Format("2006-01")
			if err := s.repo.AddMonthShare(ctx, period.ID, link.Referrer, month, delta.ReferrerBonus); err != nil {
				return apperrors.NewDatabaseError("add month share", err)
			}
		}
	}

	if link != nil {
		s.advanceLink(link, &delta, strategy, &period.StrategyConfig, qualifying, at)
		if err := s.repo.UpdateLink(ctx, link); err != nil {
			return apperrors.NewDatabaseError("update link", err)
		}
	}

	return nil
}

// recordBetOutsidePeriod keeps link history moving when no competition is
// running.
func (s *Service) recordBetOutsidePeriod(ctx context.Context, link *models.ReferralLink, volume float64, at time.Time) error {
	if link == nil {
		return nil
	}
	if link.FirstBetAt == nil {
		link.FirstBetAt = &at
	}
	link.LastBetAt = &at
	if volume > 0 {
		link.LifetimeVolume += volume
	}
	if err := s.repo.UpdateLink(ctx, link); err != nil {
		return apperrors.NewDatabaseError("update link", err)
	}
	return nil
}

// advanceLink folds the processed bet into the link's derived state.
func (s *Service) advanceLink(link *models.ReferralLink, delta *reward.Delta, strategy reward.Strategy, cfg *periodmodels.StrategyConfig, volume float64, at time.Time) {
	if link.FirstBetAt == nil {
		link.FirstBetAt = &at
	}
	link.LastBetAt = &at
	if volume > 0 {
		link.LifetimeVolume += volume
	}
	link.ShareAccrued += delta.ReferrerBonus
	link.MilestonesFired = append(link.MilestonesFired, delta.FiredMilestones...)
	link.RefereeMilestonesFired = append(link.RefereeMilestonesFired, delta.FiredRefereeMilestones...)

	if link.Status == models.LinkStatusPending && strategy.IsActiveReferral(link, cfg, at) {
		link.Status = models.LinkStatusActive
	}
}

// buildState gathers the repository-derived snapshots the period's strategy
// needs.
func (s *Service) buildState(ctx context.Context, period *periodmodels.ReferralPeriod, strategy reward.Strategy, event reward.Event, link *models.ReferralLink) (reward.State, error) {
	var st reward.State

	switch period.Strategy {
	case periodmodels.StrategyGrowthMultiplier:
		count, err := s.countActiveReferrals(ctx, event.Wallet, strategy, &period.StrategyConfig, event.At)
		if err != nil {
			return st, err
		}
		st.BettorActiveReferrals = count

	case periodmodels.StrategyRevenueShare:
		if link != nil {
			month := event.At.UTC().Format("2006-01")
			share, err := s.repo.GetMonthShare(ctx, period.ID, link.Referrer, month)
			if err != nil {
				return st, apperrors.NewDatabaseError("get month share", err)
			}
			st.ReferrerMonthShare = share
		}

	case periodmodels.StrategyTeamVolume:
		// The team is keyed by its referrer; unreferred bettors lead their
		// own team.
		owner := event.Wallet
		if link != nil {
			owner = link.Referrer
		}
		window := reward.WindowKey(period.StrategyConfig.ResetFrequency, event.At)
		total, err := s.repo.AddTeamVolume(ctx, period.ID, owner, window, event.Volume)
		if err != nil {
			return st, apperrors.NewDatabaseError("add team volume", err)
		}
		st.TeamVolume = total
	}

	return st, nil
}

func (s *Service) countActiveReferrals(ctx context.Context, referrer string, strategy reward.Strategy, cfg *periodmodels.StrategyConfig, now time.Time) (int, error) {
	referees, err := s.repo.GetReferees(ctx, referrer)
	if err != nil {
		return 0, apperrors.NewDatabaseError("get referees", err)
	}

	count := 0
	for _, referee := range referees {
		link, err := s.repo.GetLinkByReferee(ctx, referee)
		if err != nil {
			if err == repository.ErrLinkNotFound {
				continue
			}
			return 0, apperrors.NewDatabaseError("get link", err)
		}
		if strategy.IsActiveReferral(link, cfg, now) {
			count++
		}
	}
	return count, nil
}

// ListReferrals returns the caller's referees with their activity state under
// the active period's strategy.
func (s *Service) ListReferrals(ctx context.Context, referrer string) ([]models.ReferralInfo, error) {
	referees, err := s.repo.GetReferees(ctx, referrer)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get referees", err)
	}

	var strategy reward.Strategy
	var cfg *periodmodels.StrategyConfig
	if period, err := s.periods.GetActive(ctx); err == nil {
		if st, err := s.registry.Get(period.Strategy); err == nil {
			strategy = st
			cfg = &period.StrategyConfig
		}
	}

	now := s.now().UTC()
	infos := make([]models.ReferralInfo, 0, len(referees))
	for _, referee := range referees {
		link, err := s.repo.GetLinkByReferee(ctx, referee)
		if err != nil {
			if err == repository.ErrLinkNotFound {
				continue
			}
			return nil, apperrors.NewDatabaseError("get link", err)
		}
		info := models.ReferralInfo{
			Referee:        link.Referee,
			Status:         link.Status,
			LinkedAt:       link.LinkedAt,
			FirstBetAt:     link.FirstBetAt,
			LastBetAt:      link.LastBetAt,
			LifetimeVolume: link.LifetimeVolume,
		}
		if strategy != nil {
			info.Active = strategy.IsActiveReferral(link, cfg, now)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// GetMyStats summarizes the caller's standing in the active period.
func (s *Service) GetMyStats(ctx context.Context, wallet string) (*models.ReferralStats, error) {
	stats := &models.ReferralStats{Wallet: wallet}

	code, err := s.repo.GetCodeByWallet(ctx, wallet)
	if err == nil {
		stats.Code = code.Code
		stats.ReferralCount = code.ReferralCount
	} else if err != repository.ErrCodeNotFound {
		return nil, apperrors.NewDatabaseError("get code by wallet", err)
	}

	period, err := s.periods.GetActive(ctx)
	if err != nil {
		if err == periodrepo.ErrPeriodNotFound {
			return stats, nil
		}
		return nil, apperrors.NewDatabaseError("get active period", err)
	}

	strategy, err := s.registry.Get(period.Strategy)
	if err != nil {
		return nil, err
	}

	active, err := s.countActiveReferrals(ctx, wallet, strategy, &period.StrategyConfig, s.now().UTC())
	if err != nil {
		return nil, err
	}
	stats.ActiveReferrals = active

	entry, err := s.repo.GetLedgerEntry(ctx, period.ID, wallet)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get ledger entry", err)
	}
	stats.TradingPoints = entry.TradingPoints
	stats.BonusPoints = entry.BonusPoints
	stats.TotalPoints = entry.TotalPoints()

	return stats, nil
}
