package worker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"referral-rewards-backend/internal/common/config"
	"referral-rewards-backend/internal/common/logger"
	"referral-rewards-backend/internal/common/middleware"
	"referral-rewards-backend/internal/features/referral/models"
	"referral-rewards-backend/internal/features/referral/service"
)

// StreamWorker consumes trading events from a Redis stream and feeds them to
// the referral service. Messages are acknowledged whether or not processing
// succeeds; a poison message must not wedge the stream.
type StreamWorker struct {
	rdb       *redis.Client
	referrals *service.Service
	stream    string
	group     string
	consumer  string
	log       zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewStreamWorker(rdb *redis.Client, referrals *service.Service, cfg *config.Config) *StreamWorker {
	return &StreamWorker{
		rdb:       rdb,
		referrals: referrals,
		stream:    cfg.Events.Stream,
		group:     cfg.Events.ConsumerGroup,
		consumer:  cfg.Events.ConsumerName,
		log:       logger.With("stream_worker"),
	}
}

func (w *StreamWorker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	err := w.rdb.XGroupCreateMkStream(ctx, w.stream, w.group, "$").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		w.log.Error().Err(err).Str("stream", w.stream).Msg("failed to create consumer group")
	}

	w.log.Info().Str("stream", w.stream).Str("group", w.group).Msg("starting trading event worker")
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.consume(ctx)
	}()
}

func (w *StreamWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info().Msg("trading event worker stopped")
}

func (w *StreamWorker) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			entries, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    w.group,
				Consumer: w.consumer,
				Streams:  []string{w.stream, ">"},
				Count:    16,
				Block:    5 * time.Second,
			}).Result()
			if err != nil {
				if err == redis.Nil || ctx.Err() != nil {
					continue
				}
				w.log.Error().Err(err).Msg("failed to read from stream")
				time.Sleep(time.Second)
				continue
			}

			for _, stream := range entries {
				for _, msg := range stream.Messages {
					w.handleMessage(ctx, msg)
					w.rdb.XAck(ctx, w.stream, w.group, msg.ID)
				}
			}
		}
	}
}

func (w *StreamWorker) handleMessage(ctx context.Context, msg redis.XMessage) {
	event, err := parseEvent(msg.Values)
	if err != nil {
		w.log.Warn().Err(err).Str("msg_id", msg.ID).Msg("dropping malformed stream message")
		return
	}

	if err := w.referrals.ProcessEvent(ctx, event); err != nil {
		w.log.Error().Err(err).
			Str("msg_id", msg.ID).
			Str("kind", event.Kind).
			Str("wallet", event.Wallet).
			Msg("failed to process trading event")
	}
}

func parseEvent(values map[string]interface{}) (*models.TradingEvent, error) {
	kind, _ := values["kind"].(string)
	rawWallet, _ := values["wallet"].(string)

	wallet, err := middleware.NormalizeWallet(rawWallet)
	if err != nil {
		return nil, err
	}

	event := &models.TradingEvent{Kind: kind, Wallet: wallet}

	if code, ok := values["code"].(string); ok {
		event.Code = code
	}
	if raw, ok := values["volume"].(string); ok {
		volume, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		event.Volume = volume
	}
	if raw, ok := values["at"].(string); ok {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, err
		}
		event.At = at
	}

	return event, nil
}
