package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "referral-rewards-backend/docs"
	"referral-rewards-backend/internal/common/cache"
	"referral-rewards-backend/internal/common/config"
	"referral-rewards-backend/internal/common/logger"
	"referral-rewards-backend/internal/common/middleware"
	leaderboardHTTP "referral-rewards-backend/internal/features/leaderboard/delivery/http"
	leaderboardService "referral-rewards-backend/internal/features/leaderboard/service"
	periodHTTP "referral-rewards-backend/internal/features/period/delivery/http"
	periodRedis "referral-rewards-backend/internal/features/period/repository/redis"
	periodService "referral-rewards-backend/internal/features/period/service"
	referralHTTP "referral-rewards-backend/internal/features/referral/delivery/http"
	referralRedis "referral-rewards-backend/internal/features/referral/repository/redis"
	referralService "referral-rewards-backend/internal/features/referral/service"
	"referral-rewards-backend/internal/features/referral/worker"
	"referral-rewards-backend/internal/features/reward"
	"referral-rewards-backend/internal/platform/redis"
)

// @title           Referral Rewards API
// @version         1.0
// @description     Backend for referral reward competitions on a prediction market. Periods, strategies, leaderboards and archived seasons.

// @host      localhost:8080
// @BasePath  /api/v1

// @tag.name admin
// @tag.description Period lifecycle administration

// @tag.name referral
// @tag.description Referral codes, signups and personal stats

// @tag.name leaderboard
// @tag.description Live rankings and archived seasons

// @tag.name events
// @tag.description Trading event ingest

func main() {
	cfg := config.Load()

	logger.Init("referral-rewards-backend", cfg.Debug)
	log := logger.With("main")

	log.Info().Bool("debug", cfg.Debug).Msg("starting referral rewards backend")

	redisClient, err := redis.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	cacheService := cache.NewCacheService(redisClient)
	registry := reward.NewRegistry()

	periodRepo := periodRedis.NewRedisPeriodRepository(redisClient)
	referralRepo := referralRedis.NewRedisReferralRepository(redisClient)

	leaderboardSvc := leaderboardService.NewService(periodRepo, referralRepo, cacheService, cfg.Cache.LeaderboardTTL)
	periodSvc := periodService.NewService(periodRepo, leaderboardSvc, registry, cacheService)
	referralSvc := referralService.NewService(referralRepo, periodRepo, registry)

	scheduler := periodService.NewScheduler(periodSvc, cfg.Scheduler.PollInterval)
	scheduler.Start()
	defer scheduler.Stop()

	streamWorker := worker.NewStreamWorker(redisClient, referralSvc, cfg)
	streamWorker.Start()
	defer streamWorker.Stop()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.ErrorHandler(logger.With("http")))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", "X-Wallet", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	v1 := router.Group("/api/v1")
	periodHTTP.NewPeriodHandler(periodSvc).RegisterRoutes(v1)
	referralHTTP.NewReferralHandler(referralSvc).RegisterRoutes(v1)
	leaderboardHTTP.NewLeaderboardHandler(leaderboardSvc).RegisterRoutes(v1)

	registerProbes(router, redisClient)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

func registerProbes(router *gin.Engine, redisClient *goredis.Client) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "referral-rewards-backend",
		})
	})

	router.GET("/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unready",
				"error":   "redis unavailable",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   "referral-rewards-backend",
		})
	})
}
