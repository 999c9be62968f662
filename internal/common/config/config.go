package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Scheduler struct {
		// Poll interval for the period reset scheduler.
		PollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL" envDefault:"60s"`
	}

	Events struct {
		// Redis stream carrying trading activity events.
		Stream        string `env:"EVENTS_STREAM" envDefault:"trading:events"`
		ConsumerGroup string `env:"EVENTS_CONSUMER_GROUP" envDefault:"referral_backend_consumers"`
		ConsumerName  string `env:"EVENTS_CONSUMER_NAME" envDefault:"referral_worker_1"`
	}

	Cache struct {
		LeaderboardTTL  time.Duration `env:"CACHE_LEADERBOARD_TTL" envDefault:"30s"`
		ActivePeriodTTL time.Duration `env:"CACHE_ACTIVE_PERIOD_TTL" envDefault:"10s"`
	}
}

func Load() *Config {
	// .env is optional; production sets variables directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}
