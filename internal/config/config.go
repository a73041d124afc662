package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8090"`
	PostgresDSN   string `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr     string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	FeaturedRefreshInterval time.Duration `env:"FEATURED_REFRESH_INTERVAL" envDefault:"5m"`

	// Peak window (UTC hours) during which the hourly stats refresh fires.
	StatsPeakStartHour int `env:"STATS_PEAK_START_HOUR" envDefault:"9"`
	StatsPeakEndHour   int `env:"STATS_PEAK_END_HOUR" envDefault:"23"`

	SyncConcurrency        int `env:"SYNC_CONCURRENCY" envDefault:"3"`
	ProcessingConcurrency  int `env:"PROCESSING_CONCURRENCY" envDefault:"5"`
	MaintenanceConcurrency int `env:"MAINTENANCE_CONCURRENCY" envDefault:"1"`

	JobTimeout time.Duration `env:"JOB_TIMEOUT" envDefault:"10m"`

	YouTubeAPIKey  string `env:"YOUTUBE_API_KEY"`
	YouTubeBaseURL string `env:"YOUTUBE_BASE_URL" envDefault:"https://www.googleapis.com/youtube/v3"`
}

func Load() Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}
	return c
}

// IsProduction gates the recurring schedule triggers: non-production
// deployments must not burn shared external API quota.
func (c Config) IsProduction() bool { return c.AppEnv == "production" }
