package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type (
	Config struct {
		HTTP       HTTP
		Log        Log
		PG         PG
		Redis      Redis
		S3         S3
		Engine     Engine
		Thresholds Thresholds
		Worker     Worker
		Swagger    Swagger
	}

	HTTP struct {
		Port           string `env:"PORT" envDefault:"8080"`
		UsePreforkMode bool   `env:"HTTP_USE_PREFORK_MODE" envDefault:"false"`
	}

	Log struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
	}

	PG struct {
		PoolMax int    `env:"PG_POOL_MAX" envDefault:"10"`
		URL     string `env:"DATABASE_URL,required"`
	}

	Redis struct {
		URL string `env:"REDIS_URL,required"`
	}

	S3 struct {
		Endpoint       string        `env:"BLOB_ENDPOINT,required"`
		AccessKey      string        `env:"BLOB_ACCESS_KEY,required"`
		SecretKey      string        `env:"BLOB_SECRET_KEY,required"`
		Bucket         string        `env:"BLOB_BUCKET,required"`
		UseSSL         bool          `env:"BLOB_USE_SSL" envDefault:"true"`
		CfgLoadTimeout time.Duration `env:"BLOB_LOAD_CFG_TIMEOUT" envDefault:"10s"`
		PresignTTL     time.Duration `env:"BLOB_PRESIGN_TTL" envDefault:"1h"`
	}

	Engine struct {
		AlignerURL   string        `env:"ALIGNER_URL,required"`
		PaddleOCRURL string        `env:"PADDLEOCR_URL,required"`
		TesseractURL string        `env:"TESSERACT_URL,required"`
		Timeout      time.Duration `env:"OCR_ENGINE_TIMEOUT" envDefault:"10s"`
	}

	Thresholds struct {
		High float64 `env:"CONFIDENCE_THRESHOLD_HIGH" envDefault:"0.70"`
		Low  float64 `env:"CONFIDENCE_THRESHOLD_LOW" envDefault:"0.60"`
	}

	Worker struct {
		Concurrency     int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
		RatePerSecond   float64       `env:"WORKER_RATE_PER_SECOND" envDefault:"10"`
		ProcessTimeout  time.Duration `env:"WORKER_PROCESS_TIMEOUT" envDefault:"30s"`
		ShutdownTimeout time.Duration `env:"WORKER_SHUTDOWN_TIMEOUT" envDefault:"5s"`
		ReaperInterval  time.Duration `env:"WORKER_REAPER_INTERVAL" envDefault:"1s"`
	}

	Swagger struct {
		Enabled bool `env:"SWAGGER_ENABLED" envDefault:"false"`
	}
)

func New() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return cfg, nil
}
