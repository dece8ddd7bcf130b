package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from the environment (and a
// .env file loaded beforehand).
type Config struct {
	StorageType      string `env:"STORAGE_TYPE"`
	LocalStoragePath string `env:"LOCAL_STORAGE_PATH" envDefault:"./data"`
	DataSourceName   string `env:"DATA_SOURCE_NAME" envDefault:"portrait.db"`
	S3BucketName     string `env:"S3_BUCKET_NAME"`

	// JWTSecret enables bearer authentication on catalog uploads.
	JWTSecret      string   `env:"JWT_SECRET"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	CanvasWidth       float64       `env:"CANVAS_WIDTH" envDefault:"400"`
	CanvasHeight      float64       `env:"CANVAS_HEIGHT" envDefault:"400"`
	ExportScale       float64       `env:"EXPORT_SCALE" envDefault:"2"`
	ExportSettleDelay time.Duration `env:"EXPORT_SETTLE_DELAY" envDefault:"150ms"`
	MaxUploadBytes    int64         `env:"MAX_UPLOAD_BYTES" envDefault:"5242880"`
	MaxExports        int           `env:"MAX_EXPORTS" envDefault:"10"`
	ImageCacheBytes   int64         `env:"IMAGE_CACHE_BYTES" envDefault:"67108864"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Config and checks the values that would break the editor.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.CanvasWidth <= 0 || cfg.CanvasHeight <= 0 {
		return cfg, fmt.Errorf("canvas size must be positive, got %vx%v", cfg.CanvasWidth, cfg.CanvasHeight)
	}
	if cfg.ExportScale <= 0 {
		return cfg, fmt.Errorf("export scale must be positive, got %v", cfg.ExportScale)
	}
	if cfg.StorageType == "s3" && cfg.S3BucketName == "" {
		return cfg, fmt.Errorf("S3_BUCKET_NAME must be set for s3 storage type")
	}
	return cfg, nil
}
