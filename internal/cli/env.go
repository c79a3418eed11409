package cli

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type envConfig struct {
	APIKey string `env:"OPENAI_API_KEY"`

	Model          string        `env:"VIDSTAMP_MODEL"             envDefault:"gpt-4o"`
	BaseURL        string        `env:"VIDSTAMP_BASE_URL"          envDefault:"https://api.openai.com"`
	AllowedHosts   []string      `env:"VIDSTAMP_ALLOWED_HOSTS"     envSeparator:","`
	Workers        int           `env:"VIDSTAMP_WORKERS"           envDefault:"1"`
	MaxInFlight    int           `env:"VIDSTAMP_MAX_INFLIGHT"      envDefault:"2"`
	MaxRetries     int           `env:"VIDSTAMP_MAX_RETRIES"       envDefault:"3"`
	RetryBaseDelay time.Duration `env:"VIDSTAMP_RETRY_BASE_DELAY"  envDefault:"1s"`
	RequestTimeout time.Duration `env:"VIDSTAMP_REQUEST_TIMEOUT"   envDefault:"90s"`

	FFmpegPath  string `env:"VIDSTAMP_FFMPEG"  envDefault:"ffmpeg"`
	FFprobePath string `env:"VIDSTAMP_FFPROBE" envDefault:"ffprobe"`

	LogLevel string `env:"VIDSTAMP_LOG_LEVEL" envDefault:"info"`
}

func loadEnv() (envConfig, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return envConfig{}, err
	}
	return cfg, nil
}
