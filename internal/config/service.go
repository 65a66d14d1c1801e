package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ServiceConfig configures `bibnorm serve`. Values come from BIBNORM_* variables.
type ServiceConfig struct {
	HTTPPort         string        `envconfig:"HTTP_PORT" default:"4242"`
	APIKey           string        `envconfig:"API_KEY"`
	WriteRatePerSec  float64       `envconfig:"WRITE_RATE" default:"20"`
	WriteBurst       int           `envconfig:"WRITE_BURST" default:"40"`
	AutosaveSchedule string        `envconfig:"AUTOSAVE_SCHEDULE" default:"@every 5m"`
	DetailsCacheTTL  time.Duration `envconfig:"DETAILS_CACHE_TTL" default:"10m"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
}

// EnvPrefix is the prefix of every service variable.
const EnvPrefix = "BIBNORM"

// LoadService reads ServiceConfig from the environment.
func LoadService() (*ServiceConfig, error) {
	var c ServiceConfig
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
