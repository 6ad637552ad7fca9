package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	ServerWsURL   string `env:"SERVER_WS_URL"   envDefault:"ws://localhost:8085/ws"  validate:"required"`
	ServerRestURL string `env:"SERVER_REST_URL" envDefault:"http://localhost:8085"   validate:"required"`

	ArtworkID      string `env:"ARTWORK_ID"`
	CallerIdentity string `env:"CALLER_IDENTITY"`

	ReconnectMaxRetries int           `env:"RECONNECT_MAX_RETRIES" envDefault:"5"  validate:"min=1,max=100"`
	ReconnectDelay      time.Duration `env:"RECONNECT_DELAY"       envDefault:"2s"`

	BidAckTimeout time.Duration `env:"BID_ACK_TIMEOUT" envDefault:"5s"`
	CountdownTick time.Duration `env:"COUNTDOWN_TICK"  envDefault:"1s"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
