package config

import (
	"errors"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

var (
	ErrEnv   = errors.New("unable to read environment")
	ErrFlags = errors.New("unable to parse command line arguments")
	ErrLevel = errors.New("unable to parse log level")
)

// Config holds server settings. Environment provides defaults,
// command line flags override them.
type Config struct {
	APIListenAddr string  `env:"ROOMS_API_LISTEN_ADDR" env-default:":8080"`
	WSListenAddr  string  `env:"ROOMS_WS_LISTEN_ADDR" env-default:":8888"`
	LogLevel      string  `env:"ROOMS_LOG_LEVEL" env-default:"debug"`
	MessageRate   float64 `env:"ROOMS_WS_MESSAGE_RATE" env-default:"50"`
	MessageBurst  int     `env:"ROOMS_WS_MESSAGE_BURST" env-default:"100"`
}

func Load(args []string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Join(ErrEnv, err)
	}

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)
	fs.StringVarP(&cfg.APIListenAddr, "api-listen-addr", "a", cfg.APIListenAddr, "api listen address")
	fs.StringVarP(&cfg.WSListenAddr, "ws-listen-addr", "w", cfg.WSListenAddr, "websocket signaling listen address")
	fs.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "log level")
	fs.Float64Var(&cfg.MessageRate, "message-rate", cfg.MessageRate, "max inbound signaling messages per second per connection")
	fs.IntVar(&cfg.MessageBurst, "message-burst", cfg.MessageBurst, "inbound signaling message burst per connection")
	if err := fs.Parse(args); err != nil {
		return nil, errors.Join(ErrFlags, err)
	}
	return &cfg, nil
}

func (cfg *Config) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.NoLevel, errors.Join(ErrLevel, err)
	}
	return lvl, nil
}
