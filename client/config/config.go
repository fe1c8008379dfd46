package config

import (
	"errors"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

var (
	ErrRead  = errors.New("unable to read configuration")
	ErrLevel = errors.New("unable to parse log level")
	ErrPorts = errors.New("invalid udp port range")
)

// Config holds participant settings. Optional yaml file and environment
// provide values, command line flags override them.
type Config struct {
	SignalURL   string   `yaml:"signal_url" env:"ROOMS_SIGNAL_URL" env-default:"ws://localhost:8888/signal"`
	APIURL      string   `yaml:"api_url" env:"ROOMS_API_URL" env-default:"http://localhost:8080"`
	LogLevel    string   `yaml:"log_level" env:"ROOMS_LOG_LEVEL" env-default:"info"`
	Name        string   `yaml:"name" env:"ROOMS_NAME"`
	STUNServers []string `yaml:"stun_servers" env:"ROOMS_STUN_SERVERS" env-default:"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"`
	TURNServers []string `yaml:"turn_servers" env:"ROOMS_TURN_SERVERS"`
	TURNUser    string   `yaml:"turn_user" env:"ROOMS_TURN_USER"`
	TURNPass    string   `yaml:"turn_pass" env:"ROOMS_TURN_PASS"`
	UDPPortMin  uint16   `yaml:"udp_port_min" env:"ROOMS_UDP_PORT_MIN"`
	UDPPortMax  uint16   `yaml:"udp_port_max" env:"ROOMS_UDP_PORT_MAX"`
}

// Load reads configuration from path if given, otherwise from environment only.
func Load(path string) (*Config, error) {
	var (
		cfg Config
		err error
	)
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, errors.Join(ErrRead, err)
	}
	return &cfg, nil
}

// RegisterFlags binds flags to cfg using current values as defaults.
func (cfg *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&cfg.SignalURL, "signal-url", "s", cfg.SignalURL, "signaling websocket url")
	fs.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "rooms api base url")
	fs.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "log level")
	fs.StringVarP(&cfg.Name, "name", "n", cfg.Name, "display name")
	fs.StringSliceVar(&cfg.STUNServers, "stun", cfg.STUNServers, "stun server urls")
	fs.StringSliceVar(&cfg.TURNServers, "turn", cfg.TURNServers, "turn server urls")
	fs.StringVar(&cfg.TURNUser, "turn-user", cfg.TURNUser, "turn username")
	fs.StringVar(&cfg.TURNPass, "turn-pass", cfg.TURNPass, "turn password")
	fs.Uint16Var(&cfg.UDPPortMin, "udp-port-min", cfg.UDPPortMin, "lowest local udp port for media")
	fs.Uint16Var(&cfg.UDPPortMax, "udp-port-max", cfg.UDPPortMax, "highest local udp port for media")
}

func (cfg *Config) Validate() error {
	if (cfg.UDPPortMin == 0) != (cfg.UDPPortMax == 0) || cfg.UDPPortMin > cfg.UDPPortMax {
		return ErrPorts
	}
	return nil
}

func (cfg *Config) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.NoLevel, errors.Join(ErrLevel, err)
	}
	return lvl, nil
}
