package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// PINGER_E2E_ADDR targets a running server, empty starts one in process
	ServerAddr string `envconfig:"PINGER_E2E_ADDR"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
