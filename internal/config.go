package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8000"`
	GrpcHealthPort int    `env:"GRPC_HEALTH_PORT,default=8001"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	GinMode        string `env:"GIN_MODE,default=release"`

	JWTSecret          string        `env:"JWT_SECRET"`
	TokenTTL           time.Duration `env:"TOKEN_TTL,default=1h"`
	TokenUpgradeWindow time.Duration `env:"TOKEN_UPGRADE_WINDOW,default=60s"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE,default=120"`
	CleanupInterval    time.Duration `env:"CLEANUP_INTERVAL,default=60s"`
	ClientsRequireAuth bool          `env:"CLIENTS_REQUIRE_AUTH,default=false"`
	CensorCharacter    string        `env:"CENSOR_CHARACTER,default=*"`

	IdleTimeout          time.Duration `env:"IDLE_TIMEOUT,default=120s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	EventBufferSize      int           `env:"EVENT_BUFFER_SIZE,default=256"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=5s"`

	QueueCapPerIdentity int           `env:"QUEUE_CAP_PER_IDENTITY,default=100"`
	PingRetention       time.Duration `env:"PING_RETENTION,default=168h"`
	BadgerFilepath      string        `env:"BADGER_FILEPATH"`
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CENSOR_CHARACTER must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
