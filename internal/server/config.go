package server

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/dgnsrekt/tartil/internal/store"
)

// EnvPrefix prefixes every server environment variable.
const EnvPrefix = "TARTIL_"

// Config configures the persistence server.
type Config struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	Debug           bool          `env:"DEBUG"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	Store store.Config `envPrefix:"STORE_"`
	Redis RedisConfig  `envPrefix:"REDIS_"`
	MQTT  MQTTConfig   `envPrefix:"MQTT_"`
}

// RedisConfig locates the redis instance holding list versions. ETags are
// kept in process when Addr is empty.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"`
}

// MQTTConfig locates the broker that receives change events. Events are
// dropped when Broker is empty.
type MQTTConfig struct {
	Broker   string        `env:"BROKER"`
	ClientID string        `env:"CLIENT_ID" envDefault:"tartil-server"`
	Topic    string        `env:"TOPIC" envDefault:"tartil"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

// LoadConfig reads .env files (missing ones are skipped) and then the
// environment.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Debug("no env file, relying on environment variables", "file", f)
				continue
			}
			return Config{}, fmt.Errorf("unable to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("unable to parse server environment: %w", err)
	}
	return cfg, nil
}
