package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverBLE = "ble"
	DriverKCP = "kcp"
)

type Config struct {
	LogLevel   string     `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort   string     `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	Redis      Redis      `yaml:"redis"`
	Suggester  Suggester  `yaml:"suggester"`
	Peripheral Peripheral `yaml:"peripheral"`
}

type Redis struct {
	Enabled bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Host    string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port    string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

// Suggester configures the remote opponent. An empty APIKey disables the remote call and every
// suggestion becomes a random empty cell.
type Suggester struct {
	APIKey          string        `yaml:"api-key" env:"API_KEY" env-default:""`
	Model           string        `yaml:"model" env-default:"gemini-2.5-flash"`
	Temperature     float32       `yaml:"temperature" env-default:"0.2"`
	MaxOutputTokens int32         `yaml:"max-output-tokens" env-default:"10"`
	ThinkDelay      time.Duration `yaml:"think-delay" env-default:"600ms"`
	Timeout         time.Duration `yaml:"timeout" env-default:"10s"`
}

type Peripheral struct {
	Driver             string        `yaml:"driver" env:"PERIPHERAL_DRIVER" env-default:"ble"`
	ServiceUUID        string        `yaml:"service-uuid" env-default:"12345678-1234-1234-1234-123456789abc"`
	CharacteristicUUID string        `yaml:"characteristic-uuid" env-default:"87654321-4321-4321-4321-cba987654321"`
	ScanTimeout        time.Duration `yaml:"scan-timeout" env-default:"15s"`
	KCPAddr            string        `yaml:"kcp-addr" env:"PERIPHERAL_KCP_ADDR" env-default:"127.0.0.1:7777"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	if err := config.Peripheral.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}

func (that *Peripheral) validate() error {
	switch that.Driver {
	case DriverBLE, DriverKCP:
		return nil
	default:
		return fmt.Errorf("unknown peripheral driver %q", that.Driver)
	}
}
