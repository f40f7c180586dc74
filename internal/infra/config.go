package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config - корневая структура конфигурации монитора.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Finesse FinesseConfig `mapstructure:"finesse"`
	Poller  PollerConfig  `mapstructure:"poller"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера (дашборд и /agents).
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// Addr возвращает адрес для net.Listen.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FinesseConfig описывает подключение к Finesse REST API.
type FinesseConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`

	// InsecureSkipVerify отключает проверку TLS-сертификата Finesse.
	// В лабораторном стенде сертификат самоподписанный, поэтому по умолчанию true.
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`

	// Ограничение частоты запросов к Finesse (0 - без ограничения)
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BaseURL - https://host:port без завершающего слэша.
func (c FinesseConfig) BaseURL() string {
	return fmt.Sprintf("https://%s:%d", c.Host, c.Port)
}

// BreakerConfig - настройки Circuit Breaker вокруг Finesse. Выключен по умолчанию.
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// PollerConfig описывает цикл опроса.
type PollerConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	DialogConcurrency int           `mapstructure:"dialog_concurrency"`
	PruneMissing      bool          `mapstructure:"prune_missing"`
}

// RedisConfig описывает трансляцию смен статусов в Redis Pub/Sub. Пустой Addr - выключено.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// Enabled сообщает, нужно ли поднимать Redis sink.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// MetricsConfig - экспорт Prometheus.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// Переменные окружения перекрывают файл: FINESSE_HOST перекроет finesse.host.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Файла нет - работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("finesse.host", "198.18.133.16")
	v.SetDefault("finesse.port", 8445)
	v.SetDefault("finesse.user", "administrator")
	v.SetDefault("finesse.pass", "C1sco12345")
	v.SetDefault("finesse.insecure_skip_verify", true)
	v.SetDefault("finesse.request_timeout", 10*time.Second)
	v.SetDefault("finesse.rate_limit", 0)
	v.SetDefault("finesse.rate_burst", 10)
	v.SetDefault("finesse.breaker.enabled", false)
	v.SetDefault("finesse.breaker.max_requests", 1)
	v.SetDefault("finesse.breaker.interval", 30*time.Second)
	v.SetDefault("finesse.breaker.timeout", 10*time.Second)
	v.SetDefault("finesse.breaker.consecutive_failures", 5)

	v.SetDefault("poller.interval", 2*time.Second)
	v.SetDefault("poller.dialog_concurrency", 4)
	v.SetDefault("poller.prune_missing", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", RedisChanStateChange)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// Validate отсекает значения, с которыми сервис не сможет работать.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("config: server.port must be positive, got %d", c.Server.Port)
	}
	if c.Finesse.Host == "" {
		return errors.New("config: finesse.host is required")
	}
	if c.Finesse.Port <= 0 {
		return fmt.Errorf("config: finesse.port must be positive, got %d", c.Finesse.Port)
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("config: poller.interval must be positive, got %s", c.Poller.Interval)
	}
	if c.Poller.DialogConcurrency <= 0 {
		c.Poller.DialogConcurrency = 1
	}
	return nil
}
