package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/logger"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"jackpot/internal/models"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Lottery LotteryConfig `mapstructure:"lottery"`
	Cron    CronConfig    `mapstructure:"cron"`
}

type ServerConfig struct {
	HTTPAddr   string `mapstructure:"http_addr"`
	AdminToken string `mapstructure:"admin_token"`
}

type LogConfig struct {
	Verbose bool   `mapstructure:"verbose"`
	File    string `mapstructure:"file"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type LotteryConfig struct {
	TicketPrice   string        `mapstructure:"ticket_price"`
	RoundDuration time.Duration `mapstructure:"round_duration"`
	HouseEdge     string        `mapstructure:"house_edge"`
	Wallet        string        `mapstructure:"wallet"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

type CronConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ExpirySweep string `mapstructure:"expiry_sweep"`
}

// Load reads the optional .env file, the optional YAML file at path and the
// LOTTERY_* environment. An empty path means environment only.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warningf("Error loading .env file: %v", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOTTERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("log.verbose", false)
	v.SetDefault("log.file", "")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "lottery.db")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("lottery.ticket_price", "0.1")
	v.SetDefault("lottery.round_duration", "30m")
	v.SetDefault("lottery.house_edge", "0.05")
	v.SetDefault("lottery.wallet", "Dw8j4PH2ubfUYTszGfXJp8v7GKX6rLM4ksdZ2GdGCyNL")
	v.SetDefault("lottery.max_retries", 5)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.expiry_sweep", "@every 30s")
}

// Validate checks the lottery rules are usable.
func (c Config) Validate() error {
	if _, err := c.Lottery.TicketPriceLamports(); err != nil {
		return err
	}
	if _, err := c.Lottery.HouseEdgeFraction(); err != nil {
		return err
	}
	if c.Lottery.RoundDuration <= 0 {
		return fmt.Errorf("lottery.round_duration must be positive, got %s", c.Lottery.RoundDuration)
	}
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}
	return nil
}

// TicketPriceLamports returns the configured unit price.
func (l LotteryConfig) TicketPriceLamports() (models.Lamports, error) {
	price, err := models.ParseSOL(l.TicketPrice)
	if err != nil {
		return 0, fmt.Errorf("lottery.ticket_price: %w", err)
	}
	if price <= 0 {
		return 0, errors.New("lottery.ticket_price must be positive")
	}
	return price, nil
}

// HouseEdgeFraction returns the retained fraction of each pool, in [0, 1).
func (l LotteryConfig) HouseEdgeFraction() (decimal.Decimal, error) {
	edge, err := decimal.NewFromString(strings.TrimSpace(l.HouseEdge))
	if err != nil {
		return decimal.Zero, fmt.Errorf("lottery.house_edge: %w", err)
	}
	if edge.IsNegative() || edge.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("lottery.house_edge must be in [0, 1), got %s", edge)
	}
	return edge, nil
}
