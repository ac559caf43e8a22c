package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jackpot/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Empty(t, cfg.Server.AdminToken)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Lottery.RoundDuration)
	assert.Equal(t, 5, cfg.Lottery.MaxRetries)
	assert.True(t, cfg.Cron.Enabled)
	assert.Equal(t, "@every 30s", cfg.Cron.ExpirySweep)

	price, err := cfg.Lottery.TicketPriceLamports()
	require.NoError(t, err)
	assert.Equal(t, models.Lamports(models.LamportsPerSOL/10), price)

	edge, err := cfg.Lottery.HouseEdgeFraction()
	require.NoError(t, err)
	assert.Equal(t, "0.05", edge.String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOTTERY_LOTTERY_TICKET_PRICE", "0.25")
	t.Setenv("LOTTERY_LOTTERY_ROUND_DURATION", "5m")
	t.Setenv("LOTTERY_SERVER_ADMIN_TOKEN", "s3cret")
	t.Setenv("LOTTERY_DB_DRIVER", "postgres")

	cfg, err := Load("")
	require.NoError(t, err)

	price, err := cfg.Lottery.TicketPriceLamports()
	require.NoError(t, err)
	assert.Equal(t, models.Lamports(250_000_000), price)
	assert.Equal(t, 5*time.Minute, cfg.Lottery.RoundDuration)
	assert.Equal(t, "s3cret", cfg.Server.AdminToken)
	assert.Equal(t, "postgres", cfg.DB.Driver)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jackpot.yaml")
	body := []byte(`
server:
  http_addr: ":9090"
lottery:
  house_edge: "0.1"
  wallet: "house"
cron:
  enabled: false
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "house", cfg.Lottery.Wallet)
	assert.False(t, cfg.Cron.Enabled)

	edge, err := cfg.Lottery.HouseEdgeFraction()
	require.NoError(t, err)
	assert.Equal(t, "0.1", edge.String())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DB:      DBConfig{Driver: "sqlite"},
			Lottery: LotteryConfig{TicketPrice: "0.1", HouseEdge: "0.05", RoundDuration: time.Minute},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero price", mutate: func(c *Config) { c.Lottery.TicketPrice = "0" }},
		{name: "garbage price", mutate: func(c *Config) { c.Lottery.TicketPrice = "cheap" }},
		{name: "sub-lamport price", mutate: func(c *Config) { c.Lottery.TicketPrice = "0.0000000001" }},
		{name: "whole pool edge", mutate: func(c *Config) { c.Lottery.HouseEdge = "1" }},
		{name: "negative edge", mutate: func(c *Config) { c.Lottery.HouseEdge = "-0.1" }},
		{name: "zero duration", mutate: func(c *Config) { c.Lottery.RoundDuration = 0 }},
		{name: "unknown driver", mutate: func(c *Config) { c.DB.Driver = "mysql" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
