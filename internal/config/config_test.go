package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 6, cfg.Game.MaxPlayers)
	assert.Equal(t, 4, cfg.Game.HandSize)
	assert.Equal(t, 2, cfg.Game.PenaltyDrawCount)
	assert.Equal(t, 5*time.Second, cfg.Game.ReactionWindow)
	assert.Equal(t, 10*time.Second, cfg.Game.SeenCardsWindow)
	assert.Equal(t, "sto_actions", cfg.Redis.Queue)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, []string{"https://*", "http://*"}, cfg.AllowedOrigins)
	assert.Equal(t, 10*time.Minute, cfg.Historian.Inactivity)

	rules := cfg.HouseRules()
	assert.Equal(t, 6, rules.MaxPlayers)
	assert.Equal(t, 5*time.Second, rules.ReactionWindow)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STO_REACTION_WINDOW", "2s")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("ALLOWED_ORIGINS", "https://sto.example,https://www.sto.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Game.ReactionWindow)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"https://sto.example", "https://www.sto.example"}, cfg.AllowedOrigins)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("http-port: \"9090\"\ngame:\n  max-players: 4\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 4, cfg.Game.MaxPlayers)
	assert.Equal(t, 4, cfg.Game.HandSize)
}

func TestLoadRejectsOversizedTable(t *testing.T) {
	t.Setenv("STO_HAND_SIZE", "8")
	_, err := Load("")
	assert.Error(t, err)
}
