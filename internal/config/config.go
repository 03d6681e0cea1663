package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jason-s-yu/sto/internal/game"
)

type Config struct {
	LogLevel string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort string `yaml:"http-port" env:"STO_SERVICE_PORT" env-default:"8080"`

	// AllowedOrigins feeds the CORS handler of the HTTP routes.
	AllowedOrigins []string `yaml:"allowed-origins" env:"ALLOWED_ORIGINS" env-separator:"," env-default:"https://*,http://*"`

	Game      Game      `yaml:"game"`
	Redis     Redis     `yaml:"redis"`
	Postgres  Postgres  `yaml:"postgres"`
	Historian Historian `yaml:"historian"`
}

type Game struct {
	MaxPlayers       int           `yaml:"max-players" env:"STO_MAX_PLAYERS" env-default:"6"`
	HandSize         int           `yaml:"hand-size" env:"STO_HAND_SIZE" env-default:"4"`
	PenaltyDrawCount int           `yaml:"penalty-draw-count" env:"STO_PENALTY_DRAW_COUNT" env-default:"2"`
	ReactionWindow   time.Duration `yaml:"reaction-window" env:"STO_REACTION_WINDOW" env-default:"5s"`
	SeenCardsWindow  time.Duration `yaml:"seen-cards-window" env:"STO_SEEN_CARDS_WINDOW" env-default:"10s"`
}

// Redis is optional for the game server: an empty Addr disables action publishing.
type Redis struct {
	Addr  string `yaml:"addr" env:"REDIS_ADDR"`
	DB    int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Queue string `yaml:"queue" env:"HISTORIAN_QUEUE_NAME" env-default:"sto_actions"`
}

type Postgres struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

type Historian struct {
	BatchSize     int           `yaml:"batch-size" env:"HISTORIAN_BATCH_SIZE" env-default:"20"`
	FlushInterval time.Duration `yaml:"flush-interval" env:"HISTORIAN_FLUSH_INTERVAL" env-default:"500ms"`
	PopTimeout    time.Duration `yaml:"pop-timeout" env:"HISTORIAN_POP_TIMEOUT" env-default:"1s"`

	// Sessions with no action for Inactivity are marked abandoned.
	Inactivity      time.Duration `yaml:"inactivity" env:"SESSION_INACTIVITY_TIMEOUT" env-default:"10m"`
	InactivityCheck time.Duration `yaml:"inactivity-check" env:"SESSION_INACTIVITY_CHECK" env-default:"1m"`
}

// Load reads path when it exists and then the environment; environment values win.
// An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("unable to load config file: %w", err)
			}
			return cfg, cfg.validate()
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("unable to read environment: %w", err)
	}
	return cfg, cfg.validate()
}

// MustLoad panics when the configuration cannot be loaded.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// HouseRules converts the game section into session rules.
func (c *Config) HouseRules() game.HouseRules {
	return game.HouseRules{
		MaxPlayers:       c.Game.MaxPlayers,
		HandSize:         c.Game.HandSize,
		PenaltyDrawCount: c.Game.PenaltyDrawCount,
		ReactionWindow:   c.Game.ReactionWindow,
		SeenCardsWindow:  c.Game.SeenCardsWindow,
	}
}

func (c *Config) validate() error {
	if c.Game.MaxPlayers < 2 {
		return fmt.Errorf("max-players must be at least 2, got %d", c.Game.MaxPlayers)
	}
	if c.Game.MaxPlayers*c.Game.HandSize > game.DeckSize {
		return fmt.Errorf("%d players with %d cards each exceed the %d-card deck", c.Game.MaxPlayers, c.Game.HandSize, game.DeckSize)
	}
	if c.Game.PenaltyDrawCount < 0 {
		return fmt.Errorf("penalty-draw-count must be non-negative")
	}
	return nil
}
