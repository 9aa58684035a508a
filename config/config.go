// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"tournament-escrow/account"
	"tournament-escrow/escrow"
)

type Config struct {
	Port           string   `env:"PORT"            envDefault:"5200"`
	DatabaseURL    string   `env:"DATABASE_URL,required,notEmpty"`
	GatewayToken   string   `env:"GAME_SERVICE_TOKEN,required,notEmpty"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	AdminAddress   string   `env:"ADMIN_ADDRESS,required,notEmpty"`
	ManagerAddress string   `env:"MANAGER_ADDRESS"`
	PrizeSplitBPS  []uint64 `env:"PRIZE_SPLIT_BPS" envSeparator:"," envDefault:"6000,2500,1500"`
	BadgeCode      string   `env:"LOYALTY_BADGE_CODE" envDefault:"TOURNAMENT_PASS"`

	WalletServiceURL string        `env:"WALLET_SERVICE_URL,required,notEmpty"`
	SyncServiceURL   string        `env:"SYNC_SERVICE_URL"`
	TransferTimeout  time.Duration `env:"TRANSFER_TIMEOUT" envDefault:"10s"`

	WalletPollInterval  time.Duration `env:"WALLET_POLL_INTERVAL"  envDefault:"10s"`
	EventFlushInterval  time.Duration `env:"EVENT_FLUSH_INTERVAL"  envDefault:"2s"`
	LobbySweepInterval  time.Duration `env:"LOBBY_SWEEP_INTERVAL"  envDefault:"1m"`
	CreditRetryInterval time.Duration `env:"CREDIT_RETRY_INTERVAL" envDefault:"5m"`

	LogFile string `env:"LOG_FILE" envDefault:"logs/tournament-escrow.log"`

	CloudflareAccountID string `env:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID       string `env:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret   string `env:"R2_ACCESS_KEY_SECRET"`
	R2Bucket            string `env:"R2_BUCKET_NAME"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[Config] no .env file found, reading environment variables directly")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.Admin(); err != nil {
		return fmt.Errorf("ADMIN_ADDRESS: %w", err)
	}
	if c.ManagerAddress != "" {
		if _, err := c.Manager(); err != nil {
			return fmt.Errorf("MANAGER_ADDRESS: %w", err)
		}
	}
	if _, err := c.Weights(); err != nil {
		return fmt.Errorf("PRIZE_SPLIT_BPS: %w", err)
	}
	return nil
}

func (c *Config) Admin() (account.Address, error) {
	return account.Parse(c.AdminAddress)
}

// Manager returns the address granted the manager role at start, or "" when
// none is configured.
func (c *Config) Manager() (account.Address, error) {
	if c.ManagerAddress == "" {
		return "", nil
	}
	return account.Parse(c.ManagerAddress)
}

// Weights returns the prize split for first, second and third place.
func (c *Config) Weights() (escrow.Weights, error) {
	var w escrow.Weights
	if len(c.PrizeSplitBPS) != len(w) {
		return w, fmt.Errorf("want %d comma separated basis points, got %d", len(w), len(c.PrizeSplitBPS))
	}
	copy(w[:], c.PrizeSplitBPS)
	return w, w.Validate()
}

// ArchiveEnabled reports whether R2 credentials are configured.
func (c *Config) ArchiveEnabled() bool {
	return c.R2Bucket != "" && c.CloudflareAccountID != ""
}
