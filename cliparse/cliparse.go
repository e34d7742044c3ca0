package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/danielhkuo/univote/ledger"
)

const (
	DefaultPort          = 3318
	DefaultSyncSchedule  = "@every 1m"
	DefaultSyncWorkers   = 4
	DefaultAdminCacheTTL = 30 * time.Second
)

type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseType string

	RPCURL          string
	ContractAddress string
	SignerKey       string
	ConfirmTimeout  time.Duration

	SyncSchedule  string
	SyncWorkers   int
	AdminCacheTTL time.Duration
}

// Ledger returns the settings needed to dial the contract.
func (c Config) Ledger() ledger.Config {
	return ledger.Config{
		RPCURL:          c.RPCURL,
		ContractAddress: c.ContractAddress,
		SignerKey:       c.SignerKey,
		ConfirmTimeout:  c.ConfirmTimeout,
	}
}

// ParseFlags reads flags, falling back to the environment. A .env file in
// the working directory is loaded first if present; it never overrides
// variables already set.
func ParseFlags(args []string) (Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	fs := flag.NewFlagSet("univote", flag.ContinueOnError)

	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")

	// Ledger
	fs.StringVar(&cfg.RPCURL, "rpc", "", "Ethereum JSON-RPC endpoint")
	fs.StringVar(&cfg.ContractAddress, "contract", "", "Voting contract address")
	fs.StringVar(&cfg.SignerKey, "signer-key", "", "Election authority private key, hex (prefer env)")
	fs.DurationVar(&cfg.ConfirmTimeout, "confirm-timeout", 0, "How long to wait for a transaction to confirm")

	// Reconciliation and auth
	fs.StringVar(&cfg.SyncSchedule, "sync-schedule", "", "Cron schedule for mirror reconciliation")
	fs.IntVar(&cfg.SyncWorkers, "sync-workers", 0, "Elections reconciled concurrently")
	fs.DurationVar(&cfg.AdminCacheTTL, "admin-cache-ttl", 0, "How long an admin lookup is cached")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = DefaultPort
		}
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Config{}, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	if cfg.RPCURL == "" {
		cfg.RPCURL = os.Getenv("LEDGER_RPC_URL")
	}
	if cfg.RPCURL == "" {
		return Config{}, errors.New("ledger RPC URL required (use -rpc or LEDGER_RPC_URL env)")
	}

	if cfg.ContractAddress == "" {
		cfg.ContractAddress = os.Getenv("CONTRACT_ADDRESS")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return Config{}, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	// Secret - MUST be provided
	if cfg.SignerKey == "" {
		cfg.SignerKey = os.Getenv("SIGNER_PRIVATE_KEY")
	}
	if cfg.SignerKey == "" {
		return Config{}, errors.New("SIGNER_PRIVATE_KEY required")
	}
	if _, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKey, "0x")); err != nil {
		return Config{}, errors.New("invalid SIGNER_PRIVATE_KEY")
	}

	var err error
	if cfg.ConfirmTimeout, err = durationEnv(cfg.ConfirmTimeout, "CONFIRM_TIMEOUT", ledger.DefaultConfirmTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AdminCacheTTL, err = durationEnv(cfg.AdminCacheTTL, "ADMIN_CACHE_TTL", DefaultAdminCacheTTL); err != nil {
		return Config{}, err
	}

	if cfg.SyncSchedule == "" {
		cfg.SyncSchedule = os.Getenv("SYNC_SCHEDULE")
		if cfg.SyncSchedule == "" {
			cfg.SyncSchedule = DefaultSyncSchedule
		}
	}
	if _, err := cron.ParseStandard(cfg.SyncSchedule); err != nil {
		return Config{}, fmt.Errorf("invalid sync schedule %q: %w", cfg.SyncSchedule, err)
	}

	if cfg.SyncWorkers == 0 {
		if s := os.Getenv("SYNC_WORKERS"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return Config{}, errors.New("invalid SYNC_WORKERS env variable")
			}
			cfg.SyncWorkers = n
		} else {
			cfg.SyncWorkers = DefaultSyncWorkers
		}
	}
	if cfg.SyncWorkers < 1 {
		return Config{}, errors.New("sync workers must be at least 1")
	}

	return cfg, nil
}

func durationEnv(v time.Duration, env string, def time.Duration) (time.Duration, error) {
	if v == 0 {
		s := os.Getenv(env)
		if s == "" {
			return def, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s env variable", env)
		}
		v = d
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative", env)
	}
	return v, nil
}
