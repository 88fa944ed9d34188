package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"go-bridge-quorum/logger"
	"go-bridge-quorum/model"
	"go-bridge-quorum/service"
)

// Config is read from the environment, optionally seeded from a .env file.
// Addresses and amounts stay strings here and are validated when the engine
// configurations are built.
type Config struct {
	Port           string `env:"PORT" envDefault:"8080"`
	DatabaseURL    string `env:"DATABASE_URL"`
	MaxConnections int32  `env:"MAX_CONNECTIONS" envDefault:"10"`
	LogDir         string `env:"LOG_DIR" envDefault:"."`

	BridgeAdmin        string   `env:"BRIDGE_ADMIN"`
	BridgeThreshold    uint64   `env:"BRIDGE_THRESHOLD" envDefault:"1"`
	BridgeValidators   []string `env:"BRIDGE_VALIDATORS" envSeparator:","`
	BridgeMaxPerTx     string   `env:"BRIDGE_MAX_PER_TX" envDefault:"100000000000000000000000"`
	BridgeMinPerTx     string   `env:"BRIDGE_MIN_PER_TX" envDefault:"1000000000000000000"`
	BridgeDailyCap     string   `env:"BRIDGE_DAILY_CAP" envDefault:"1000000000000000000000000"`
	BridgeFeeBps       uint64   `env:"BRIDGE_FEE_BPS" envDefault:"50"`
	BridgeFeeCollector string   `env:"BRIDGE_FEE_COLLECTOR"`

	MultisigAddress   string   `env:"MULTISIG_ADDRESS"`
	MultisigInitiator string   `env:"MULTISIG_INITIATOR"`
	MultisigOwners    []string `env:"MULTISIG_OWNERS" envSeparator:","`
	MultisigRequired  uint64   `env:"MULTISIG_REQUIRED" envDefault:"1"`
}

/*
This method loads .env from the working directory when present and parses the
environment into a Config
*/
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.LogInfo("no .env file loaded: %v", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	return &cfg, nil
}

// BridgeEnabled reports whether enough is configured to initialize the bridge.
func (c *Config) BridgeEnabled() bool {
	return c.BridgeAdmin != ""
}

// MultisigEnabled reports whether enough is configured to initialize the wallet.
func (c *Config) MultisigEnabled() bool {
	return c.MultisigInitiator != "" && len(c.MultisigOwners) > 0
}

func (c *Config) Bridge() (service.BridgeConfig, error) {
	var (
		out service.BridgeConfig
		err error
	)
	if out.Admin, err = model.ParseAddress(c.BridgeAdmin); err != nil {
		return out, errors.Wrap(err, "BRIDGE_ADMIN")
	}
	out.FeeCollector = out.Admin
	if c.BridgeFeeCollector != "" {
		if out.FeeCollector, err = model.ParseAddress(c.BridgeFeeCollector); err != nil {
			return out, errors.Wrap(err, "BRIDGE_FEE_COLLECTOR")
		}
	}
	if out.Validators, err = addresses(c.BridgeValidators); err != nil {
		return out, errors.Wrap(err, "BRIDGE_VALIDATORS")
	}
	for _, a := range []struct {
		dst  **uint256.Int
		src  string
		name string
	}{
		{&out.MaxPerTx, c.BridgeMaxPerTx, "BRIDGE_MAX_PER_TX"},
		{&out.MinPerTx, c.BridgeMinPerTx, "BRIDGE_MIN_PER_TX"},
		{&out.DailyCap, c.BridgeDailyCap, "BRIDGE_DAILY_CAP"},
	} {
		if *a.dst, err = model.ParseAmount(a.src); err != nil {
			return out, errors.Wrap(err, a.name)
		}
	}
	out.Threshold = c.BridgeThreshold
	out.FeeBps = c.BridgeFeeBps
	return out, nil
}

// Wallet builds the multisig configuration. Without MULTISIG_ADDRESS the
// wallet account is derived from the initiator and owner list.
func (c *Config) Wallet() (service.WalletConfig, error) {
	var (
		out service.WalletConfig
		err error
	)
	if out.Initiator, err = model.ParseAddress(c.MultisigInitiator); err != nil {
		return out, errors.Wrap(err, "MULTISIG_INITIATOR")
	}
	if out.Owners, err = addresses(c.MultisigOwners); err != nil {
		return out, errors.Wrap(err, "MULTISIG_OWNERS")
	}
	if c.MultisigAddress != "" {
		if out.Address, err = model.ParseAddress(c.MultisigAddress); err != nil {
			return out, errors.Wrap(err, "MULTISIG_ADDRESS")
		}
	} else {
		out.Address = model.WalletAddress(out.Initiator, out.Owners)
	}
	out.Required = c.MultisigRequired
	return out, nil
}

func addresses(in []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		a, err := model.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
