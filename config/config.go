package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"crowdsale/native/sale"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk configuration for the crowdsaled service.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	Environment string `toml:"Environment"`
	// RPCBearerToken gates mutating RPC methods. An empty token leaves the
	// write surface open, which is only acceptable for local development.
	RPCBearerToken string `toml:"RPCBearerToken"`

	Sale   SaleConfig   `toml:"sale"`
	Oracle OracleConfig `toml:"oracle"`
	Roles  RolesConfig  `toml:"roles"`
}

// RolesConfig seeds role memberships at startup. Addresses are bech32 encoded.
type RolesConfig struct {
	Admins               []string `toml:"Admins"`
	SettlementProcessors []string `toml:"SettlementProcessors"`
	Treasurers           []string `toml:"Treasurers"`
}

// SaleConfig overrides the contribution policy. Amounts are whole USD; zero
// values fall back to the engine defaults.
type SaleConfig struct {
	MinContributionUSD uint64 `toml:"MinContributionUSD"`
	MaxPerUserUSD      uint64 `toml:"MaxPerUserUSD"`
	USDPerShare        uint64 `toml:"USDPerShare"`
	MaxQuoteAgeSeconds int64  `toml:"MaxQuoteAgeSeconds"`
}

// OracleConfig describes the native-currency price feed. When Enabled is false
// the native flow is turned off and only asset and external settlements are
// accepted.
type OracleConfig struct {
	Enabled  bool   `toml:"Enabled"`
	FeedRef  string `toml:"FeedRef"`
	Decimals uint8  `toml:"Decimals"`
	// SeedPrice primes a manual feed at startup so quoting works before the
	// first operator-pushed round. Expressed in feed decimals.
	SeedPrice string `toml:"SeedPrice"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalise() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./sale-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	c.RPCBearerToken = strings.TrimSpace(c.RPCBearerToken)
	if c.Oracle.Enabled && c.Oracle.Decimals == 0 {
		c.Oracle.Decimals = 8
	}
}

func (c *Config) validate() error {
	if c.Oracle.Enabled && strings.TrimSpace(c.Oracle.SeedPrice) != "" {
		if _, ok := new(big.Int).SetString(strings.TrimSpace(c.Oracle.SeedPrice), 10); !ok {
			return fmt.Errorf("config: oracle SeedPrice %q is not a base-10 integer", c.Oracle.SeedPrice)
		}
	}
	return nil
}

// SaleParams converts the whole-USD overrides into canonical engine parameters.
func (c *Config) SaleParams() sale.Params {
	wad := new(big.Int).Exp(big.NewInt(10), big.NewInt(sale.CanonicalDecimals), nil)
	params := sale.Params{MaxQuoteAgeSeconds: c.Sale.MaxQuoteAgeSeconds}
	if c.Sale.MinContributionUSD > 0 {
		params.MinUSDContribution = new(big.Int).Mul(new(big.Int).SetUint64(c.Sale.MinContributionUSD), wad)
	}
	if c.Sale.MaxPerUserUSD > 0 {
		params.MaxContributionPerUser = new(big.Int).Mul(new(big.Int).SetUint64(c.Sale.MaxPerUserUSD), wad)
	}
	if c.Sale.USDPerShare > 0 {
		params.USDPerShare = new(big.Int).Mul(new(big.Int).SetUint64(c.Sale.USDPerShare), wad)
	}
	return params.Normalise()
}

// SeedPrice parses the configured oracle seed price, nil when unset.
func (c *Config) SeedPrice() *big.Int {
	trimmed := strings.TrimSpace(c.Oracle.SeedPrice)
	if trimmed == "" {
		return nil
	}
	price, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil
	}
	return price
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:  ":8080",
		DataDir:     "./sale-data",
		Environment: "dev",
		Oracle: OracleConfig{
			Enabled:  true,
			FeedRef:  "manual",
			Decimals: 8,
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
