package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, "./sale-data", cfg.DataDir)
	require.True(t, cfg.Oracle.Enabled)
	require.Equal(t, uint8(8), cfg.Oracle.Decimals)
	_, err = os.Stat(path)
	require.NoError(t, err, "default file must be written")
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
RPCAddress = "127.0.0.1:9090"
DataDir = "/tmp/sale"
Environment = "prod"
RPCBearerToken = " secret "

[sale]
MinContributionUSD = 5
MaxPerUserUSD = 10000
MaxQuoteAgeSeconds = 60

[oracle]
Enabled = true
FeedRef = "manual"
SeedPrice = "200000000000"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", cfg.RPCAddress)
	require.Equal(t, "secret", cfg.RPCBearerToken)
	require.Equal(t, uint8(8), cfg.Oracle.Decimals, "decimals default when enabled")

	params := cfg.SaleParams()
	wad := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	require.Zero(t, params.MinUSDContribution.Cmp(new(big.Int).Mul(big.NewInt(5), wad)))
	require.Zero(t, params.MaxContributionPerUser.Cmp(new(big.Int).Mul(big.NewInt(10_000), wad)))
	require.Zero(t, params.USDPerShare.Cmp(wad), "ratio defaults to 1:1")
	require.Equal(t, int64(60), params.MaxQuoteAgeSeconds)

	require.Zero(t, cfg.SeedPrice().Cmp(big.NewInt(200000000000)))
}

func TestLoadRejectsMalformedSeedPrice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[oracle]
Enabled = true
SeedPrice = "2000.50"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
