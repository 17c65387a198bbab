package sale

import (
	"math/big"
	"time"
)

// CanonicalDecimals is the fixed-point precision of the canonical USD unit all
// contributions are normalised into.
const CanonicalDecimals = 18

// Roles recognised by the sale engine.
const (
	// RoleAdmin may verify identities, manage the asset registry, and toggle pauses.
	RoleAdmin = "ROLE_SALE_ADMIN"
	// RoleSettlementProcessor may credit externally-settled fiat payments.
	RoleSettlementProcessor = "ROLE_SETTLEMENT_PROCESSOR"
	// RoleTreasurer is the highest role and may withdraw custodied balances.
	RoleTreasurer = "ROLE_TREASURER"
)

// Params controls contribution validation thresholds and the share issuance
// policy. Amounts are expressed in the canonical 18-decimal USD unit.
type Params struct {
	MinUSDContribution     *big.Int
	MaxContributionPerUser *big.Int
	// USDPerShare fixes the issuance ratio as canonical USD units per share.
	// It is an explicit policy constant, not a derived value.
	USDPerShare        *big.Int
	MaxQuoteAgeSeconds int64
}

// wad is the canonical unit scale (10^18).
var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(CanonicalDecimals), nil)

// DefaultParams returns the production policy defaults: a 1 USD minimum, a
// 50,000 USD per-contributor cap, and a 1:1 USD-to-share ratio.
func DefaultParams() Params {
	return Params{
		MinUSDContribution:     new(big.Int).Set(wad),
		MaxContributionPerUser: new(big.Int).Mul(big.NewInt(50_000), wad),
		USDPerShare:            new(big.Int).Set(wad),
		MaxQuoteAgeSeconds:     120,
	}
}

// Normalise applies defaults to unset or out-of-range parameter values.
func (p Params) Normalise() Params {
	cfg := Params{MaxQuoteAgeSeconds: p.MaxQuoteAgeSeconds}
	defaults := DefaultParams()
	if p.MinUSDContribution != nil && p.MinUSDContribution.Sign() > 0 {
		cfg.MinUSDContribution = new(big.Int).Set(p.MinUSDContribution)
	} else {
		cfg.MinUSDContribution = defaults.MinUSDContribution
	}
	if p.MaxContributionPerUser != nil && p.MaxContributionPerUser.Sign() > 0 {
		cfg.MaxContributionPerUser = new(big.Int).Set(p.MaxContributionPerUser)
	} else {
		cfg.MaxContributionPerUser = defaults.MaxContributionPerUser
	}
	if p.USDPerShare != nil && p.USDPerShare.Sign() > 0 {
		cfg.USDPerShare = new(big.Int).Set(p.USDPerShare)
	} else {
		cfg.USDPerShare = defaults.USDPerShare
	}
	if cfg.MaxQuoteAgeSeconds <= 0 {
		cfg.MaxQuoteAgeSeconds = defaults.MaxQuoteAgeSeconds
	}
	return cfg
}

// MaxQuoteAge returns the configured oracle freshness window as a duration.
func (p Params) MaxQuoteAge() time.Duration {
	return time.Duration(p.MaxQuoteAgeSeconds) * time.Second
}

// SharesFor converts a canonical USD value into shares under the configured
// issuance ratio.
func (p Params) SharesFor(usdValue *big.Int) *big.Int {
	if usdValue == nil || usdValue.Sign() <= 0 {
		return big.NewInt(0)
	}
	ratio := p.USDPerShare
	if ratio == nil || ratio.Sign() <= 0 {
		ratio = wad
	}
	shares := new(big.Int).Mul(usdValue, wad)
	return shares.Quo(shares, ratio)
}
