package sale

import "math/big"

// ToCanonical converts an amount expressed in the asset's native precision into
// the canonical 18-decimal USD unit. Amounts with fewer decimals scale up
// losslessly; amounts with more decimals are floor-divided and the truncated
// remainder is discarded for good.
func ToCanonical(amount *big.Int, sourceDecimals uint8) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	switch {
	case sourceDecimals == CanonicalDecimals:
		return new(big.Int).Set(amount)
	case sourceDecimals < CanonicalDecimals:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(CanonicalDecimals-sourceDecimals)), nil)
		return new(big.Int).Mul(amount, scale)
	default:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(sourceDecimals-CanonicalDecimals)), nil)
		return new(big.Int).Quo(new(big.Int).Set(amount), scale)
	}
}
