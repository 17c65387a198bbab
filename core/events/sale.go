package events

import (
	"math/big"
	"strconv"
	"strings"

	"crowdsale/crypto"
)

const (
	// TypeContributionRecorded is emitted whenever a contribution is credited
	// and the matching shares are minted.
	TypeContributionRecorded = "sale.contribution.recorded"
	// TypeAssetRegistered is emitted when an administrator activates an asset.
	TypeAssetRegistered = "sale.asset.registered"
	// TypeAssetDeregistered is emitted when an administrator deactivates an asset.
	TypeAssetDeregistered = "sale.asset.deregistered"
	// TypeIdentityUpdated is emitted when a participant's verification flag changes.
	TypeIdentityUpdated = "sale.identity.updated"
	// TypePaused is emitted when the sale is paused.
	TypePaused = "sale.paused"
	// TypeUnpaused is emitted when the sale pause is lifted.
	TypeUnpaused = "sale.unpaused"
	// TypeEmergencyWithdrawal is emitted when custodied funds are withdrawn.
	TypeEmergencyWithdrawal = "sale.emergency.withdrawal"
)

// ContributionRecorded captures a settled contribution across any payment method.
type ContributionRecorded struct {
	Contributor [20]byte
	Method      string
	USDValue    *big.Int
	Shares      *big.Int
	Reference   string
	Instruction string
}

func (ContributionRecorded) EventType() string { return TypeContributionRecorded }

func (e ContributionRecorded) Attributes() map[string]string {
	usd := e.USDValue
	if usd == nil {
		usd = big.NewInt(0)
	}
	shares := e.Shares
	if shares == nil {
		shares = big.NewInt(0)
	}
	attrs := map[string]string{
		"contributor": crypto.MustNewAddress(crypto.SalePrefix, e.Contributor[:]).String(),
		"method":      strings.ToLower(strings.TrimSpace(e.Method)),
		"usdValue":    usd.String(),
		"shares":      shares.String(),
		"instruction": strings.TrimSpace(e.Instruction),
	}
	if ref := strings.TrimSpace(e.Reference); ref != "" {
		attrs["reference"] = ref
	}
	return attrs
}

// AssetRegistered records a newly activated contribution asset.
type AssetRegistered struct {
	Symbol   string
	Decimals uint8
	FeedRef  string
}

func (AssetRegistered) EventType() string { return TypeAssetRegistered }

func (e AssetRegistered) Attributes() map[string]string {
	attrs := map[string]string{
		"symbol":   strings.ToUpper(strings.TrimSpace(e.Symbol)),
		"decimals": strconv.FormatUint(uint64(e.Decimals), 10),
	}
	if feed := strings.TrimSpace(e.FeedRef); feed != "" {
		attrs["feedRef"] = feed
	}
	return attrs
}

// AssetDeregistered records a soft deactivation of an asset.
type AssetDeregistered struct {
	Symbol string
}

func (AssetDeregistered) EventType() string { return TypeAssetDeregistered }

func (e AssetDeregistered) Attributes() map[string]string {
	return map[string]string{
		"symbol": strings.ToUpper(strings.TrimSpace(e.Symbol)),
	}
}

// IdentityUpdated records a verification flag change for a participant.
type IdentityUpdated struct {
	Contributor [20]byte
	Verified    bool
}

func (IdentityUpdated) EventType() string { return TypeIdentityUpdated }

func (e IdentityUpdated) Attributes() map[string]string {
	return map[string]string{
		"contributor": crypto.MustNewAddress(crypto.SalePrefix, e.Contributor[:]).String(),
		"verified":    strconv.FormatBool(e.Verified),
	}
}

// Paused records a pause toggle applied to the sale module.
type Paused struct{}

func (Paused) EventType() string { return TypePaused }

func (Paused) Attributes() map[string]string { return map[string]string{} }

// Unpaused records the lifting of a pause toggle.
type Unpaused struct{}

func (Unpaused) EventType() string { return TypeUnpaused }

func (Unpaused) Attributes() map[string]string { return map[string]string{} }

// EmergencyWithdrawal records a treasury withdrawal of custodied funds.
type EmergencyWithdrawal struct {
	Asset     string
	Amount    *big.Int
	Recipient [20]byte
}

func (EmergencyWithdrawal) EventType() string { return TypeEmergencyWithdrawal }

func (e EmergencyWithdrawal) Attributes() map[string]string {
	amount := e.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	return map[string]string{
		"asset":     strings.ToUpper(strings.TrimSpace(e.Asset)),
		"amount":    amount.String(),
		"recipient": crypto.MustNewAddress(crypto.SalePrefix, e.Recipient[:]).String(),
	}
}
