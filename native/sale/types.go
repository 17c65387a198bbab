package sale

import "math/big"

// PaymentMethod identifies the rail a contribution arrived through.
type PaymentMethod string

const (
	// MethodNative marks contributions paid in the native currency.
	MethodNative PaymentMethod = "native"
	// MethodAsset marks contributions paid in a registered exchange-pegged asset.
	MethodAsset PaymentMethod = "asset"
	// MethodExternal marks externally-settled fiat contributions.
	MethodExternal PaymentMethod = "external"
)

// Storage abstracts the subset of state manager functionality required by the
// sale ledger and asset registry.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Contributor records the cumulative position of one identified participant.
// Records are created implicitly on first contribution or verification update
// and never deleted.
type Contributor struct {
	Address            [20]byte
	NativeContributed  *big.Int
	USDContributed     *big.Int
	SharesReceived     *big.Int
	Verified           bool
	LastContributionAt uint64
}

// Copy returns a deep copy to avoid callers mutating shared pointers.
func (c *Contributor) Copy() *Contributor {
	if c == nil {
		return nil
	}
	clone := *c
	if c.NativeContributed != nil {
		clone.NativeContributed = new(big.Int).Set(c.NativeContributed)
	}
	if c.USDContributed != nil {
		clone.USDContributed = new(big.Int).Set(c.USDContributed)
	}
	if c.SharesReceived != nil {
		clone.SharesReceived = new(big.Int).Set(c.SharesReceived)
	}
	return &clone
}

func newContributor(addr [20]byte) *Contributor {
	return &Contributor{
		Address:           addr,
		NativeContributed: big.NewInt(0),
		USDContributed:    big.NewInt(0),
		SharesReceived:    big.NewInt(0),
	}
}

// GlobalStats aggregates sale-wide counters. TotalNativeInflow tracks the
// native-currency method only; asset and externally-settled flows never touch
// it. That scoping is a documented custody-tracking policy.
type GlobalStats struct {
	TotalNativeInflow  *big.Int
	TotalUSDValue      *big.Int
	TotalSharesIssued  *big.Int
	UniqueContributors uint64
}

// Copy returns a deep copy of the stats record.
func (s *GlobalStats) Copy() *GlobalStats {
	if s == nil {
		return nil
	}
	clone := *s
	if s.TotalNativeInflow != nil {
		clone.TotalNativeInflow = new(big.Int).Set(s.TotalNativeInflow)
	}
	if s.TotalUSDValue != nil {
		clone.TotalUSDValue = new(big.Int).Set(s.TotalUSDValue)
	}
	if s.TotalSharesIssued != nil {
		clone.TotalSharesIssued = new(big.Int).Set(s.TotalSharesIssued)
	}
	return &clone
}

func newGlobalStats() *GlobalStats {
	return &GlobalStats{
		TotalNativeInflow: big.NewInt(0),
		TotalUSDValue:     big.NewInt(0),
		TotalSharesIssued: big.NewInt(0),
	}
}

// SupportedAsset describes an accepted exchange-pegged asset. Deactivation is a
// soft flag so history survives deregistration.
type SupportedAsset struct {
	Symbol   string
	Decimals uint8
	FeedRef  string
	Active   bool
}

// MintInstruction orders the share-issuing collaborator to mint shares to a
// contributor as part of a contribution operation.
type MintInstruction struct {
	ID          string
	Contributor [20]byte
	Shares      *big.Int
}

// ShareMinter is the external share-issuing collaborator. Implementations must
// treat each instruction as mint-only; the engine never burns.
type ShareMinter interface {
	Mint(instruction MintInstruction) error
}

// TokenBank moves registered-asset balances into and out of sale custody. The
// transfer mechanics themselves live outside the accounting core.
type TokenBank interface {
	Pull(from [20]byte, symbol string, amount *big.Int) error
	Release(to [20]byte, symbol string, amount *big.Int) error
}

// SettlementRecord retains the audit trail for an externally-settled payment.
// Once written under its reference it is never removed.
type SettlementRecord struct {
	Reference string
	Processor [20]byte
	USDValue  *big.Int
	CreatedAt uint64
}

// JournalEntry captures one applied contribution for the durable journal.
type JournalEntry struct {
	InstructionID string
	Contributor   [20]byte
	Method        string
	USDValue      *big.Int
	NativeAmount  *big.Int
	Shares        *big.Int
	Reference     string
	CreatedAt     uint64
}
