package sale

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// RoundData captures one timestamped price reading from an external feed along
// with its round-consistency markers.
type RoundData struct {
	RoundID         uint64
	Answer          *big.Int
	UpdatedAt       time.Time
	AnsweredInRound uint64
}

// PriceFeed exposes the latest oracle reading for a native-currency asset.
type PriceFeed interface {
	LatestRound() (RoundData, error)
	Decimals() uint8
}

// OracleAdapter wraps a price feed and converts native-currency amounts into
// canonical USD units after validating the reading.
type OracleAdapter struct {
	feed   PriceFeed
	maxAge time.Duration
	now    func() time.Time
}

// NewOracleAdapter constructs an adapter bound to the supplied feed. A nil feed
// is a construction-time failure.
func NewOracleAdapter(feed PriceFeed, maxAge time.Duration) (*OracleAdapter, error) {
	if feed == nil {
		return nil, ErrInvalidPriceFeed
	}
	return &OracleAdapter{feed: feed, maxAge: maxAge, now: time.Now}, nil
}

// SetClock overrides the adapter clock, primarily for deterministic testing.
func (a *OracleAdapter) SetClock(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.now = now
}

// QuoteUSD converts the supplied native-currency amount into canonical USD
// units using the latest feed round. The reading must carry a strictly positive
// price, a round that is not older than the one requested, and a non-zero
// update timestamp; otherwise ErrInvalidPriceData is returned.
func (a *OracleAdapter) QuoteUSD(nativeAmount *big.Int) (*big.Int, error) {
	if a == nil || a.feed == nil {
		return nil, ErrInvalidPriceFeed
	}
	if nativeAmount == nil || nativeAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	round, err := a.feed.LatestRound()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPriceData, err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive price", ErrInvalidPriceData)
	}
	if round.AnsweredInRound < round.RoundID {
		return nil, fmt.Errorf("%w: stale round", ErrInvalidPriceData)
	}
	if round.UpdatedAt.IsZero() {
		return nil, fmt.Errorf("%w: feed never updated", ErrInvalidPriceData)
	}
	if a.maxAge > 0 && a.now().Sub(round.UpdatedAt) > a.maxAge {
		return nil, fmt.Errorf("%w: quote older than %s", ErrInvalidPriceData, a.maxAge)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.feed.Decimals())), nil)
	usd := new(big.Int).Mul(nativeAmount, round.Answer)
	return usd.Quo(usd, scale), nil
}

// ManualFeed provides an in-memory price feed implementation used for tests and
// manual overrides during incident response.
type ManualFeed struct {
	mu       sync.RWMutex
	round    RoundData
	decimals uint8
	set      bool
}

// NewManualFeed constructs a manual feed reporting prices at the supplied
// decimal precision.
func NewManualFeed(decimals uint8) *ManualFeed {
	return &ManualFeed{decimals: decimals}
}

// SetRound records the supplied round as the latest reading.
func (f *ManualFeed) SetRound(round RoundData) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.round = round
	if f.round.Answer != nil {
		f.round.Answer = new(big.Int).Set(round.Answer)
	}
	f.set = true
	f.mu.Unlock()
}

// LatestRound returns the stored reading.
func (f *ManualFeed) LatestRound() (RoundData, error) {
	if f == nil {
		return RoundData{}, fmt.Errorf("manual feed not configured")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return RoundData{}, fmt.Errorf("manual feed: no round recorded")
	}
	round := f.round
	if round.Answer != nil {
		round.Answer = new(big.Int).Set(round.Answer)
	}
	return round, nil
}

// Decimals reports the feed's price precision.
func (f *ManualFeed) Decimals() uint8 {
	if f == nil {
		return 0
	}
	return f.decimals
}
