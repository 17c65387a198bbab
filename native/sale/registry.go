package sale

import (
	"fmt"
	"strings"

	"crowdsale/core/events"
)

// AssetRegistry manages persistence and retrieval of the accepted
// exchange-pegged assets. Registration order is preserved so list queries
// enumerate deterministically.
type AssetRegistry struct {
	st      Storage
	emitter events.Emitter
}

// NewAssetRegistry creates a registry backed by the provided state manager.
func NewAssetRegistry(st Storage) *AssetRegistry {
	return &AssetRegistry{st: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used to broadcast registry updates.
// Passing nil resets the emitter to a no-op implementation.
func (r *AssetRegistry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func normaliseAssetSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Register activates an asset for contributions. Registering an asset that is
// already active fails; re-registering a deactivated asset reactivates it and
// refreshes its metadata.
func (r *AssetRegistry) Register(symbol string, decimals uint8, feedRef string) error {
	if r == nil {
		return fmt.Errorf("asset registry not initialised")
	}
	normalized := normaliseAssetSymbol(symbol)
	if normalized == "" {
		return ErrInvalidAsset
	}
	existing := new(SupportedAsset)
	found, err := r.st.KVGet(assetKey(normalized), existing)
	if err != nil {
		return err
	}
	if found && existing.Active {
		return fmt.Errorf("%w: %s", ErrAssetActive, normalized)
	}
	record := &SupportedAsset{
		Symbol:   normalized,
		Decimals: decimals,
		FeedRef:  strings.TrimSpace(feedRef),
		Active:   true,
	}
	if err := r.st.KVPut(assetKey(normalized), record); err != nil {
		return err
	}
	if err := r.st.KVAppend(assetIndexKey, []byte(normalized)); err != nil {
		return err
	}
	r.emitter.Emit(events.AssetRegistered{Symbol: normalized, Decimals: decimals, FeedRef: record.FeedRef})
	return nil
}

// Deregister soft-deactivates an asset. The record is retained so historical
// contributions keep resolving.
func (r *AssetRegistry) Deregister(symbol string) error {
	if r == nil {
		return fmt.Errorf("asset registry not initialised")
	}
	normalized := normaliseAssetSymbol(symbol)
	if normalized == "" {
		return ErrInvalidAsset
	}
	record := new(SupportedAsset)
	found, err := r.st.KVGet(assetKey(normalized), record)
	if err != nil {
		return err
	}
	if !found || !record.Active {
		return fmt.Errorf("%w: %s", ErrAssetNotSupported, normalized)
	}
	record.Active = false
	if err := r.st.KVPut(assetKey(normalized), record); err != nil {
		return err
	}
	r.emitter.Emit(events.AssetDeregistered{Symbol: normalized})
	return nil
}

// Get retrieves an asset record regardless of its active flag.
func (r *AssetRegistry) Get(symbol string) (*SupportedAsset, bool, error) {
	if r == nil {
		return nil, false, fmt.Errorf("asset registry not initialised")
	}
	normalized := normaliseAssetSymbol(symbol)
	if normalized == "" {
		return nil, false, ErrInvalidAsset
	}
	record := new(SupportedAsset)
	found, err := r.st.KVGet(assetKey(normalized), record)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return record, true, nil
}

// Active resolves an asset that must currently accept contributions.
func (r *AssetRegistry) Active(symbol string) (*SupportedAsset, error) {
	record, found, err := r.Get(symbol)
	if err != nil {
		return nil, err
	}
	if !found || !record.Active {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotSupported, normaliseAssetSymbol(symbol))
	}
	return record, nil
}

// List returns every asset ever registered, in registration order.
func (r *AssetRegistry) List() ([]*SupportedAsset, error) {
	if r == nil {
		return nil, fmt.Errorf("asset registry not initialised")
	}
	var raw [][]byte
	if err := r.st.KVGetList(assetIndexKey, &raw); err != nil {
		return nil, err
	}
	records := make([]*SupportedAsset, 0, len(raw))
	for _, symbol := range raw {
		if len(symbol) == 0 {
			continue
		}
		record := new(SupportedAsset)
		found, err := r.st.KVGet(assetKey(string(symbol)), record)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
