package sale

import (
	"errors"
	"testing"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	st := newMockState()
	registry := NewAssetRegistry(st)

	if err := registry.Register("usdc", 6, "feed:usdc"); err != nil {
		t.Fatalf("register: %v", err)
	}
	asset, err := registry.Active("USDC")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if asset.Symbol != "USDC" || asset.Decimals != 6 || asset.FeedRef != "feed:usdc" {
		t.Fatalf("unexpected asset %+v", asset)
	}
}

func TestRegistryRejectsEmptySymbol(t *testing.T) {
	st := newMockState()
	registry := NewAssetRegistry(st)
	if err := registry.Register("  ", 6, ""); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("expected ErrInvalidAsset, got %v", err)
	}
}

func TestRegistryRejectsDoubleRegister(t *testing.T) {
	st := newMockState()
	registry := NewAssetRegistry(st)
	if err := registry.Register("USDT", 6, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("USDT", 6, ""); !errors.Is(err, ErrAssetActive) {
		t.Fatalf("expected ErrAssetActive, got %v", err)
	}
}

func TestRegistryDeregisterIsSoft(t *testing.T) {
	st := newMockState()
	registry := NewAssetRegistry(st)
	if err := registry.Register("USDT", 6, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Deregister("USDT"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if err := registry.Deregister("USDT"); !errors.Is(err, ErrAssetNotSupported) {
		t.Fatalf("expected ErrAssetNotSupported, got %v", err)
	}
	// History is retained and the asset can be reactivated.
	record, found, err := registry.Get("USDT")
	if err != nil || !found {
		t.Fatalf("get: %v found=%v", err, found)
	}
	if record.Active {
		t.Fatalf("expected soft-deactivated record")
	}
	if err := registry.Register("USDT", 6, "feed:usdt"); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	asset, err := registry.Active("USDT")
	if err != nil {
		t.Fatalf("active after reactivation: %v", err)
	}
	if asset.FeedRef != "feed:usdt" {
		t.Fatalf("expected refreshed metadata, got %+v", asset)
	}
}

func TestRegistryListKeepsRegistrationOrder(t *testing.T) {
	st := newMockState()
	registry := NewAssetRegistry(st)
	for _, symbol := range []string{"USDC", "USDT", "DAI"} {
		if err := registry.Register(symbol, 6, ""); err != nil {
			t.Fatalf("register %s: %v", symbol, err)
		}
	}
	if err := registry.Deregister("USDT"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	assets, err := registry.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(assets) != 3 {
		t.Fatalf("expected 3 assets, got %d", len(assets))
	}
	order := []string{"USDC", "USDT", "DAI"}
	for i, asset := range assets {
		if asset.Symbol != order[i] {
			t.Fatalf("unexpected order %v", assets)
		}
	}
	if assets[1].Active {
		t.Fatalf("expected USDT inactive in listing")
	}
}
