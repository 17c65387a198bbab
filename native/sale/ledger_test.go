package sale

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"
)

func newTestLedger(st Storage) *Ledger {
	ledger := NewLedger(st, DefaultParams())
	ledger.SetClock(func() time.Time { return time.Unix(1700000000, 0) })
	seq := 0
	ledger.SetInstructionIDs(func() string {
		seq++
		return fmt.Sprintf("mint-%d", seq)
	})
	return ledger
}

func TestLedgerPrepareCommit(t *testing.T) {
	st := newMockState()
	ledger := newTestLedger(st)
	contributor := addr(1)

	pending, err := ledger.Prepare(contributor, wadAmount(10), nil, MethodAsset, "", [20]byte{})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if pending.Instruction.Shares.Cmp(wadAmount(10)) != 0 {
		t.Fatalf("expected 10 shares, got %s", pending.Instruction.Shares)
	}

	// Nothing is visible until commit.
	record, found, err := ledger.Contributor(contributor)
	if err != nil {
		t.Fatalf("contributor: %v", err)
	}
	if found || record.USDContributed.Sign() != 0 {
		t.Fatalf("expected no visible state before commit")
	}

	if err := ledger.Commit(pending); err != nil {
		t.Fatalf("commit: %v", err)
	}
	record, found, err = ledger.Contributor(contributor)
	if err != nil || !found {
		t.Fatalf("contributor after commit: %v found=%v", err, found)
	}
	if record.USDContributed.Cmp(wadAmount(10)) != 0 {
		t.Fatalf("unexpected usd %s", record.USDContributed)
	}
	if record.SharesReceived.Cmp(wadAmount(10)) != 0 {
		t.Fatalf("unexpected shares %s", record.SharesReceived)
	}
	if record.LastContributionAt != 1700000000 {
		t.Fatalf("unexpected timestamp %d", record.LastContributionAt)
	}
	stats, err := ledger.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUSDValue.Cmp(wadAmount(10)) != 0 || stats.UniqueContributors != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestLedgerMinimumBoundary(t *testing.T) {
	st := newMockState()
	ledger := newTestLedger(st)
	contributor := addr(2)

	// Exactly at the minimum succeeds.
	if _, err := ledger.Prepare(contributor, wadAmount(1), nil, MethodAsset, "", [20]byte{}); err != nil {
		t.Fatalf("prepare at minimum: %v", err)
	}
	// One cent below fails with the too-small error.
	cent := new(big.Int).Quo(wad, big.NewInt(100))
	below := new(big.Int).Sub(wadAmount(1), cent)
	if _, err := ledger.Prepare(contributor, below, nil, MethodAsset, "", [20]byte{}); !errors.Is(err, ErrContributionTooSmall) {
		t.Fatalf("expected ErrContributionTooSmall, got %v", err)
	}
}

func TestLedgerCapFullyRejects(t *testing.T) {
	st := newMockState()
	ledger := newTestLedger(st)
	contributor := addr(3)

	pending, err := ledger.Prepare(contributor, wadAmount(49_999), nil, MethodAsset, "", [20]byte{})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := ledger.Commit(pending); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := ledger.Prepare(contributor, wadAmount(2), nil, MethodAsset, "", [20]byte{}); !errors.Is(err, ErrContributionLimit) {
		t.Fatalf("expected ErrContributionLimit, got %v", err)
	}
	// The rejected attempt must not change the cumulative total.
	record, _, err := ledger.Contributor(contributor)
	if err != nil {
		t.Fatalf("contributor: %v", err)
	}
	if record.USDContributed.Cmp(wadAmount(49_999)) != 0 {
		t.Fatalf("cumulative changed after rejection: %s", record.USDContributed)
	}
	// Topping up to exactly the cap still works.
	pending, err = ledger.Prepare(contributor, wadAmount(1), nil, MethodAsset, "", [20]byte{})
	if err != nil {
		t.Fatalf("prepare top-up: %v", err)
	}
	if err := ledger.Commit(pending); err != nil {
		t.Fatalf("commit top-up: %v", err)
	}
}

func TestLedgerDuplicateReference(t *testing.T) {
	st := newMockState()
	ledger := newTestLedger(st)
	contributor := addr(4)
	processor := addr(9)

	pending, err := ledger.Prepare(contributor, wadAmount(100), nil, MethodExternal, "TX-1", processor)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := ledger.Commit(pending); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := ledger.Prepare(contributor, wadAmount(5), nil, MethodExternal, "TX-1", processor); !errors.Is(err, ErrReferenceProcessed) {
		t.Fatalf("expected ErrReferenceProcessed, got %v", err)
	}
	record, found, err := ledger.Settlement("TX-1")
	if err != nil || !found {
		t.Fatalf("settlement: %v found=%v", err, found)
	}
	if record.USDValue.Cmp(wadAmount(100)) != 0 || record.Processor != processor {
		t.Fatalf("unexpected settlement record %+v", record)
	}
}

func TestLedgerDuplicateReferenceAnyAmount(t *testing.T) {
	st := newMockState()
	ledger := newTestLedger(st)
	contributor := addr(4)
	processor := addr(9)

	pending, err := ledger.Prepare(contributor, wadAmount(100), nil, MethodExternal, "TX-1", processor)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := ledger.Commit(pending); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// A replay reports the duplicate reference no matter what amount it
	// carries, including amounts that would fail the minimum or the cap.
	belowMin := new(big.Int).Quo(wad, big.NewInt(2))
	if _, err := ledger.Prepare(contributor, belowMin, nil, MethodExternal, "TX-1", processor); !errors.Is(err, ErrReferenceProcessed) {
		t.Fatalf("below-minimum replay: expected ErrReferenceProcessed, got %v", err)
	}
	if _, err := ledger.Prepare(contributor, wadAmount(60_000), nil, MethodExternal, "TX-1", processor); !errors.Is(err, ErrReferenceProcessed) {
		t.Fatalf("over-cap replay: expected ErrReferenceProcessed, got %v", err)
	}
	if _, err := ledger.Prepare(contributor, nil, nil, MethodExternal, "TX-1", processor); !errors.Is(err, ErrReferenceProcessed) {
		t.Fatalf("nil-amount replay: expected ErrReferenceProcessed, got %v", err)
	}
}

func TestLedgerCustodyCreditedAtCommit(t *testing.T) {
	st := newMockState()
	ledger := newTestLedger(st)
	contributor := addr(8)

	pending, err := ledger.Prepare(contributor, wadAmount(10), nil, MethodAsset, "", [20]byte{})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	pending.stageCustody("usdc", big.NewInt(10_000000))

	// The custody counter stays untouched until the books are committed.
	balance, err := ledger.CustodyBalance("USDC")
	if err != nil {
		t.Fatalf("balance before commit: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero custody before commit, got %s", balance)
	}

	if err := ledger.Commit(pending); err != nil {
		t.Fatalf("commit: %v", err)
	}
	balance, err = ledger.CustodyBalance("USDC")
	if err != nil {
		t.Fatalf("balance after commit: %v", err)
	}
	if balance.Cmp(big.NewInt(10_000000)) != 0 {
		t.Fatalf("unexpected custody after commit %s", balance)
	}

	if err := ledger.DebitCustody("USDC", big.NewInt(20_000000)); err == nil {
		t.Fatal("expected over-debit to fail")
	}
	if err := ledger.DebitCustody("USDC", big.NewInt(4_000000)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	balance, _ = ledger.CustodyBalance("USDC")
	if balance.Cmp(big.NewInt(6_000000)) != 0 {
		t.Fatalf("unexpected custody after debit %s", balance)
	}
}

func TestLedgerUniqueContributorsOncePerContributor(t *testing.T) {
	st := newMockState()
	ledger := newTestLedger(st)
	contributor := addr(5)

	for i := 0; i < 3; i++ {
		pending, err := ledger.Prepare(contributor, wadAmount(10), nil, MethodAsset, "", [20]byte{})
		if err != nil {
			t.Fatalf("prepare %d: %v", i, err)
		}
		if err := ledger.Commit(pending); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	stats, err := ledger.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.UniqueContributors != 1 {
		t.Fatalf("expected 1 unique contributor, got %d", stats.UniqueContributors)
	}
}

func TestLedgerNativeInflowScopedToNativeMethod(t *testing.T) {
	st := newMockState()
	ledger := newTestLedger(st)

	pending, err := ledger.Prepare(addr(6), wadAmount(10), big.NewInt(500), MethodNative, "", [20]byte{})
	if err != nil {
		t.Fatalf("prepare native: %v", err)
	}
	if err := ledger.Commit(pending); err != nil {
		t.Fatalf("commit native: %v", err)
	}
	pending, err = ledger.Prepare(addr(7), wadAmount(10), big.NewInt(999), MethodAsset, "", [20]byte{})
	if err != nil {
		t.Fatalf("prepare asset: %v", err)
	}
	if err := ledger.Commit(pending); err != nil {
		t.Fatalf("commit asset: %v", err)
	}
	stats, err := ledger.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalNativeInflow.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("native inflow must only track the native method, got %s", stats.TotalNativeInflow)
	}
}

func TestLedgerJournalListing(t *testing.T) {
	st := newMockState()
	ledger := newTestLedger(st)

	ts := int64(1700000000)
	for i := 0; i < 3; i++ {
		offset := int64(i * 100)
		ledger.SetClock(func() time.Time { return time.Unix(ts+offset, 0) })
		pending, err := ledger.Prepare(addr(byte(10+i)), wadAmount(10), nil, MethodAsset, "", [20]byte{})
		if err != nil {
			t.Fatalf("prepare %d: %v", i, err)
		}
		if err := ledger.Commit(pending); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	entries, cursor, err := ledger.ListJournal(0, 0, "", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || cursor == "" {
		t.Fatalf("expected first page of 2 with cursor, got %d %q", len(entries), cursor)
	}
	rest, cursor, err := ledger.ListJournal(0, 0, cursor, 2)
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest) != 1 || cursor != "" {
		t.Fatalf("expected final page of 1, got %d %q", len(rest), cursor)
	}
	if entries[0].CreatedAt > entries[1].CreatedAt {
		t.Fatalf("expected chronological order")
	}

	windowed, _, err := ledger.ListJournal(ts+50, ts+150, "", 0)
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	if len(windowed) != 1 || windowed[0].CreatedAt != uint64(ts+100) {
		t.Fatalf("unexpected window result %+v", windowed)
	}
}
