package sale

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
)

// Ledger owns the contributor table, global aggregates, the settlement
// reference set, and the contribution journal. Every mutation is staged first
// and only persisted once the surrounding operation has fully succeeded, so a
// failed operation leaves state untouched.
type Ledger struct {
	st     Storage
	params Params
	clock  func() time.Time
	idgen  func() string
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(st Storage, params Params) *Ledger {
	return &Ledger{
		st:     st,
		params: params.Normalise(),
		clock:  time.Now,
		idgen:  uuid.NewString,
	}
}

// SetClock overrides the time source (primarily for deterministic testing).
func (l *Ledger) SetClock(clock func() time.Time) {
	if l == nil || clock == nil {
		return
	}
	l.clock = clock
}

// SetInstructionIDs overrides the mint instruction identifier source.
func (l *Ledger) SetInstructionIDs(idgen func() string) {
	if l == nil || idgen == nil {
		return
	}
	l.idgen = idgen
}

// Params returns the policy parameters the ledger enforces.
func (l *Ledger) Params() Params {
	return l.params
}

// Contributor fetches the record for the supplied address. Missing records
// resolve to a zeroed contributor so callers never see nil tallies.
func (l *Ledger) Contributor(addr [20]byte) (*Contributor, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("ledger not initialised")
	}
	record := new(Contributor)
	found, err := l.st.KVGet(contributorKey(addr), record)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return newContributor(addr), false, nil
	}
	ensureContributorAmounts(record)
	return record, true, nil
}

// Stats returns the global aggregates, zeroed when the sale has no history yet.
func (l *Ledger) Stats() (*GlobalStats, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	stats := new(GlobalStats)
	found, err := l.st.KVGet(statsKey, stats)
	if err != nil {
		return nil, err
	}
	if !found {
		return newGlobalStats(), nil
	}
	ensureStatsAmounts(stats)
	return stats, nil
}

// PutContributor persists a contributor record outside the contribution path.
// Used by identity verification updates, which create records implicitly.
func (l *Ledger) PutContributor(record *Contributor) error {
	if l == nil {
		return fmt.Errorf("ledger not initialised")
	}
	if record == nil {
		return fmt.Errorf("ledger: record must not be nil")
	}
	ensureContributorAmounts(record)
	return l.st.KVPut(contributorKey(record.Address), record)
}

// SettlementExists reports whether the supplied reference has been credited.
func (l *Ledger) SettlementExists(reference string) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("ledger not initialised")
	}
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return false, ErrInvalidReference
	}
	return l.st.KVGet(settlementKey(trimmed), nil)
}

// Settlement retrieves the audit record stored for a processed reference.
func (l *Ledger) Settlement(reference string) (*SettlementRecord, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("ledger not initialised")
	}
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return nil, false, ErrInvalidReference
	}
	record := new(SettlementRecord)
	found, err := l.st.KVGet(settlementKey(trimmed), record)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return record, true, nil
}

// PendingContribution stages the full effect of one contribution: the updated
// contributor and stats records, the journal entry, the optional settlement
// record, and the mint instruction to hand to the share-issuing collaborator.
type PendingContribution struct {
	Instruction   MintInstruction
	contributor   *Contributor
	stats         *GlobalStats
	entry         *JournalEntry
	settlement    *SettlementRecord
	custodySymbol string
	custodyAmount *big.Int
}

// stageCustody attaches a custody credit to the pending contribution so the
// counter is written together with the books in Commit.
func (p *PendingContribution) stageCustody(symbol string, amount *big.Int) {
	if p == nil || amount == nil {
		return
	}
	p.custodySymbol = normaliseAssetSymbol(symbol)
	p.custodyAmount = new(big.Int).Set(amount)
}

// Contributor exposes the staged contributor record for inspection.
func (p *PendingContribution) Contributor() *Contributor {
	if p == nil {
		return nil
	}
	return p.contributor.Copy()
}

// Prepare validates a contribution and stages its effects without touching
// state. A replayed settlement reference fails before any amount precondition;
// after that the minimum is checked first, then the per-contributor cap. The
// first failure wins and nothing is staged.
func (l *Ledger) Prepare(addr [20]byte, usdValue, nativeAmount *big.Int, method PaymentMethod, reference string, processor [20]byte) (*PendingContribution, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	trimmedRef := strings.TrimSpace(reference)
	if method == MethodExternal {
		if trimmedRef == "" {
			return nil, ErrInvalidReference
		}
		processed, err := l.SettlementExists(trimmedRef)
		if err != nil {
			return nil, err
		}
		if processed {
			return nil, fmt.Errorf("%w: %s", ErrReferenceProcessed, trimmedRef)
		}
	}
	if usdValue == nil || usdValue.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if usdValue.Cmp(l.params.MinUSDContribution) < 0 {
		return nil, fmt.Errorf("%w: %s below %s", ErrContributionTooSmall, usdValue, l.params.MinUSDContribution)
	}
	contributor, _, err := l.Contributor(addr)
	if err != nil {
		return nil, err
	}
	cumulative := new(big.Int).Add(contributor.USDContributed, usdValue)
	if cumulative.Cmp(l.params.MaxContributionPerUser) > 0 {
		return nil, fmt.Errorf("%w: cumulative %s exceeds cap %s", ErrContributionLimit, cumulative, l.params.MaxContributionPerUser)
	}

	stats, err := l.Stats()
	if err != nil {
		return nil, err
	}
	now := l.clock().UTC().Unix()
	if now < 0 {
		now = 0
	}
	firstContribution := contributor.USDContributed.Sign() == 0
	staged := contributor.Copy()
	stagedStats := stats.Copy()
	if firstContribution {
		stagedStats.UniqueContributors++
	}
	if method == MethodNative && nativeAmount != nil {
		staged.NativeContributed.Add(staged.NativeContributed, nativeAmount)
		stagedStats.TotalNativeInflow.Add(stagedStats.TotalNativeInflow, nativeAmount)
	}
	staged.USDContributed = cumulative
	shares := l.params.SharesFor(usdValue)
	staged.SharesReceived.Add(staged.SharesReceived, shares)
	staged.LastContributionAt = uint64(now)
	stagedStats.TotalUSDValue.Add(stagedStats.TotalUSDValue, usdValue)
	stagedStats.TotalSharesIssued.Add(stagedStats.TotalSharesIssued, shares)

	instruction := MintInstruction{
		ID:          l.idgen(),
		Contributor: addr,
		Shares:      new(big.Int).Set(shares),
	}
	entry := &JournalEntry{
		InstructionID: instruction.ID,
		Contributor:   addr,
		Method:        string(method),
		USDValue:      new(big.Int).Set(usdValue),
		NativeAmount:  big.NewInt(0),
		Shares:        new(big.Int).Set(shares),
		Reference:     trimmedRef,
		CreatedAt:     uint64(now),
	}
	if method == MethodNative && nativeAmount != nil {
		entry.NativeAmount = new(big.Int).Set(nativeAmount)
	}
	pending := &PendingContribution{
		Instruction: instruction,
		contributor: staged,
		stats:       stagedStats,
		entry:       entry,
	}
	if method == MethodExternal {
		pending.settlement = &SettlementRecord{
			Reference: trimmedRef,
			Processor: processor,
			USDValue:  new(big.Int).Set(usdValue),
			CreatedAt: uint64(now),
		}
	}
	return pending, nil
}

// Commit persists a staged contribution. It must only be called once every
// external step of the operation has succeeded.
func (l *Ledger) Commit(pending *PendingContribution) error {
	if l == nil {
		return fmt.Errorf("ledger not initialised")
	}
	if pending == nil || pending.contributor == nil || pending.stats == nil || pending.entry == nil {
		return fmt.Errorf("ledger: nothing staged")
	}
	if pending.settlement != nil {
		if err := l.st.KVPut(settlementKey(pending.settlement.Reference), pending.settlement); err != nil {
			return err
		}
		if err := l.st.KVAppend(settlementIndexKey, []byte(pending.settlement.Reference)); err != nil {
			return err
		}
	}
	if err := l.st.KVPut(contributorKey(pending.contributor.Address), pending.contributor); err != nil {
		return err
	}
	if err := l.st.KVPut(statsKey, pending.stats); err != nil {
		return err
	}
	if pending.custodySymbol != "" && pending.custodyAmount != nil {
		if err := l.CreditCustody(pending.custodySymbol, pending.custodyAmount); err != nil {
			return err
		}
	}
	if err := l.st.KVPut(journalKey(pending.entry.InstructionID), pending.entry); err != nil {
		return err
	}
	indexed := journalIndexEntry{InstructionID: pending.entry.InstructionID, CreatedAt: pending.entry.CreatedAt}
	encoded, err := rlp.EncodeToBytes(indexed)
	if err != nil {
		return err
	}
	return l.st.KVAppend(journalIndexKey, encoded)
}

// --- Custody counters ---

// CustodyBalance returns the custodied balance recorded for the asset symbol.
// Missing entries resolve to zero.
func (l *Ledger) CustodyBalance(symbol string) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	normalized := normaliseAssetSymbol(symbol)
	if normalized == "" {
		return nil, ErrInvalidAsset
	}
	balance := new(big.Int)
	found, err := l.st.KVGet(custodyKey(normalized), balance)
	if err != nil {
		return nil, err
	}
	if !found {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// CreditCustody increases the custody counter for the asset symbol.
func (l *Ledger) CreditCustody(symbol string, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("ledger not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	normalized := normaliseAssetSymbol(symbol)
	if normalized == "" {
		return ErrInvalidAsset
	}
	balance, err := l.CustodyBalance(normalized)
	if err != nil {
		return err
	}
	return l.st.KVPut(custodyKey(normalized), new(big.Int).Add(balance, amount))
}

// DebitCustody decreases the custody counter for the asset symbol. The debit
// fails when it would drive the counter negative.
func (l *Ledger) DebitCustody(symbol string, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("ledger not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	normalized := normaliseAssetSymbol(symbol)
	if normalized == "" {
		return ErrInvalidAsset
	}
	balance, err := l.CustodyBalance(normalized)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("sale: insufficient custody for %s", normalized)
	}
	return l.st.KVPut(custodyKey(normalized), new(big.Int).Sub(balance, amount))
}

type journalIndexEntry struct {
	InstructionID string
	CreatedAt     uint64
}

// ListJournal returns a paginated slice of journal entries within the supplied
// timestamp range. Both bounds are inclusive; the cursor is the instruction ID
// of the last item from the previous page.
func (l *Ledger) ListJournal(startTs, endTs int64, cursor string, limit int) ([]*JournalEntry, string, error) {
	if l == nil {
		return nil, "", fmt.Errorf("ledger not initialised")
	}
	var raw [][]byte
	if err := l.st.KVGetList(journalIndexKey, &raw); err != nil {
		return nil, "", err
	}
	entries := make([]journalIndexEntry, 0, len(raw))
	for _, encoded := range raw {
		if len(encoded) == 0 {
			continue
		}
		var entry journalIndexEntry
		if err := rlp.DecodeBytes(encoded, &entry); err != nil {
			return nil, "", err
		}
		if entry.CreatedAt > math.MaxInt64 {
			return nil, "", fmt.Errorf("ledger: index entry overflow")
		}
		createdAt := int64(entry.CreatedAt)
		if startTs != 0 && createdAt < startTs {
			continue
		}
		if endTs != 0 && createdAt > endTs {
			continue
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt == entries[j].CreatedAt {
			return entries[i].InstructionID < entries[j].InstructionID
		}
		return entries[i].CreatedAt < entries[j].CreatedAt
	})
	startIdx := 0
	if cursorID := strings.TrimSpace(cursor); cursorID != "" {
		for i, entry := range entries {
			if entry.InstructionID == cursorID {
				startIdx = i + 1
				break
			}
		}
	}
	pageSize := limit
	if pageSize <= 0 {
		pageSize = len(entries) - startIdx
	}
	records := make([]*JournalEntry, 0, pageSize)
	nextCursor := ""
	for i := startIdx; i < len(entries) && len(records) < pageSize; i++ {
		record := new(JournalEntry)
		found, err := l.st.KVGet(journalKey(entries[i].InstructionID), record)
		if err != nil {
			return nil, "", err
		}
		if !found {
			continue
		}
		records = append(records, record)
		nextCursor = entries[i].InstructionID
	}
	if startIdx+len(records) >= len(entries) {
		nextCursor = ""
	}
	return records, nextCursor, nil
}

func ensureContributorAmounts(record *Contributor) {
	if record.NativeContributed == nil {
		record.NativeContributed = big.NewInt(0)
	}
	if record.USDContributed == nil {
		record.USDContributed = big.NewInt(0)
	}
	if record.SharesReceived == nil {
		record.SharesReceived = big.NewInt(0)
	}
}

func ensureStatsAmounts(stats *GlobalStats) {
	if stats.TotalNativeInflow == nil {
		stats.TotalNativeInflow = big.NewInt(0)
	}
	if stats.TotalUSDValue == nil {
		stats.TotalUSDValue = big.NewInt(0)
	}
	if stats.TotalSharesIssued == nil {
		stats.TotalSharesIssued = big.NewInt(0)
	}
}
