package sale

import (
	"fmt"
	"math/big"
	"sync"

	"crowdsale/core/events"
	nativecommon "crowdsale/native/common"
)

const moduleName = "sale"

// NativeSymbol keys the custody balance tracked for native-currency inflow.
const NativeSymbol = "NATIVE"

// EngineState is the state access required by the contribution engine beyond
// the plain KV surface used by the ledger and registry.
type EngineState interface {
	Storage
	HasRole(role string, addr []byte) bool
	SetPaused(module string, paused bool) error
	IsPaused(module string) bool
}

// Engine routes the three payment flows into the contribution ledger and hosts
// the role-gated administrative operations. A single mutex is held for the full
// duration of every mutating entry point so no nested call can observe
// intermediate state while an external transfer or mint is in flight.
type Engine struct {
	mu       sync.Mutex
	st       EngineState
	ledger   *Ledger
	registry *AssetRegistry
	oracle   *OracleAdapter
	minter   ShareMinter
	bank     TokenBank
	emitter  events.Emitter
}

// NewEngine wires the engine with its collaborators. The oracle may be nil when
// the native-currency flow is not offered; minting and custody collaborators
// are mandatory.
func NewEngine(st EngineState, oracle *OracleAdapter, minter ShareMinter, bank TokenBank, params Params) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("sale: state manager required")
	}
	if minter == nil {
		return nil, fmt.Errorf("sale: share minter required")
	}
	if bank == nil {
		return nil, fmt.Errorf("sale: token bank required")
	}
	return &Engine{
		st:       st,
		ledger:   NewLedger(st, params),
		registry: NewAssetRegistry(st),
		oracle:   oracle,
		minter:   minter,
		bank:     bank,
		emitter:  events.NoopEmitter{},
	}, nil
}

// SetEmitter configures the event emitter for the engine and its registry.
// Passing nil resets both to no-op implementations.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
	e.registry.SetEmitter(emitter)
}

// Ledger exposes the contribution ledger for read paths and tests.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Registry exposes the asset registry for read paths and tests.
func (e *Engine) Registry() *AssetRegistry {
	return e.registry
}

func (e *Engine) requireRole(caller [20]byte, role string) error {
	if e.st.HasRole(role, caller[:]) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnauthorized, role)
}

// --- Contribution flows ---

// ContributeNative credits a native-currency contribution priced through the
// oracle adapter. The caller must have passed identity verification.
func (e *Engine) ContributeNative(caller [20]byte, amount *big.Int) (*JournalEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.st, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.oracle == nil {
		return nil, ErrInvalidPriceFeed
	}
	contributor, _, err := e.ledger.Contributor(caller)
	if err != nil {
		return nil, err
	}
	if !contributor.Verified {
		return nil, ErrIdentityNotVerified
	}
	usdValue, err := e.oracle.QuoteUSD(amount)
	if err != nil {
		return nil, err
	}
	pending, err := e.ledger.Prepare(caller, usdValue, amount, MethodNative, "", [20]byte{})
	if err != nil {
		return nil, err
	}
	pending.stageCustody(NativeSymbol, amount)
	if err := e.minter.Mint(pending.Instruction); err != nil {
		return nil, fmt.Errorf("sale: mint failed: %w", err)
	}
	if err := e.ledger.Commit(pending); err != nil {
		return nil, err
	}
	e.emitContribution(pending)
	return pending.entry, nil
}

// ContributeAsset credits a registered-asset contribution. The asset amount is
// pulled into custody after all invariant checks pass and before ledger state
// is persisted; the engine mutex stays held across the transfer.
func (e *Engine) ContributeAsset(caller [20]byte, symbol string, amount *big.Int) (*JournalEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.st, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	asset, err := e.registry.Active(symbol)
	if err != nil {
		return nil, err
	}
	usdValue := ToCanonical(amount, asset.Decimals)
	pending, err := e.ledger.Prepare(caller, usdValue, nil, MethodAsset, "", [20]byte{})
	if err != nil {
		return nil, err
	}
	pending.stageCustody(asset.Symbol, amount)
	if err := e.bank.Pull(caller, asset.Symbol, amount); err != nil {
		return nil, fmt.Errorf("sale: custody pull failed: %w", err)
	}
	if err := e.minter.Mint(pending.Instruction); err != nil {
		if releaseErr := e.bank.Release(caller, asset.Symbol, amount); releaseErr != nil {
			return nil, fmt.Errorf("sale: mint failed (%v) and custody release failed: %w", err, releaseErr)
		}
		return nil, fmt.Errorf("sale: mint failed: %w", err)
	}
	if err := e.ledger.Commit(pending); err != nil {
		return nil, err
	}
	e.emitContribution(pending)
	return pending.entry, nil
}

// SettleExternal credits an externally-settled fiat payment. Only the
// settlement-processor role may call it; the USD value is trusted as supplied
// and the reference must not have been credited before.
func (e *Engine) SettleExternal(caller, contributor [20]byte, usdAmount *big.Int, reference string) (*JournalEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.st, moduleName); err != nil {
		return nil, err
	}
	if err := e.requireRole(caller, RoleSettlementProcessor); err != nil {
		return nil, err
	}
	pending, err := e.ledger.Prepare(contributor, usdAmount, nil, MethodExternal, reference, caller)
	if err != nil {
		return nil, err
	}
	if err := e.minter.Mint(pending.Instruction); err != nil {
		return nil, fmt.Errorf("sale: mint failed: %w", err)
	}
	if err := e.ledger.Commit(pending); err != nil {
		return nil, err
	}
	e.emitContribution(pending)
	return pending.entry, nil
}

func (e *Engine) emitContribution(pending *PendingContribution) {
	entry := pending.entry
	e.emitter.Emit(events.ContributionRecorded{
		Contributor: entry.Contributor,
		Method:      entry.Method,
		USDValue:    entry.USDValue,
		Shares:      entry.Shares,
		Reference:   entry.Reference,
		Instruction: entry.InstructionID,
	})
}

// --- Administrative operations ---

// SetIdentityVerified toggles the verification flag for a contributor,
// creating the record implicitly when absent.
func (e *Engine) SetIdentityVerified(caller, contributor [20]byte, verified bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	return e.setVerified(contributor, verified)
}

// SetIdentityVerifiedBatch applies verification flags to several contributors
// at once. The two slices must have equal length.
func (e *Engine) SetIdentityVerifiedBatch(caller [20]byte, contributors [][20]byte, verified []bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	if len(contributors) != len(verified) {
		return ErrBatchLengthMismatch
	}
	for i := range contributors {
		if err := e.setVerified(contributors[i], verified[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) setVerified(contributor [20]byte, verified bool) error {
	record, _, err := e.ledger.Contributor(contributor)
	if err != nil {
		return err
	}
	record.Verified = verified
	if err := e.ledger.PutContributor(record); err != nil {
		return err
	}
	e.emitter.Emit(events.IdentityUpdated{Contributor: contributor, Verified: verified})
	return nil
}

// RegisterAsset activates an exchange-pegged asset for contributions.
func (e *Engine) RegisterAsset(caller [20]byte, symbol string, decimals uint8, feedRef string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	return e.registry.Register(symbol, decimals, feedRef)
}

// DeregisterAsset soft-deactivates an asset.
func (e *Engine) DeregisterAsset(caller [20]byte, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	return e.registry.Deregister(symbol)
}

// Pause blocks every contribution flow until Unpause is called. Administrative
// operations stay available so the pause can be lifted.
func (e *Engine) Pause(caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	if err := e.st.SetPaused(moduleName, true); err != nil {
		return err
	}
	e.emitter.Emit(events.Paused{})
	return nil
}

// Unpause lifts the contribution pause.
func (e *Engine) Unpause(caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	if err := e.st.SetPaused(moduleName, false); err != nil {
		return err
	}
	e.emitter.Emit(events.Unpaused{})
	return nil
}

// EmergencyWithdraw releases custodied balances to the supplied recipient.
// Restricted to the treasurer role and available while paused.
func (e *Engine) EmergencyWithdraw(caller, recipient [20]byte, symbol string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireRole(caller, RoleTreasurer); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	normalized := normaliseAssetSymbol(symbol)
	if normalized == "" {
		return ErrInvalidAsset
	}
	if err := e.ledger.DebitCustody(normalized, amount); err != nil {
		return err
	}
	if err := e.bank.Release(recipient, normalized, amount); err != nil {
		// Restore the custody counter so books keep matching holdings.
		if creditErr := e.ledger.CreditCustody(normalized, amount); creditErr != nil {
			return fmt.Errorf("sale: release failed (%v) and custody restore failed: %w", err, creditErr)
		}
		return fmt.Errorf("sale: release failed: %w", err)
	}
	e.emitter.Emit(events.EmergencyWithdrawal{Asset: normalized, Amount: amount, Recipient: recipient})
	return nil
}

// --- Read-only queries ---

// Contributor returns the stored record for the address, zeroed when absent.
func (e *Engine) Contributor(addr [20]byte) (*Contributor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	record, _, err := e.ledger.Contributor(addr)
	return record, err
}

// ShareBalance returns the cumulative shares minted to the address.
func (e *Engine) ShareBalance(addr [20]byte) (*big.Int, error) {
	record, err := e.Contributor(addr)
	if err != nil {
		return nil, err
	}
	return record.SharesReceived, nil
}

// CustodiedBalance returns the custody counter for an asset symbol or
// NativeSymbol.
func (e *Engine) CustodiedBalance(symbol string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.CustodyBalance(symbol)
}

// SupportedAssets lists every asset ever registered in registration order.
func (e *Engine) SupportedAssets() ([]*SupportedAsset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.List()
}

// Stats returns the global aggregates.
func (e *Engine) Stats() (*GlobalStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Stats()
}

// PreviewNativeShares quotes the shares a native-currency amount would mint at
// the current oracle price, without mutating state.
func (e *Engine) PreviewNativeShares(amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.oracle == nil {
		return nil, ErrInvalidPriceFeed
	}
	usdValue, err := e.oracle.QuoteUSD(amount)
	if err != nil {
		return nil, err
	}
	return e.ledger.Params().SharesFor(usdValue), nil
}

// PreviewAssetShares quotes the shares a registered-asset amount would mint.
func (e *Engine) PreviewAssetShares(symbol string, amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	asset, err := e.registry.Active(symbol)
	if err != nil {
		return nil, err
	}
	usdValue := ToCanonical(amount, asset.Decimals)
	return e.ledger.Params().SharesFor(usdValue), nil
}

// Journal returns a paginated window over applied contributions.
func (e *Engine) Journal(startTs, endTs int64, cursor string, limit int) ([]*JournalEntry, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.ListJournal(startTs, endTs, cursor, limit)
}
