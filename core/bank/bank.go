package bank

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"crowdsale/core/state"
	"crowdsale/native/sale"
)

var (
	balancePrefix = "bank:balance:"
	sharesPrefix  = "bank:shares:"
	receiptPrefix = "bank:mint:"
	supplyKey     = []byte("bank:shares:supply")
)

func balanceKey(symbol string, addr [20]byte) []byte {
	return []byte(balancePrefix + symbol + ":" + hex.EncodeToString(addr[:]))
}

func sharesKey(addr [20]byte) []byte {
	return []byte(sharesPrefix + hex.EncodeToString(addr[:]))
}

func receiptKey(id string) []byte {
	return []byte(receiptPrefix + id)
}

// Vault tracks per-participant asset balances and moves them in and out of
// sale custody. It backs the engine's pull and release hooks.
type Vault struct {
	mgr *state.Manager
}

// NewVault creates a vault over the supplied state manager.
func NewVault(mgr *state.Manager) *Vault {
	return &Vault{mgr: mgr}
}

// Balance returns the free balance a participant holds for the symbol.
func (v *Vault) Balance(addr [20]byte, symbol string) (*big.Int, error) {
	normalized, err := normaliseSymbol(symbol)
	if err != nil {
		return nil, err
	}
	balance := new(big.Int)
	ok, err := v.mgr.KVGet(balanceKey(normalized, addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// Deposit credits a participant's free balance. Used when settled inbound
// transfers are booked into the vault.
func (v *Vault) Deposit(addr [20]byte, symbol string, amount *big.Int) error {
	normalized, err := normaliseSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: deposit amount must be positive")
	}
	balance, err := v.Balance(addr, normalized)
	if err != nil {
		return err
	}
	return v.mgr.KVPut(balanceKey(normalized, addr), new(big.Int).Add(balance, amount))
}

// Pull moves amount from the participant's free balance into custody. The
// debit fails when the free balance cannot cover it.
func (v *Vault) Pull(addr [20]byte, symbol string, amount *big.Int) error {
	normalized, err := normaliseSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: pull amount must be positive")
	}
	balance, err := v.Balance(addr, normalized)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("bank: insufficient %s balance", normalized)
	}
	return v.mgr.KVPut(balanceKey(normalized, addr), new(big.Int).Sub(balance, amount))
}

// Release returns amount to the participant's free balance.
func (v *Vault) Release(addr [20]byte, symbol string, amount *big.Int) error {
	normalized, err := normaliseSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: release amount must be positive")
	}
	balance, err := v.Balance(addr, normalized)
	if err != nil {
		return err
	}
	return v.mgr.KVPut(balanceKey(normalized, addr), new(big.Int).Add(balance, amount))
}

func normaliseSymbol(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return "", fmt.Errorf("bank: symbol must not be empty")
	}
	return normalized, nil
}

// Minter credits minted shares to participant accounts. Every instruction is
// applied at most once keyed by its identifier, so a replayed instruction is a
// no-op rather than a double credit.
type Minter struct {
	mgr *state.Manager
}

// NewMinter creates a minter over the supplied state manager.
func NewMinter(mgr *state.Manager) *Minter {
	return &Minter{mgr: mgr}
}

// Mint applies a mint instruction.
func (m *Minter) Mint(instr sale.MintInstruction) error {
	if strings.TrimSpace(instr.ID) == "" {
		return fmt.Errorf("bank: mint instruction id must not be empty")
	}
	if instr.Shares == nil || instr.Shares.Sign() <= 0 {
		return fmt.Errorf("bank: mint amount must be positive")
	}
	seen, err := m.mgr.KVGet(receiptKey(instr.ID), nil)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}
	balance := new(big.Int)
	if ok, err := m.mgr.KVGet(sharesKey(instr.Contributor), balance); err != nil {
		return err
	} else if !ok {
		balance = big.NewInt(0)
	}
	if err := m.mgr.KVPut(sharesKey(instr.Contributor), new(big.Int).Add(balance, instr.Shares)); err != nil {
		return err
	}
	supply, err := m.TotalSupply()
	if err != nil {
		return err
	}
	if err := m.mgr.KVPut(supplyKey, new(big.Int).Add(supply, instr.Shares)); err != nil {
		return err
	}
	return m.mgr.KVPut(receiptKey(instr.ID), true)
}

// SharesOf returns the shares credited to the address.
func (m *Minter) SharesOf(addr [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.mgr.KVGet(sharesKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// TotalSupply returns the total shares ever minted.
func (m *Minter) TotalSupply() (*big.Int, error) {
	supply := new(big.Int)
	ok, err := m.mgr.KVGet(supplyKey, supply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return supply, nil
}
