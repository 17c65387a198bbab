package sale

import (
	"bytes"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

// mockState implements EngineState in memory for engine and ledger tests.
type mockState struct {
	kv     map[string][]byte
	roles  map[string][][]byte
	paused map[string]bool
}

func newMockState() *mockState {
	return &mockState{
		kv:     make(map[string][]byte),
		roles:  make(map[string][][]byte),
		paused: make(map[string]bool),
	}
}

func (m *mockState) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockState) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *mockState) KVAppend(key []byte, value []byte) error {
	var list [][]byte
	if encoded, ok := m.kv[string(key)]; ok {
		if err := rlp.DecodeBytes(encoded, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockState) KVGetList(key []byte, out interface{}) error {
	encoded, ok := m.kv[string(key)]
	if !ok {
		val := reflect.ValueOf(out)
		elem := val.Elem()
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(encoded, out)
}

func (m *mockState) HasRole(role string, addr []byte) bool {
	for _, member := range m.roles[strings.ToUpper(role)] {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

func (m *mockState) grantRole(role string, addr [20]byte) {
	normalized := strings.ToUpper(role)
	m.roles[normalized] = append(m.roles[normalized], append([]byte(nil), addr[:]...))
}

func (m *mockState) SetPaused(module string, paused bool) error {
	m.paused[strings.ToLower(module)] = paused
	return nil
}

func (m *mockState) IsPaused(module string) bool {
	return m.paused[strings.ToLower(module)]
}

// recordingMinter captures every mint instruction handed to it.
type recordingMinter struct {
	minted []MintInstruction
	fail   error
}

func (m *recordingMinter) Mint(instruction MintInstruction) error {
	if m.fail != nil {
		return m.fail
	}
	m.minted = append(m.minted, instruction)
	return nil
}

func (m *recordingMinter) totalMinted() *big.Int {
	total := big.NewInt(0)
	for _, instruction := range m.minted {
		total.Add(total, instruction.Shares)
	}
	return total
}

// memoryBank tracks pulls and releases per asset symbol.
type memoryBank struct {
	pulled   map[string]*big.Int
	released map[string]*big.Int
	failPull error
}

func newMemoryBank() *memoryBank {
	return &memoryBank{pulled: make(map[string]*big.Int), released: make(map[string]*big.Int)}
}

func (b *memoryBank) Pull(_ [20]byte, symbol string, amount *big.Int) error {
	if b.failPull != nil {
		return b.failPull
	}
	total, ok := b.pulled[symbol]
	if !ok {
		total = big.NewInt(0)
	}
	b.pulled[symbol] = total.Add(total, amount)
	return nil
}

func (b *memoryBank) Release(_ [20]byte, symbol string, amount *big.Int) error {
	total, ok := b.released[symbol]
	if !ok {
		total = big.NewInt(0)
	}
	b.released[symbol] = total.Add(total, amount)
	return nil
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func wadAmount(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), wad)
}
