package state

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"crowdsale/storage"
)

// Manager provides a minimal interface for reading and writing sale state. All
// values are RLP encoded before hitting the underlying database so records
// survive restarts byte-for-byte.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	rolePrefix  = []byte("role:")
	pausePrefix = []byte("pause:")
)

func roleKey(role string) []byte {
	buf := make([]byte, len(rolePrefix)+len(role))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	return buf
}

func pauseKey(module string) []byte {
	buf := make([]byte, len(pausePrefix)+len(module))
	copy(buf, pausePrefix)
	copy(buf[len(pausePrefix):], module)
	return buf
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state. A nil destination turns the call into a pure existence
// check that never fetches the value.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	if out == nil {
		return m.db.Has(key)
	}
	data, err := m.db.Get(key)
	if err == storage.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	var list [][]byte
	data, err := m.db.Get(key)
	if err != nil && err != storage.ErrKeyNotFound {
		return err
	}
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
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
	return m.db.Put(key, encoded)
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice to avoid nil
// surprises for callers.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(key)
	if err != nil && err != storage.ErrKeyNotFound {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// --- Roles ---

// SetRole grants the supplied role to the address. Membership lists are kept
// deduplicated so repeated grants are idempotent.
func (m *Manager) SetRole(role string, addr []byte) error {
	normalized := strings.ToUpper(strings.TrimSpace(role))
	if normalized == "" {
		return fmt.Errorf("role must not be empty")
	}
	if len(addr) != 20 {
		return fmt.Errorf("role %s: address must be 20 bytes", normalized)
	}
	members, err := m.RoleMembers(normalized)
	if err != nil {
		return err
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	return m.KVPut(roleKey(normalized), members)
}

// RoleMembers returns the addresses granted the supplied role.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	normalized := strings.ToUpper(strings.TrimSpace(role))
	if normalized == "" {
		return nil, fmt.Errorf("role must not be empty")
	}
	var members [][]byte
	ok, err := m.KVGet(roleKey(normalized), &members)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	return members, nil
}

// HasRole reports whether the address holds the supplied role.
func (m *Manager) HasRole(role string, addr []byte) bool {
	members, err := m.RoleMembers(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

// --- Pause flags ---

// SetPaused toggles the pause flag for the supplied module.
func (m *Manager) SetPaused(module string, paused bool) error {
	normalized := strings.ToLower(strings.TrimSpace(module))
	if normalized == "" {
		return fmt.Errorf("pause: module must not be empty")
	}
	return m.KVPut(pauseKey(normalized), paused)
}

// IsPaused reports whether the supplied module is paused. It satisfies the
// native/common PauseView interface.
func (m *Manager) IsPaused(module string) bool {
	normalized := strings.ToLower(strings.TrimSpace(module))
	if normalized == "" {
		return false
	}
	var paused bool
	ok, err := m.KVGet(pauseKey(normalized), &paused)
	if err != nil || !ok {
		return false
	}
	return paused
}
