// Package avm models the AVM's dynamically-typed stack/scratch/state
// values and the byte-string renderings the debug adapter exposes for
// them.
package avm

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// Kind tags the two AVM value representations.
type Kind int

const (
	KindUint Kind = iota
	KindBytes
)

// Value is a tagged AVM value: either a uint64 or a byte string. Only one
// of Uint/Bytes is meaningful, selected by Kind.
type Value struct {
	Kind  Kind
	Uint  uint64
	Bytes []byte
}

func FromUint(v uint64) Value {
	return Value{Kind: KindUint, Uint: v}
}

func FromBytes(b []byte) Value {
	return Value{Kind: KindBytes, Bytes: b}
}

// String renders the value the way it would appear in a debugger's
// variables view: decimal for uints, and a best-effort short form for
// byte strings (see Renderings for the full breakdown).
func (v Value) String() string {
	switch v.Kind {
	case KindUint:
		return fmt.Sprintf("%d", v.Uint)
	case KindBytes:
		return shortBytes(v.Bytes)
	default:
		return "<invalid>"
	}
}

func shortBytes(b []byte) string {
	if isPrintableASCII(b) {
		return fmt.Sprintf("%q", string(b))
	}
	return "0x" + hex.EncodeToString(b)
}

// Renderings is the set of simultaneous views the DAP surface exposes
// when a byte-string value is expanded in the variables tree.
type Renderings struct {
	Hex     string
	Base64  string
	ASCII   string // empty when not all bytes are printable
	IsASCII bool
	Address string // empty unless len(bytes) == 32
	Length  int
}

// Render computes every rendering of a byte string. It takes the raw
// bytes, so callers holding a Value pass its Bytes field.
func Render(b []byte) Renderings {
	r := Renderings{
		Hex:    "0x" + hex.EncodeToString(b),
		Base64: base64.StdEncoding.EncodeToString(b),
		Length: len(b),
	}
	if isPrintableASCII(b) {
		r.IsASCII = true
		r.ASCII = string(b)
	}
	if len(b) == 32 {
		r.Address = EncodeAddress(b)
	}
	return r
}

func isPrintableASCII(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// ByteMap is a mapping whose keys and values are raw byte strings,
// compared by byte content. Insertion order is not observable; Keys
// returns them sorted for deterministic iteration/display.
type ByteMap struct {
	entries map[string][]byte
}

func NewByteMap() *ByteMap {
	return &ByteMap{entries: make(map[string][]byte)}
}

func (m *ByteMap) Clone() *ByteMap {
	out := NewByteMap()
	for k, v := range m.entries {
		out.entries[k] = append([]byte(nil), v...)
	}
	return out
}

func (m *ByteMap) Set(key, value []byte) {
	m.entries[string(key)] = append([]byte(nil), value...)
}

func (m *ByteMap) Delete(key []byte) {
	delete(m.entries, string(key))
}

func (m *ByteMap) Get(key []byte) ([]byte, bool) {
	v, ok := m.entries[string(key)]
	return v, ok
}

func (m *ByteMap) Len() int {
	return len(m.entries)
}

// Keys returns the map's keys in ascending byte order.
func (m *ByteMap) Keys() [][]byte {
	keys := make([][]byte, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, []byte(k))
	}
	sortByteSlices(keys)
	return keys
}

func sortByteSlices(keys [][]byte) {
	// insertion sort is fine: these maps are small (app state, box keys)
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && string(keys[j-1]) > string(keys[j]); j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

// ErrOutOfRange describes an out-of-bounds access in an expression
// (stack[i], scratch[i]). It is never surfaced as an adapter-level
// error: the expression evaluators put its message into the response
// body instead of returning it.
var ErrOutOfRange = errors.New("out of range")
