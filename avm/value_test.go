package avm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderASCII(t *testing.T) {
	r := Render([]byte("hello"))
	assert.True(t, r.IsASCII)
	assert.Equal(t, "hello", r.ASCII)
	assert.Equal(t, "0x68656c6c6f", r.Hex)
	assert.Equal(t, 5, r.Length)
	assert.Empty(t, r.Address)
}

func TestRenderNonPrintable(t *testing.T) {
	r := Render([]byte{0x00, 0x01, 0xff})
	assert.False(t, r.IsASCII)
	assert.Empty(t, r.ASCII)
	assert.Equal(t, "0x0001ff", r.Hex)
}

func TestRenderAddress(t *testing.T) {
	pk := make([]byte, 32)
	for i := range pk {
		pk[i] = byte(i)
	}
	r := Render(pk)
	require.Len(t, r.Address, 58)
	assert.True(t, strings.IndexFunc(r.Address, func(c rune) bool {
		return !strings.ContainsRune(base32Alphabet, c)
	}) == -1)
}

func TestByteMapKeysSorted(t *testing.T) {
	m := NewByteMap()
	m.Set([]byte("zzz"), []byte("1"))
	m.Set([]byte("aaa"), []byte("2"))
	m.Set([]byte("mmm"), []byte("3"))

	keys := m.Keys()
	require.Len(t, keys, 3)
	assert.Equal(t, "aaa", string(keys[0]))
	assert.Equal(t, "mmm", string(keys[1]))
	assert.Equal(t, "zzz", string(keys[2]))
}

func TestByteMapCloneIndependent(t *testing.T) {
	m := NewByteMap()
	m.Set([]byte("k"), []byte("v1"))

	clone := m.Clone()
	clone.Set([]byte("k"), []byte("v2"))

	v, ok := m.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, "v1", string(v))

	v2, ok := clone.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, "v2", string(v2))
}

func TestByteMapDelete(t *testing.T) {
	m := NewByteMap()
	m.Set([]byte("k"), []byte("v"))
	m.Delete([]byte("k"))

	_, ok := m.Get([]byte("k"))
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "42", FromUint(42).String())
	assert.Equal(t, `"abc"`, FromBytes([]byte("abc")).String())
	assert.Equal(t, "0x00ff", FromBytes([]byte{0x00, 0xff}).String())
}
