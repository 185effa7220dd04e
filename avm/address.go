package avm

import (
	"crypto/sha512"
	"strings"
)

// base32 alphabet per RFC 4648 without padding, as used by Algorand
// addresses.
const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// EncodeAddress renders a 32-byte public key as a 58-character Algorand
// address: the key followed by a 4-byte checksum (the last 4 bytes of its
// SHA-512/256 digest), both base32-encoded without padding. Callers must
// only call this with exactly 32 bytes; it returns "" otherwise.
func EncodeAddress(pk []byte) string {
	if len(pk) != 32 {
		return ""
	}
	sum := sha512_256(pk)
	checksum := sum[len(sum)-4:]

	buf := make([]byte, 0, 36)
	buf = append(buf, pk...)
	buf = append(buf, checksum...)
	return base32Encode(buf)
}

func sha512_256(b []byte) []byte {
	h := sha512.New512_256()
	h.Write(b)
	return h.Sum(nil)
}

func base32Encode(data []byte) string {
	var sb strings.Builder
	var bits uint
	var value uint32

	for _, b := range data {
		value = (value << 8) | uint32(b)
		bits += 8
		for bits >= 5 {
			sb.WriteByte(base32Alphabet[(value>>(bits-5))&0x1f])
			bits -= 5
		}
	}
	if bits > 0 {
		sb.WriteByte(base32Alphabet[(value<<(5-bits))&0x1f])
	}
	return sb.String()
}
