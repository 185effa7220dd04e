package sourcemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVLQSingle(t *testing.T) {
	// 'A' = 0 -> value 0
	v, next, err := decodeVLQ("A", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.Equal(t, 1, next)

	// 'C' = 2 -> unsigned 1, sign bit set means negate: 2>>1=1, bit0=0 => value 1
	v, _, err = decodeVLQ("C", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// 'D' = 3 -> 3>>1=1, bit0=1 => negate => -1
	v, _, err = decodeVLQ("D", 0)
	require.NoError(t, err)
	assert.Equal(t, -1, v)
}

func TestDecodeVLQMultiDigit(t *testing.T) {
	// encode value 16 manually: shifted value = 32 (16<<1, positive),
	// base32: digit0 = 32 & 31 = 0 with continuation bit set -> 'g' continuation + digit1
	// simplest: round-trip via encode helper in this test
	encoded := encodeVLQForTest(16)
	v, next, err := decodeVLQ(encoded, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, v)
	assert.Equal(t, len(encoded), next)

	encoded = encodeVLQForTest(-1000)
	v, _, err = decodeVLQ(encoded, 0)
	require.NoError(t, err)
	assert.Equal(t, -1000, v)
}

func encodeVLQForTest(value int) string {
	var result int
	if value < 0 {
		result = ((-value) << 1) | 1
	} else {
		result = value << 1
	}

	var out []byte
	for {
		digit := result & vlqBaseMask
		result >>= 5
		if result > 0 {
			digit |= vlqContinue
		}
		out = append(out, base64Alphabet[digit])
		if result == 0 {
			break
		}
	}
	return string(out)
}

func TestDecodeVLQTruncated(t *testing.T) {
	_, _, err := decodeVLQ("g", 0) // continuation bit set, nothing follows
	assert.Error(t, err)
}
