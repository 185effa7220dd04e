package sourcemap

import "github.com/pkg/errors"

const (
	vlqBase        = 32
	vlqBaseMask    = vlqBase - 1
	vlqContinue    = vlqBase
	base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
)

var base64Decode = func() [256]int8 {
	var table [256]int8
	for i := range table {
		table[i] = -1
	}
	for i, c := range base64Alphabet {
		table[byte(c)] = int8(i)
	}
	return table
}()

// decodeVLQ decodes the single base64 VLQ value that starts at s[pos],
// returning the signed value and the offset just past its last digit.
func decodeVLQ(s string, pos int) (value int, next int, err error) {
	shift := 0
	result := 0
	for {
		if pos >= len(s) {
			return 0, 0, errors.New("truncated VLQ")
		}
		c := base64Decode[s[pos]]
		if c < 0 {
			return 0, 0, errors.Errorf("invalid base64 VLQ digit %q", s[pos])
		}
		pos++

		digit := int(c) & vlqBaseMask
		result += digit << shift
		shift += 5

		if int(c)&vlqContinue == 0 {
			break
		}
	}

	negate := result&1 == 1
	result >>= 1
	if negate {
		result = -result
	}
	return result, pos, nil
}
