package trace

import (
	"crypto/sha512"

	"github.com/opencontainers/go-digest"
)

// SHA512_256 is the program-hash algorithm used throughout the sources
// descriptor and trace ("hash" fields are the SHA-512/256 of the program
// bytes). go-digest does not register it out of the box, so it is added
// here under the conventional "sha512/256" algorithm name.
const SHA512_256 digest.Algorithm = "sha512/256"

func init() {
	if !SHA512_256.Available() {
		digest.RegisterAlgorithm(SHA512_256, sha512.New512_256)
	}
}

// HashProgram returns the canonical digest used to key ProgramSource
// entries and program references on Frame nodes.
func HashProgram(programBytes []byte) digest.Digest {
	return SHA512_256.FromBytes(programBytes)
}
