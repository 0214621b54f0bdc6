package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// SHA256sum computes a cryptographic hash. Session ids are stored under their
// SHA256 so a leaked store dump can't be replayed as cookies.
func SHA256sum(text string) string {
	hash := sha256.New()
	hash.Write([]byte(text))
	return hex.EncodeToString(hash.Sum(nil))
}

// FastHash is a non-cryptographic hash used to fingerprint images and
// tensors in logs.
func FastHash(text string) string {
	return FastHashBytes([]byte(text))
}

func FastHashBytes(data []byte) string {
	h := xxhash.Sum64(data)
	return strconv.FormatUint(h, 16)
}
