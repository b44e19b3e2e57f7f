package testutil

import (
	"crypto/sha1"
	"encoding/hex"
)

// SHA1Hex returns the SHA-1 checksum of data as a lowercase hex string,
// the format stored in FsNode.SHA1Checksum.
func SHA1Hex(data []byte) string {
	h := sha1.Sum(data)
	return hex.EncodeToString(h[:])
}
