package document

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashLength is the number of hex characters kept from the digest.
const HashLength = 16

// Hash returns a short hex SHA-256 prefix of content. It is advisory only and
// used for display and change detection.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:HashLength]
}
