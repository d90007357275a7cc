package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key hashes parts into a stable hex key, so client addresses never end up
// verbatim in shared stores.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:16])
}
