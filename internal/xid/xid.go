// Package xid generates prefixed random identifiers for stored entities.
// Prefixes in use: sess (sessions), dish, ing (ingredients), so (sales
// orders), waste, usage, audit.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an identifier of the form prefix-<unixnano>-<8 random bytes>.
// If the system randomness source fails, the timestamp alone is used.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
