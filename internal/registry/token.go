package registry

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// tokenPrefix marks Herald sidecar tokens so they are recognizable in
// configuration files without revealing anything about their contents.
const tokenPrefix = "hld_sk_"

// NewToken generates an opaque sidecar auth token.
func NewToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based token if crypto/rand fails
		return fmt.Sprintf("%s%x", tokenPrefix, time.Now().UnixNano())
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(b)
}
