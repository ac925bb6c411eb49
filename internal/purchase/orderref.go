package purchase

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
)

// refEncoding is unpadded base32 so references stay short and copyable.
var refEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newOrderReference returns an externally visible order reference drawn from
// a cryptographically strong random source. Never derived from a timestamp
// or a counter: references must not be guessable or enumerable.
func newOrderReference() (string, error) {
	var b [10]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("order reference: %w", err)
	}
	return "GK-" + refEncoding.EncodeToString(b[:]), nil
}
