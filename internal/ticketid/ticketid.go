// Package ticketid generates the externally visible ticket references
// embedded in QR codes.
package ticketid

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Prefix starts every ticket id.
const Prefix = "TKT-"

// New returns Prefix followed by the 32 upper-case hex digits of a random
// (version 4) UUID.
func New() string {
	id := uuid.New()
	return Prefix + strings.ToUpper(hex.EncodeToString(id[:]))
}

// Valid reports whether s has the shape produced by New.
func Valid(s string) bool {
	if !strings.HasPrefix(s, Prefix) {
		return false
	}
	rest := s[len(Prefix):]
	if len(rest) != 32 {
		return false
	}
	for _, c := range rest {
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
