package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// NewTicketCode returns a fresh uppercase hex ticket code. Codes are unique
// per store constraint and re-issued whenever a ticket changes hands.
func NewTicketCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "TKT-" + strings.ToUpper(hex.EncodeToString(b)), nil
}
