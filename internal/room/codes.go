package room

import (
	"crypto/rand"
	"strings"
	"time"
)

// codeAlphabet deliberately uses only uppercase letters and digits so codes
// stay human-typable; inbound codes are uppercased before lookup.
const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// NormalizeCode maps a human-entered room code to its canonical form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// generateCode produces one candidate room code. Uniqueness against the live
// registry is the caller's job.
func generateCode() string {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		// Crypto randomness should never fail; fall back to a time-derived
		// code rather than aborting room creation.
		seed := time.Now().UnixNano()
		for i := range b {
			b[i] = codeAlphabet[int(seed>>(uint(i)*8)&0xff)%len(codeAlphabet)]
		}
		return string(b)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
