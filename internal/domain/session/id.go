package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// IDPrefix namespaces session identifiers so they are recognizable in logs
// and in the remote directory's keyspace.
const IDPrefix = "sess_"

// GenerateID creates a cryptographically random session identifier:
// 128 bits from crypto/rand, hex-encoded, with the "sess_" namespace prefix.
// A read failure from the entropy source is unrecoverable and propagates.
func GenerateID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return IDPrefix + hex.EncodeToString(b), nil
}

// ValidID reports whether id has the expected prefix and a 32-char hex body.
func ValidID(id string) bool {
	body, ok := strings.CutPrefix(id, IDPrefix)
	if !ok || len(body) != 32 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}
