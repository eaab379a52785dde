package booking

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// PublicTokenLength is the fixed length of every self-service token.
const PublicTokenLength = 32

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewPublicToken returns an unguessable token granting self-service
// access to exactly one booking. It is random, never derived from
// booking attributes.
func NewPublicToken() (string, error) {
	// 20 random bytes encode to exactly 32 base32 characters.
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate public token: %w", err)
	}
	return strings.ToLower(tokenEncoding.EncodeToString(buf)), nil
}
