package quiz

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes gives 192 bits of entropy; collisions are only possible
// through a broken randomness source, which the store's unique constraint
// on access_token still catches.
const tokenBytes = 24

// TokenSource produces access tokens for anonymous attempts. Swappable in
// tests to force collisions.
type TokenSource func() (string, error)

// NewAccessToken returns an unguessable, URL-safe access token.
func NewAccessToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
