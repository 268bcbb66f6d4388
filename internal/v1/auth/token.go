package auth

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// NewToken mints an opaque session token: URL-safe base64 of 16 random
// bytes. Tokens carry no claims; the session store is the only authority.
func NewToken() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}
