package auth

import (
	"fmt"
	"time"

	"github.com/hugh/projectcamp/pkg/crypto"
)

// How long email-verification and password-reset links stay valid.
const temporaryTokenTTL = 20 * time.Minute

// newTemporaryToken returns a random token for a link, its digest for
// storage, and the expiry.
func newTemporaryToken() (raw, hashed string, expiresAt time.Time, err error) {
	raw, err = crypto.GenerateToken(20)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("generating token: %w", err)
	}
	return raw, crypto.Digest(raw), time.Now().Add(temporaryTokenTTL), nil
}
