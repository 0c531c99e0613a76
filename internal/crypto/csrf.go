package crypto

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CSRFProtection issues and checks stateless anti-forgery tokens of the
// form nonce:unix-timestamp:signature. Any holder of a fresh token signed
// with the key passes; the bridge hands tokens only to the dashboard
// origin, which is what makes them meaningful.
type CSRFProtection struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewCSRFProtection creates a protector whose tokens live for ttl
func NewCSRFProtection(signingKey []byte, ttl time.Duration) *CSRFProtection {
	return &CSRFProtection{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Generate creates a new token
func (c *CSRFProtection) Generate() (string, error) {
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	data := nonce + ":" + strconv.FormatInt(c.now().Unix(), 10)
	return data + ":" + SignData(data, c.signingKey), nil
}

// Validate reports whether token was issued by this protector and has not
// expired. Tokens stamped in the future are rejected.
func (c *CSRFProtection) Validate(token string) bool {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 || parts[0] == "" {
		return false
	}

	timestamp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false
	}
	age := c.now().Sub(time.Unix(timestamp, 0))
	if age < -time.Minute || age > c.ttl {
		return false
	}

	return ValidateSignedData(parts[0]+":"+parts[1], parts[2], c.signingKey)
}
