package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID string
	Device string
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to mobile clients. The
// user id rides in the registered subject claim.
type AccessTokenClaims struct {
	Device string `json:"device,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *AccessTokenClaims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
