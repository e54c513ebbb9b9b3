// Package session signs and verifies the dashboard session cookie.
package session

import (
	"time"

	"github.com/gorilla/securecookie"
)

// CookieName is the name of the session cookie.
const CookieName = "session"

// MaxAge is how long an issued session stays valid.
const MaxAge = 7 * 24 * time.Hour

type payload struct {
	Username string
}

// Codec encodes the signed-in username into a tamper-proof cookie value.
type Codec struct {
	sc *securecookie.SecureCookie
}

// NewCodec builds a Codec. blockKey may be empty to sign without encrypting.
func NewCodec(hashKey, blockKey []byte) *Codec {
	if len(blockKey) == 0 {
		blockKey = nil
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(MaxAge / time.Second))
	return &Codec{sc: sc}
}

// Issue returns the cookie value for username.
func (c *Codec) Issue(username string) (string, error) {
	return c.sc.Encode(CookieName, payload{Username: username})
}

// Parse verifies value and returns the username it was issued for.
func (c *Codec) Parse(value string) (string, error) {
	var p payload
	if err := c.sc.Decode(CookieName, value, &p); err != nil {
		return "", err
	}
	return p.Username, nil
}
