// Package tokeninfo reads display hints out of an auth token without
// verifying it. The portal treats tokens as opaque credentials; when one
// happens to be a JWT its claims are only used to tell the user who is signed
// in and when the session lapses.
package tokeninfo

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrExpired is returned by Inspect when the token carries an exp claim in the past.
var ErrExpired = errors.New("tokeninfo: token expired")

// ErrEmpty is returned for blank tokens.
var ErrEmpty = errors.New("tokeninfo: empty token")

// Info is the unverified view of a token.
type Info struct {
	Subject   string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Opaque is set when the token is not a JWT; all other fields are then zero.
	Opaque bool
}

// HasExpiry reports whether the token declared an expiry.
func (i Info) HasExpiry() bool {
	return !i.ExpiresAt.IsZero()
}

// Remaining returns the time left until expiry, or zero when there is none.
func (i Info) Remaining(now time.Time) time.Duration {
	if !i.HasExpiry() {
		return 0
	}
	if d := i.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Inspect decodes token. Info is returned alongside ErrExpired so callers can
// still show who the token belonged to.
func Inspect(token string, now time.Time) (Info, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Info{}, ErrEmpty
	}
	if strings.Count(token, ".") != 2 {
		return Info{Opaque: true}, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Info{Opaque: true}, nil
	}

	info := Info{
		Subject:   firstString(claims, "sub", "id", "userId", "_id"),
		Email:     firstString(claims, "email"),
		IssuedAt:  numericTime(claims["iat"]),
		ExpiresAt: numericTime(claims["exp"]),
	}
	if info.HasExpiry() && !now.Before(info.ExpiresAt) {
		return info, fmt.Errorf("%w at %s", ErrExpired, info.ExpiresAt.Format(time.RFC3339))
	}
	return info, nil
}

func firstString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func numericTime(raw any) time.Time {
	value, ok := raw.(float64)
	if !ok || value <= 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return time.Time{}
	}
	sec, frac := math.Modf(value)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
