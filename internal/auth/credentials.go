package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/connectcg/friendsync/internal/middleware"
)

var (
	// ErrMissingToken indicates no access token was configured.
	ErrMissingToken = errors.New("access token not configured")
	// ErrTokenExpired indicates the access token's exp claim is in the past.
	ErrTokenExpired = errors.New("access token expired")
)

// Claims are the access token claims the client cares about.
type Claims struct {
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Credentials is the bearer identity of the logged-in viewer.
type Credentials struct {
	AccessToken string
	UserID      string
	Username    string
	ExpiresAt   time.Time
}

// ParseAccessToken extracts the viewer identity from a JWT access token.
// The signature is not verified: the backend remains the authority and the
// client only needs to know who "self" is.
func ParseAccessToken(token string) (Credentials, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Credentials{}, ErrMissingToken
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Credentials{}, fmt.Errorf("parse access token: %w", err)
	}

	creds := Credentials{AccessToken: token, UserID: claims.UserID, Username: claims.Username}
	if creds.UserID == "" {
		creds.UserID = claims.Subject
	}
	if claims.ExpiresAt != nil {
		creds.ExpiresAt = claims.ExpiresAt.Time
	}
	return creds, nil
}

// Expired reports whether the token has passed its expiry at now.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// IsSelf reports whether subjectID names the viewer.
func (c Credentials) IsSelf(subjectID string) bool {
	return c.UserID != "" && c.UserID == subjectID
}

// Bearer attaches the access token to every outbound request. Requests are
// refused locally once the token is known to be expired.
func Bearer(creds Credentials, now func() time.Time) middleware.Middleware {
	if now == nil {
		now = time.Now
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return middleware.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if creds.AccessToken == "" {
				return next.RoundTrip(r)
			}
			if creds.Expired(now()) {
				return nil, ErrTokenExpired
			}
			r = r.Clone(r.Context())
			r.Header.Set("Authorization", "Bearer "+creds.AccessToken)
			return next.RoundTrip(r)
		})
	}
}
