// Package auth validates bearer tokens issued by the operator's identity
// provider. Keys are fetched from its JWKS endpoint.
package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

var (
	ErrMissingToken = errors.New("authorization required")
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier checks tokens against one issuer. The JWKS is fetched once and
// refreshed in the background by keyfunc.
type Verifier struct {
	issuer  string
	keyfunc jwt.Keyfunc
}

// NewVerifier builds a Verifier for baseURL (AUTH_BASE_URL). The JWKS lives at
// <baseURL>/.well-known/jwks.json and the expected issuer is the URL's origin.
func NewVerifier(baseURL string) (*Verifier, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("auth base URL is not set")
	}
	issuer, err := issuerOf(baseURL)
	if err != nil {
		return nil, err
	}
	jwks, err := keyfunc.NewDefault([]string{strings.TrimRight(baseURL, "/") + "/.well-known/jwks.json"})
	if err != nil {
		return nil, fmt.Errorf("loading JWKS: %w", err)
	}
	return &Verifier{issuer: issuer, keyfunc: jwks.Keyfunc}, nil
}

func issuerOf(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", baseURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Validate parses tokenString and returns its claims.
func (v *Verifier) Validate(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, v.keyfunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{"EdDSA", "RS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// FromHeader validates an Authorization header value and returns the caller's id.
func (v *Verifier) FromHeader(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMissingToken
	}
	claims, err := v.Validate(strings.TrimSpace(header[len(bearerPrefix):]))
	if err != nil {
		return "", err
	}
	id := SubjectFromClaims(claims)
	if id == "" {
		return "", ErrInvalidToken
	}
	return id, nil
}

// SubjectFromClaims returns the caller id from claims ("sub" or "id").
func SubjectFromClaims(claims jwt.MapClaims) string {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id
	}
	return ""
}
