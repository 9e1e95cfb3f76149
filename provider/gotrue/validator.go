package gotrue

import (
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-union"
)

// Claims are the access token claims issued by the backend.
type Claims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
}

// TokenValidator checks access tokens against the JWT secret or the
// published signing keys.
type TokenValidator struct {
	secret []byte
	jwks   *keyfunc.JWKS
	now    func() time.Time
}

// NewTokenValidator builds a validator from cfg. A JWKS endpoint is
// fetched once here and refreshed in the background.
func NewTokenValidator(cfg Config) (*TokenValidator, error) {
	v := &TokenValidator{now: time.Now}
	if cfg.JWTSecret != "" {
		v.secret = []byte(cfg.JWTSecret)
	}

	if url := cfg.jwksURL(); url != "" {
		jwks, err := keyfunc.Get(url, keyfunc.Options{
			Client: cfg.client(),
			RefreshErrorHandler: func(err error) {
				log.Printf("gotrue: failed to refresh signing keys: %s", err)
			},
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    10 * time.Second,
			RefreshUnknownKID: true,
		})
		if err != nil {
			return nil, fmt.Errorf("gotrue: failed to load signing keys: %w", err)
		}
		v.jwks = jwks
	}

	if v.secret == nil && v.jwks == nil {
		return nil, fmt.Errorf("gotrue: a JWT secret or JWKS URL is required")
	}
	return v, nil
}

// Close stops the background key refresh.
func (v *TokenValidator) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// Validate parses token and returns its claims.
func (v *TokenValidator) Validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, v.keyFunc,
		jwt.WithTimeFunc(v.now),
		jwt.WithValidMethods([]string{"HS256", "RS256", "ES256"}),
	)
	if err != nil {
		clone := union.ErrNoSession.Clone()
		clone.Source = err
		reason := "malformed"
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			reason = "expired"
		}
		return nil, clone.WithMetadata(map[string]any{
			"provider": "gotrue",
			"reason":   reason,
		})
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, union.ErrNoSession.Clone().WithMetadata(map[string]any{
			"provider": "gotrue",
			"reason":   "malformed",
		})
	}
	return claims, nil
}

func (v *TokenValidator) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); ok {
		if v.secret == nil {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}
	if v.jwks == nil {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return v.jwks.Keyfunc(t)
}
