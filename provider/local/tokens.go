package local

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-union"
	"github.com/google/uuid"
)

// Token kinds.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims are carried by local access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email  string `json:"email,omitempty"`
	Kind   string `json:"kind"`
	Issued int64  `json:"ius"`
}

// TokenService signs and parses HS256 session tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a token service.
func NewTokenService(signingKey []byte, issuer string, accessTTL, refreshTTL time.Duration, now func() time.Time) *TokenService {
	if now == nil {
		now = time.Now
	}
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
	}
}

// Issue returns a signed access token, a signed refresh token and the
// access token expiry.
func (ts *TokenService) Issue(user *User) (access, refresh string, expires time.Time, err error) {
	now := ts.now()
	expires = now.Add(ts.accessTTL)

	access, err = ts.sign(user, KindAccess, now, expires)
	if err != nil {
		return "", "", time.Time{}, err
	}
	refresh, err = ts.sign(user, KindRefresh, now, now.Add(ts.refreshTTL))
	if err != nil {
		return "", "", time.Time{}, err
	}
	return access, refresh, expires, nil
}

func (ts *TokenService) sign(user *User, kind string, now, expires time.Time) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email:  user.Email,
		Kind:   kind,
		Issued: now.UnixMicro(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Parse validates token and checks it is of the expected kind.
func (ts *TokenService) Parse(token, kind string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, opts...)
	if err != nil {
		reason := "malformed"
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			reason = "expired"
		}
		return nil, noSession(reason, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, noSession("malformed", nil)
	}
	if claims.Kind != kind {
		return nil, noSession("wrong token kind", nil)
	}
	return claims, nil
}

func noSession(reason string, source error) error {
	err := union.ErrNoSession.Clone().WithMetadata(map[string]any{
		"reason": reason,
	})
	if source != nil {
		err.Source = source
	}
	return err
}
