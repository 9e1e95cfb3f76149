package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-union"
)

// DefaultCSRFHeader carries the token on state changing requests.
const DefaultCSRFHeader = "X-CSRF-Token"

// TextCodeCSRFTokenInvalid marks a missing, forged or expired token.
const TextCodeCSRFTokenInvalid = "CSRF_TOKEN_INVALID"

// ErrCSRFTokenInvalid is returned when a cookie authenticated request does
// not carry a valid token.
var ErrCSRFTokenInvalid = goerrors.New("invalid or missing CSRF token", goerrors.CategoryAuthz).
	WithTextCode(TextCodeCSRFTokenInvalid).
	WithCode(goerrors.CodeForbidden)

// CSRF issues stateless tokens bound to the session cookie and checks
// them on unsafe requests. A token is the issue time plus an HMAC over
// that time and a digest of the session token.
type CSRF struct {
	key          []byte
	cookieName   string
	header       string
	ttl          time.Duration
	now          func() time.Time
	ErrorHandler func(router.Context, error) error
}

// CSRFOption customizes CSRF.
type CSRFOption func(*CSRF)

// WithCSRFCookieName sets the session cookie the tokens are bound to.
func WithCSRFCookieName(name string) CSRFOption {
	return func(c *CSRF) {
		if name != "" {
			c.cookieName = name
		}
	}
}

// WithCSRFHeader sets the request header checked for the token.
func WithCSRFHeader(header string) CSRFOption {
	return func(c *CSRF) {
		if header != "" {
			c.header = header
		}
	}
}

// WithCSRFExpiration sets how long a token is accepted.
func WithCSRFExpiration(ttl time.Duration) CSRFOption {
	return func(c *CSRF) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCSRFClock injects a clock.
func WithCSRFClock(now func() time.Time) CSRFOption {
	return func(c *CSRF) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCSRF returns a CSRF guard signing with key.
func NewCSRF(key []byte, opts ...CSRFOption) *CSRF {
	c := &CSRF{
		key:          key,
		cookieName:   DefaultCookieName,
		header:       DefaultCSRFHeader,
		ttl:          12 * time.Hour,
		now:          time.Now,
		ErrorHandler: defaultErrHandler,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Issue returns a token for the given session token.
func (c *CSRF) Issue(sessionToken string) string {
	issued := strconv.FormatInt(c.now().UTC().Unix(), 10)
	sig := c.sign(issued, sessionToken)
	return base64.RawURLEncoding.EncodeToString([]byte(issued + ":" + hex.EncodeToString(sig)))
}

// Verify checks token against the session token.
func (c *CSRF) Verify(sessionToken, token string) error {
	if token == "" || sessionToken == "" {
		return ErrCSRFTokenInvalid
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrCSRFTokenInvalid
	}

	issued, sigHex, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return ErrCSRFTokenInvalid
	}

	sig, err := hex.DecodeString(sigHex)
	if err != nil || !hmac.Equal(sig, c.sign(issued, sessionToken)) {
		return ErrCSRFTokenInvalid
	}

	ts, err := strconv.ParseInt(issued, 10, 64)
	if err != nil {
		return ErrCSRFTokenInvalid
	}
	if c.now().UTC().After(time.Unix(ts, 0).Add(c.ttl)) {
		return ErrCSRFTokenInvalid.Clone().WithMetadata(map[string]any{"expired": true})
	}

	return nil
}

// Middleware rejects unsafe requests that carry the session cookie but
// no valid token. Requests without the cookie pass: they act on no
// session.
func (c *CSRF) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			switch strings.ToUpper(ctx.Method()) {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(ctx)
			}

			session := ctx.Cookies(c.cookieName)
			if session == "" {
				return next(ctx)
			}

			if err := c.Verify(session, ctx.GetString(c.header, "")); err != nil {
				return c.ErrorHandler(ctx, err)
			}
			return next(ctx)
		}
	}
}

// Protect wraps a single handler with the token check.
func (c *CSRF) Protect(handler router.HandlerFunc) router.HandlerFunc {
	return c.Middleware()(handler)
}

// TokenHandler answers with a token for the current session cookie.
func (c *CSRF) TokenHandler(ctx router.Context) error {
	session := ctx.Cookies(c.cookieName)
	if session == "" {
		return c.ErrorHandler(ctx, union.ErrNoSession)
	}
	return ctx.JSON(http.StatusOK, map[string]string{
		"token":  c.Issue(session),
		"header": c.header,
	})
}

func (c *CSRF) sign(issued, sessionToken string) []byte {
	digest := sha256.Sum256([]byte(sessionToken))
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(issued))
	mac.Write([]byte{':'})
	mac.Write(digest[:])
	return mac.Sum(nil)
}
