package gotrue

import (
	"net/http"
	"strings"
	"time"
)

// Config holds the hosted auth backend settings.
type Config struct {
	// URL is the project URL, e.g. "https://abc.supabase.co".
	URL string

	// AnonKey is the publishable key sent as the apikey header.
	AnonKey string

	// JWTSecret validates legacy HS256 access tokens (optional).
	JWTSecret string

	// JWKSURL overrides the signing keys endpoint.
	// Default: "{URL}/auth/v1/.well-known/jwks.json" when JWTSecret is empty.
	JWKSURL string

	// Timeout bounds each request.
	// Default: 10 seconds.
	Timeout time.Duration

	// HTTPClient replaces the default client (optional).
	HTTPClient *http.Client
}

func (c Config) authURL(path string) string {
	base := strings.TrimSuffix(strings.TrimSpace(c.URL), "/")
	return base + "/auth/v1" + path
}

func (c Config) jwksURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	if c.JWTSecret != "" {
		return ""
	}
	return c.authURL("/.well-known/jwks.json")
}

func (c Config) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
