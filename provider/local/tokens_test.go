package local_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-union"
	"github.com/goliatone/go-union/provider/local"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	clk := newClock()
	ts := local.NewTokenService([]byte("key"), "union", time.Hour, 24*time.Hour, clk.Now)
	user := &local.User{ID: uuid.New(), Email: "ravi@example.com"}

	access, refresh, expires, err := ts.Issue(user)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(time.Hour), expires)

	claims, err := ts.Parse(access, local.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, "ravi@example.com", claims.Email)
	assert.Equal(t, clk.Now().UnixMicro(), claims.Issued)

	_, err = ts.Parse(refresh, local.KindRefresh)
	require.NoError(t, err)

	_, err = ts.Parse(refresh, local.KindAccess)
	assert.True(t, union.HasTextCode(err, union.TextCodeNoSession))
}

func TestTokenServiceRejectsForeignTokens(t *testing.T) {
	clk := newClock()
	ts := local.NewTokenService([]byte("key"), "union", time.Hour, time.Hour, clk.Now)
	user := &local.User{ID: uuid.New()}

	other := local.NewTokenService([]byte("other-key"), "union", time.Hour, time.Hour, clk.Now)
	forged, _, _, err := other.Issue(user)
	require.NoError(t, err)
	_, err = ts.Parse(forged, local.KindAccess)
	assert.True(t, union.HasTextCode(err, union.TextCodeNoSession))

	wrongIssuer := local.NewTokenService([]byte("key"), "someone-else", time.Hour, time.Hour, clk.Now)
	token, _, _, err := wrongIssuer.Issue(user)
	require.NoError(t, err)
	_, err = ts.Parse(token, local.KindAccess)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": user.ID.String(), "kind": "access"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ts.Parse(unsigned, local.KindAccess)
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	hash, err := local.HashPassword("secret123", 4)
	require.NoError(t, err)
	require.NoError(t, local.ComparePasswordAndHash("secret123", hash))

	err = local.ComparePasswordAndHash("secret124", hash)
	assert.True(t, union.HasTextCode(err, union.TextCodeInvalidCredentials))

	_, err = local.HashPassword("123", 4)
	assert.True(t, union.HasTextCode(err, union.TextCodeWeakPassword))
}
