package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSigner(secret string, ttl time.Duration, at time.Time) *DownloadSigner {
	s := NewDownloadSigner(secret, ttl)
	s.now = func() time.Time { return at }
	return s
}

func TestDownloadSignerRoundTrip(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("upload", "content/app-1/clip.mp4")
	require.NoError(t, err)
	require.False(t, expiresAt.IsZero())

	owner, path, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "upload", owner)
	assert.Equal(t, "content/app-1/clip.mp4", path)
	assert.True(t, expiresAt.Equal(parsedExpiry))
}

func TestDownloadSignerExpired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, _, err := fixedSigner("secret", time.Minute, issued).Generate("export", "exports/a.csv")
	require.NoError(t, err)

	later := fixedSigner("secret", time.Minute, issued.Add(2*time.Minute))
	_, _, _, err = later.Parse(token, false)
	require.ErrorIs(t, err, ErrTokenExpired)

	owner, path, _, err := later.Parse(token, true)
	require.NoError(t, err)
	assert.Equal(t, "export", owner)
	assert.Equal(t, "exports/a.csv", path)
}

func TestDownloadSignerRejectsForgeries(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	first, _, err := signer.Generate("upload", "content/a.mp4")
	require.NoError(t, err)
	second, _, err := signer.Generate("upload", "content/b.mp4")
	require.NoError(t, err)

	_, _, _, err = NewDownloadSigner("other", time.Hour).Parse(first, false)
	assert.ErrorIs(t, err, ErrInvalidToken)

	a, b := strings.Split(first, "."), strings.Split(second, ".")
	spliced := strings.Join([]string{a[0], b[1], a[2]}, ".")
	_, _, _, err = signer.Parse(spliced, false)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, _, err = signer.Parse("garbage", false)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDownloadSignerRejectsAccessTokens(t *testing.T) {
	access := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		Audience:  jwt.ClaimStrings{"ambassador-api"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := access.SignedString([]byte("secret"))
	require.NoError(t, err)

	signer := NewDownloadSigner("secret", time.Hour)
	_, _, _, err = signer.Parse(token, false)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, _, _, err = signer.Parse(token, true)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
