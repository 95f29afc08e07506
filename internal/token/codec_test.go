package token

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func testCodec(t *testing.T, ttl time.Duration) *Codec {
	t.Helper()
	c, err := New(testSecret, ttl)
	require.NoError(t, err)
	return c
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New("", time.Hour)
	require.Error(t, err)
}

func TestNewDefaultsTTL(t *testing.T) {
	c := testCodec(t, 0)
	assert.Equal(t, 24*time.Hour, c.TTL())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := testCodec(t, 24*time.Hour)
	issued := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	tok := c.Encode(42, issued)
	assert.True(t, strings.HasPrefix(tok, "SIMLOK:42:"))

	c.now = func() time.Time { return issued.Add(time.Hour) }
	claims, err := c.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.PermitID)
	assert.True(t, claims.Authenticated)
	assert.Equal(t, issued, claims.IssuedAt)
	assert.Equal(t, issued.Add(24*time.Hour), claims.ExpiresAt)
}

func TestDecodeLegacyRoundTrip(t *testing.T) {
	c := testCodec(t, 24*time.Hour)
	issued := time.Now().UTC()

	tok := c.EncodeLegacy(7, issued)
	claims, err := c.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.PermitID)
	assert.True(t, claims.Authenticated)
}

func TestDecodeLegacyPadded(t *testing.T) {
	c := testCodec(t, 24*time.Hour)
	issued := time.Now().UTC()
	millis := issued.UnixMilli()

	inner := fmt.Sprintf("%d|%d|%s", uint64(9), millis, c.sign(9, millis))
	padded := base64.URLEncoding.EncodeToString([]byte(inner))

	claims, err := c.Decode(padded)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), claims.PermitID)
}

func TestDecodeBareFallback(t *testing.T) {
	c := testCodec(t, 24*time.Hour)

	claims, err := c.Decode("1234")
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), claims.PermitID)
	assert.False(t, claims.Authenticated, "bare form carries no signature")
	assert.True(t, claims.ExpiresAt.IsZero(), "bare form has no validity window")
}

func TestDecodeMalformed(t *testing.T) {
	c := testCodec(t, 24*time.Hour)

	for _, tok := range []string{
		"",
		"   ",
		"0",
		"SIMLOK:1:2",
		"SIMLOK:abc:1700000000000:0123456789abcdef",
		"not/base64/at all!",
	} {
		_, err := c.Decode(tok)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", tok)
	}
}

func TestDecodeTamperedSignature(t *testing.T) {
	c := testCodec(t, 24*time.Hour)
	tok := c.Encode(42, time.Now().UTC())

	// Flip the last signature character.
	last := tok[len(tok)-1]
	flip := byte('0')
	if last == '0' {
		flip = '1'
	}
	tampered := tok[:len(tok)-1] + string(flip)

	claims, err := c.Decode(tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Nil(t, claims)
}

func TestDecodeTamperedPermitID(t *testing.T) {
	c := testCodec(t, 24*time.Hour)
	tok := c.Encode(42, time.Now().UTC())

	// Rewriting the id without re-signing must read as forgery.
	tampered := strings.Replace(tok, ":42:", ":43:", 1)
	_, err := c.Decode(tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecodeTruncatedSignature(t *testing.T) {
	c := testCodec(t, 24*time.Hour)
	tok := c.Encode(42, time.Now().UTC())

	_, err := c.Decode(tok[:len(tok)-4])
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecodeExpired(t *testing.T) {
	c := testCodec(t, time.Hour)
	issued := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	tok := c.Encode(55, issued)

	c.now = func() time.Time { return issued.Add(time.Hour + expiryLeeway + time.Second) }
	claims, err := c.Decode(tok)
	assert.ErrorIs(t, err, ErrExpired)
	// Claims survive expiry so callers can report which permit went stale.
	require.NotNil(t, claims)
	assert.Equal(t, uint64(55), claims.PermitID)
}

func TestDecodeWithinLeeway(t *testing.T) {
	c := testCodec(t, time.Hour)
	issued := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	tok := c.Encode(55, issued)

	// Just inside the drift allowance past nominal expiry.
	c.now = func() time.Time { return issued.Add(time.Hour + expiryLeeway - time.Second) }
	_, err := c.Decode(tok)
	assert.NoError(t, err)
}

func TestSignatureShape(t *testing.T) {
	c := testCodec(t, time.Hour)
	sig := c.sign(42, 1700000000000)
	assert.Len(t, sig, sigLen)
	assert.Regexp(t, "^[0-9a-f]+$", sig)
}

func TestDecoderChainPrefersCurrentForm(t *testing.T) {
	c := testCodec(t, 24*time.Hour)
	issued := time.Now().UTC()

	// The current form must never be mistaken for base64 or a bare id.
	current := c.Encode(42, issued)
	claims, err := c.Decode(current)
	require.NoError(t, err)
	assert.True(t, claims.Authenticated)

	// A forged current-form token must fail as a forgery, not fall
	// through to a later decoder.
	forged := fmt.Sprintf("SIMLOK:42:%d:%016x", issued.UnixMilli(), 0)
	_, err = c.Decode(forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
