// Package token encodes permit identities into compact signed strings
// suitable for QR rendering and decodes them back, accepting every format
// the application has ever issued.  The package does no I/O: callers are
// responsible for checking that a decoded permit still exists and is in an
// appropriate state before treating the scan as a real verification.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sentinel decode errors.  Callers branch with errors.Is to give the right
// user-facing feedback: a forged code, an expired one and an unreadable one
// each have a different remediation.
var (
	// ErrMalformed means no decoder recognized the input at all.
	ErrMalformed = errors.New("token malformed")
	// ErrInvalidSignature means the format was recognized but the
	// recomputed signature does not match, including truncated or
	// non-hex signature segments.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrExpired means the signature is authentic but the validity
	// window has elapsed.
	ErrExpired = errors.New("token expired")
)

const (
	// prefix marks the current delimited form.  Upper-case letters,
	// digits and ':' keep the payload inside the QR alphanumeric set;
	// base64's '+', '/' and '=' would force a denser byte-mode symbol.
	prefix = "SIMLOK"
	// sigLen is the number of hex characters kept from the HMAC-SHA256
	// digest.  64 bits of signature cannot be brute-forced online within
	// a 24h validity window, and the shorter token scans more reliably.
	sigLen = 16
	// expiryLeeway absorbs NTP-level clock drift between the instance
	// that encoded a token and the one decoding it.  The design still
	// assumes a single trusted clock source; this is drift tolerance,
	// not a grace period.
	expiryLeeway = 60 * time.Second
)

// errNotRecognized is returned by an individual decoder when the input is
// not in its format, telling the chain to try the next one.  It never
// escapes Decode.
var errNotRecognized = errors.New("format not recognized")

// Claims is the decoded content of a permit token.
type Claims struct {
	PermitID  uint64
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Authenticated is false for the bare-identifier fallback form,
	// which carries no signature and no expiry.  Callers must treat
	// unauthenticated claims as a hint, not proof.
	Authenticated bool
}

// Codec signs and validates permit tokens.  The decoder chain is ordered:
// current delimited form first, then the legacy base64url envelope, then
// the bare numeric fallback.  Adding a future format means appending a
// decoder, not touching the existing ones.
type Codec struct {
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	decoders []func(string) (*Claims, error)
}

// New returns a Codec signing with the given secret and validity window.
// An empty secret is refused outright: issuing unsigned permits is worse
// than not starting.
func New(secret string, ttl time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c := &Codec{secret: []byte(secret), ttl: ttl, now: time.Now}
	c.decoders = []func(string) (*Claims, error){
		c.decodeCurrent,
		c.decodeLegacy,
		c.decodeBare,
	}
	return c, nil
}

// TTL returns the validity window new tokens are issued with.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Encode produces the current delimited form:
// SIMLOK:<permitID>:<issuedAtMillis>:<signature>.
func (c *Codec) Encode(permitID uint64, issuedAt time.Time) string {
	millis := issuedAt.UTC().UnixMilli()
	return fmt.Sprintf("%s:%d:%d:%s", prefix, permitID, millis, c.sign(permitID, millis))
}

// EncodeLegacy produces the historical envelope form: base64url of
// "<permitID>|<issuedAtMillis>|<signature>".  Retained so operational
// tooling can regenerate codes for documents printed before the format
// change; new issuance always uses Encode.
func (c *Codec) EncodeLegacy(permitID uint64, issuedAt time.Time) string {
	millis := issuedAt.UTC().UnixMilli()
	inner := fmt.Sprintf("%d|%d|%s", permitID, millis, c.sign(permitID, millis))
	return base64.RawURLEncoding.EncodeToString([]byte(inner))
}

// Decode validates a scanned string against each known format in priority
// order.  On success the returned Claims carry the permit identity and
// window.  ErrExpired is returned together with the claims so callers can
// still report which permit expired; ErrInvalidSignature and ErrMalformed
// return nil claims.
func (c *Codec) Decode(tok string) (*Claims, error) {
	trimmed := strings.TrimSpace(tok)
	if trimmed == "" {
		return nil, ErrMalformed
	}
	for _, decode := range c.decoders {
		claims, err := decode(trimmed)
		if errors.Is(err, errNotRecognized) {
			continue
		}
		return claims, err
	}
	return nil, ErrMalformed
}

// decodeCurrent handles the SIMLOK:<id>:<millis>:<sig> form.
func (c *Codec) decodeCurrent(tok string) (*Claims, error) {
	parts := strings.Split(tok, ":")
	if len(parts) != 4 || parts[0] != prefix {
		return nil, errNotRecognized
	}
	return c.verify(parts[1], parts[2], parts[3])
}

// decodeLegacy handles the historical base64url envelope wrapping
// "<id>|<millis>|<sig>".
func (c *Codec) decodeLegacy(tok string) (*Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		// Older clients padded the encoding; accept that too.
		raw, err = base64.URLEncoding.DecodeString(tok)
		if err != nil {
			return nil, errNotRecognized
		}
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return nil, errNotRecognized
	}
	return c.verify(parts[0], parts[1], parts[2])
}

// decodeBare handles the fallback of a plain numeric permit id.  It is
// structurally valid but unauthenticated: no signature to check, no expiry
// to enforce.
func (c *Codec) decodeBare(tok string) (*Claims, error) {
	id, err := strconv.ParseUint(tok, 10, 64)
	if err != nil || id == 0 {
		return nil, errNotRecognized
	}
	return &Claims{PermitID: id, Authenticated: false}, nil
}

// verify parses the structured fields shared by the signed forms, checks
// the signature, then the validity window.  Signature first: a forged
// token with an old timestamp must report as forged, not expired.
func (c *Codec) verify(idStr, millisStr, sig string) (*Claims, error) {
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		return nil, ErrMalformed
	}
	millis, err := strconv.ParseInt(millisStr, 10, 64)
	if err != nil {
		return nil, ErrMalformed
	}
	want := c.sign(id, millis)
	// subtle.ConstantTimeCompare handles the length check itself: a
	// truncated or garbage signature segment compares unequal rather
	// than panicking or short-circuiting on length.
	if subtle.ConstantTimeCompare([]byte(want), []byte(sig)) != 1 {
		return nil, ErrInvalidSignature
	}
	issuedAt := time.UnixMilli(millis).UTC()
	claims := &Claims{
		PermitID:      id,
		IssuedAt:      issuedAt,
		ExpiresAt:     issuedAt.Add(c.ttl),
		Authenticated: true,
	}
	if c.now().After(claims.ExpiresAt.Add(expiryLeeway)) {
		return claims, ErrExpired
	}
	return claims, nil
}

// sign computes the truncated hex HMAC-SHA256 over the canonical
// "<id>:<millis>" representation.
func (c *Codec) sign(permitID uint64, millis int64) string {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprintf(mac, "%d:%d", permitID, millis)
	return hex.EncodeToString(mac.Sum(nil))[:sigLen]
}
