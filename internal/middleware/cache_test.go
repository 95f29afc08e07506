package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmorodws/simlok2-sub012/internal/config"
)

func cacheTestContext(target string, uid interface{}) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/permits/:id")
	if uid != nil {
		c.Set("user_id", uid)
	}
	return c
}

func TestCacheKeyIncludesCallerIdentity(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}

	a := cacheKeyFrom(cfg, cacheTestContext("/v1/permits/7", float64(1)))
	b := cacheKeyFrom(cfg, cacheTestContext("/v1/permits/7", float64(2)))
	assert.NotEqual(t, a, b, "two callers must never share a cache entry")

	again := cacheKeyFrom(cfg, cacheTestContext("/v1/permits/7", float64(1)))
	assert.Equal(t, a, again, "same caller and request must hit the same key")
}

func TestCacheKeyVariesByQuery(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}

	a := cacheKeyFrom(cfg, cacheTestContext("/v1/permits/7?limit=10", float64(1)))
	b := cacheKeyFrom(cfg, cacheTestContext("/v1/permits/7?limit=20", float64(1)))
	assert.NotEqual(t, a, b)
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	body := []byte(`{"id":7}`)

	raw, err := encodePayload(http.StatusOK, hdr, body)
	require.NoError(t, err)

	status, gotHdr, gotBody, ok := decodePayload(raw)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, body, gotBody)
}

func TestCaptureWriterCompleteWithinLimit(t *testing.T) {
	cw := &captureWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK, limit: 16}
	_, err := cw.Write([]byte(`{"id":7}`))
	require.NoError(t, err)
	assert.True(t, cw.complete())
	assert.Equal(t, `{"id":7}`, cw.buf.String())
}

func TestCaptureWriterOversizedBodyIsNotStorable(t *testing.T) {
	cw := &captureWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK, limit: 8}
	_, err := cw.Write([]byte(`{"scans":[1,2`))
	require.NoError(t, err)
	_, err = cw.Write([]byte(`,3]}`))
	require.NoError(t, err)

	// The buffer holds a cut-off prefix; serving it from cache would
	// hand clients unparseable JSON.
	assert.False(t, cw.complete())
	assert.Less(t, cw.buf.Len(), len(`{"scans":[1,2,3]}`))
}

func TestCaptureWriterUnlimited(t *testing.T) {
	cw := &captureWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, err := cw.Write(make([]byte, 4096))
	require.NoError(t, err)
	assert.True(t, cw.complete())
	assert.Equal(t, 4096, cw.buf.Len())
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	_, _, _, ok := decodePayload([]byte("short"))
	assert.False(t, ok)

	// A header length pointing past the buffer must not panic.
	raw, err := encodePayload(http.StatusOK, http.Header{}, nil)
	require.NoError(t, err)
	raw[7] = 0xFF
	_, _, _, ok = decodePayload(raw)
	assert.False(t, ok)
}
