package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestGetUserID(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  uint64
	}{
		// JWT claims arrive as float64 after JSON parsing; other types
		// cover tokens minted by internal tooling.
		{"float64 claim", float64(42), 42},
		{"string claim", "42", 42},
		{"uint64", uint64(42), 42},
		{"int", 42, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testContext(t)
			c.Set("user_id", tt.value)
			got, err := getUserID(c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetUserIDMissing(t *testing.T) {
	c := testContext(t)
	_, err := getUserID(c)
	assert.Error(t, err)

	c.Set("user_id", "not-a-number")
	_, err = getUserID(c)
	assert.Error(t, err)
}

func TestGetRole(t *testing.T) {
	c := testContext(t)
	c.Set("role", "VERIFIER")
	role, err := getRole(c)
	require.NoError(t, err)
	assert.Equal(t, "VERIFIER", role)
}

func TestGetRoleMissing(t *testing.T) {
	c := testContext(t)
	_, err := getRole(c)
	assert.Error(t, err)

	c.Set("role", "")
	_, err = getRole(c)
	assert.Error(t, err)
}
