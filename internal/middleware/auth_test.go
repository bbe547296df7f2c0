package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)

	token, err := m.GenerateToken("acct-1", "test@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, "test@example.com", claims.Email)
}

func TestParseTokenRejects(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)

	expired, err := NewTokenManager("test-secret", -time.Minute).GenerateToken("acct-1", "a@b.c")
	require.NoError(t, err)

	otherSecret, err := NewTokenManager("other-secret", time.Hour).GenerateToken("acct-1", "a@b.c")
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{AccountID: "acct-1"}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		AccountID:        "acct-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"other secret": otherSecret,
		"no expiry":    noExpiry,
		"wrong alg":    wrongAlg,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.ParseToken(token)
			assert.Error(t, err)
		})
	}
}

func TestJWTAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewTokenManager("test-secret", time.Hour)

	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Missing authorization header",
			header:         "",
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "No token provided",
		},
		{
			name:           "Invalid token format",
			header:         "InvalidToken",
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Invalid authorization format",
		},
		{
			name:           "Invalid token",
			header:         "Bearer abc.def.ghi",
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Invalid token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			c.Request = req

			m.JWTAuth()(c)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, `{"success":false,"error":"`+tt.expectedError+`"}`, w.Body.String())
			assert.True(t, c.IsAborted())
		})
	}
}

func TestJWTAuthWithValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewTokenManager("test-secret", time.Hour)

	token, err := m.GenerateToken("acct-1", "test@example.com")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/test", m.JWTAuth(), func(c *gin.Context) {
		accountID, ok := GetAccountID(c)
		assert.True(t, ok)
		assert.Equal(t, "acct-1", accountID)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetAccountIDMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetAccountID(c)
	assert.False(t, ok)
}
