package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Middleware(secret), func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	valid, err := IssueToken(secret, "alice", time.Hour)
	require.NoError(t, err)

	expired, err := IssueToken(secret, "alice", -time.Minute)
	require.NoError(t, err)

	otherKey, err := IssueToken([]byte("other"), "alice", time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}).SignedString(secret)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectedBody   string
	}{
		{name: "valid_token", header: "Bearer " + valid, expectedStatus: http.StatusOK, expectedBody: "alice"},
		{name: "lowercase_scheme", header: "bearer " + valid, expectedStatus: http.StatusOK, expectedBody: "alice"},
		{name: "missing_header", header: "", expectedStatus: http.StatusUnauthorized},
		{name: "wrong_scheme", header: "Basic " + valid, expectedStatus: http.StatusUnauthorized},
		{name: "garbage_token", header: "Bearer not-a-jwt", expectedStatus: http.StatusUnauthorized},
		{name: "expired_token", header: "Bearer " + expired, expectedStatus: http.StatusUnauthorized},
		{name: "wrong_key", header: "Bearer " + otherKey, expectedStatus: http.StatusUnauthorized},
		{name: "no_expiry", header: "Bearer " + noExpiry, expectedStatus: http.StatusUnauthorized},
		{name: "no_subject", header: "Bearer " + noSubject, expectedStatus: http.StatusUnauthorized},
		{name: "alg_none", header: "Bearer " + unsigned, expectedStatus: http.StatusUnauthorized},
	}

	router := newAuthRouter()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)
			if tc.expectedStatus == http.StatusOK {
				require.Equal(t, tc.expectedBody, w.Body.String())
				return
			}

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Equal(t, float64(http.StatusUnauthorized), resp["status"])
			require.Equal(t, "Authentication required", resp["message"])
		})
	}
}

func TestIssueToken_RejectsEmptyUser(t *testing.T) {
	t.Parallel()

	_, err := IssueToken(secret, "", time.Hour)
	require.Error(t, err)
}
