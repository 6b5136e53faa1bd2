package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	t.Parallel()

	a, b := GenerateID(), GenerateID()
	require.NotEqual(t, a, b)

	id, err := uuid.Parse(a)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), id.Version())
}

func TestConfigureLogger(t *testing.T) {
	require.NoError(t, ConfigureLogger(""))
	require.NoError(t, ConfigureLogger("info"))
	require.Error(t, ConfigureLogger("chatty"))
}

func TestResponses(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	decode := func(w *httptest.ResponseRecorder) map[string]any {
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	JSONResponse(c, http.StatusCreated, gin.H{"id": "a1"}, "created")
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, map[string]any{
		"status":  float64(201),
		"message": "created",
		"data":    map[string]any{"id": "a1"},
	}, decode(w))

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	JSONErrorWithDetails(c, http.StatusBadRequest, errors.New("too low"), "bid too low", gin.H{"current_price": "10"})
	body := decode(w)
	require.Equal(t, "too low", body["error"])
	require.Equal(t, map[string]any{"current_price": "10"}, body["details"])

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	AbortWithError(c, http.StatusUnauthorized, errors.New("no token"), "authentication required")
	require.True(t, c.IsAborted())
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotContains(t, decode(w), "data")
}
