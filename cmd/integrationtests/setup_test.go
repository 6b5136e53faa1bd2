package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/auth"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/lifecycle"
	"auction-engine/internal/live"
	"auction-engine/internal/metrics"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var (
	testSecret = []byte("integration-secret")
	testStart  = time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)
)

// testApp is the full HTTP stack over an in-memory repository and a fake clock
type testApp struct {
	router   *gin.Engine
	clock    *clockwork.FakeClock
	registry *prometheus.Registry
}

// SetupTestApp initializes the router with in-memory repository for integration testing.
func SetupTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo().WithMaxRetries(10_000)
	clock := clockwork.NewFakeClockAt(testStart)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hub := live.NewHub()
	t.Cleanup(hub.Close)

	manager := lifecycle.NewManager(repo, clock, lifecycle.WithPublisher(hub), lifecycle.WithMetrics(m))
	engine := bidding.NewBiddingService(repo, manager, clock, bidding.WithPublisher(hub), bidding.WithMetrics(m))

	router := server.SetupRouter(server.RouterConfig{
		Manager:   manager,
		Engine:    engine,
		Live:      hub,
		JWTSecret: testSecret,
		Metrics:   m,
		Gatherer:  reg,
	})
	return &testApp{router: router, clock: clock, registry: reg}
}

// Token issues a bearer token for userID
func Token(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueToken(testSecret, userID, time.Hour)
	require.NoError(t, err)
	return token
}

// Response is the decoded JSON envelope
type Response struct {
	Status  int            `json:"status"`
	Message string         `json:"message"`
	Data    any            `json:"data"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details"`
}

// DataMap returns the data field as an object
func (r Response) DataMap(t *testing.T) map[string]any {
	t.Helper()
	m, ok := r.Data.(map[string]any)
	require.True(t, ok, "data is not an object: %#v", r.Data)
	return m
}

// DataList returns the data field as an array
func (r Response) DataList(t *testing.T) []any {
	t.Helper()
	l, ok := r.Data.([]any)
	require.True(t, ok, "data is not an array: %#v", r.Data)
	return l
}

// Do executes an HTTP request on the router as userID ("" for anonymous) and parses the response
func (a *testApp) Do(t *testing.T, method, url, userID string, body any) (Response, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err, "failed to marshal body")
	}

	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+Token(t, userID))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp Response
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	}
	return resp, w
}

// CreateAuction creates an auction owned by ownerID and returns its id
func (a *testApp) CreateAuction(t *testing.T, ownerID string, startingPrice any, endsIn time.Duration) string {
	t.Helper()
	resp, w := a.Do(t, "POST", "/auctions", ownerID, map[string]any{
		"title":            "Vintage camera",
		"description":      "Rangefinder, 1960s",
		"starting_price":   startingPrice,
		"auction_end_time": a.clock.Now().Add(endsIn).Format(time.RFC3339Nano),
	})
	require.Equal(t, 201, w.Code, w.Body.String())

	id, _ := resp.DataMap(t)["auction_id"].(string)
	require.NotEmpty(t, id)
	return id
}

// raw executes a request with an explicit Authorization header and returns the recorder only
func (a *testApp) raw(t *testing.T, method, url, authorization string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}
