package creds

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/2beens/gymsheets/internal/middleware"

	"github.com/go-redis/redis_rate/v9"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Get(t *testing.T) {
	handler := NewHandler(Credentials{
		ClientID: "client-id-1",
		APIKey:   "api-key-1",
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/credentials", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var creds Credentials
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &creds))
	assert.Equal(t, "client-id-1", creds.ClientID)
	assert.Equal(t, "api-key-1", creds.APIKey)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	handler := NewHandler(Credentials{ClientID: "client-id-1"})

	for _, method := range []string{
		http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead,
	} {
		t.Run(method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(method, "/credentials", nil))
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Allow"))
		})
	}
}

func TestHandler_Options(t *testing.T) {
	handler := NewHandler(Credentials{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/credentials", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandler_RateLimited(t *testing.T) {
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() {
		_ = db.Close()
	})
	mock.Regexp().ExpectEvalSha(".*", []string{"rate:credentials"}, ".*", ".*", ".*", ".*").
		SetVal([]interface{}{int64(0), int64(0), "60", "60"})

	limiter := redis_rate.NewLimiter(db)
	handler := middleware.RateLimit(limiter, "credentials", 30)(
		NewHandler(Credentials{ClientID: "client-id-1"}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/credentials", nil))
	assert.Equal(t, http.StatusTooEarly, rec.Code)
}

func TestHandler_RateLimitAllows(t *testing.T) {
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() {
		_ = db.Close()
	})
	mock.Regexp().ExpectEvalSha(".*", []string{"rate:credentials"}, ".*", ".*", ".*", ".*").
		SetVal([]interface{}{int64(1), int64(29), "-1", "-1"})

	limiter := redis_rate.NewLimiter(db)
	handler := middleware.RateLimit(limiter, "credentials", 30)(
		NewHandler(Credentials{ClientID: "client-id-1"}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/credentials", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
