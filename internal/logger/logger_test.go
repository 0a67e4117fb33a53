package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	httpmiddleware "github.com/wolfeidau/invoicer/internal/http"
)

func TestHTTPRequests_Middleware(t *testing.T) {
	var buf bytes.Buffer
	requests := NewHTTPRequests(zerolog.New(&buf))

	var hasLogger bool
	handler := httpmiddleware.RequestMetaMiddleware()(requests.Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasLogger = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("short and stout"))
		}),
	))

	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r.Header.Set("X-Real-IP", "192.0.2.10")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.True(t, hasLogger)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "http request", entry["message"])
	require.Equal(t, "GET", entry["method"])
	require.Equal(t, "/api/health", entry["path"])
	require.Equal(t, "192.0.2.10", entry["addr"])
	require.Equal(t, w.Header().Get(httpmiddleware.RequestIDHeader), entry["request_id"])
	require.EqualValues(t, http.StatusTeapot, entry["status"])
	require.EqualValues(t, len("short and stout"), entry["bytes"])
}

func TestHTTPRequests_ServerErrorsLogAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	requests := NewHTTPRequests(zerolog.New(&buf))

	handler := requests.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "error", entry["level"])
}
