package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-engine/logging"
)

func TestNewWithWriter_JSONAndLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logging.NewWithWriter(buf, "warn", "json")

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, "warn", line["level"])
	assert.Contains(t, line, "time")
}

func TestNewWithWriter_BadLevelFallsBackToInfo(t *testing.T) {
	log := logging.NewWithWriter(&bytes.Buffer{}, "loud", "json")
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewWithWriter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logging.NewWithWriter(buf, "info", "text")
	log.Info().Msg("hello console")
	assert.Contains(t, buf.String(), "hello console")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logging.WithContext(context.Background(), logging.NewWithWriter(buf, "info", "json"))

	l := logging.FromContext(ctx)
	l.Info().Msg("via context")
	assert.Contains(t, buf.String(), "via context")

	// Missing logger is silent, not nil.
	l = logging.FromContext(context.Background())
	l.Info().Msg("dropped")
}

func TestRequests_LogsStatusAndRequestID(t *testing.T) {
	// GIVEN: A handler behind RequestID and the request logger
	// WHEN: It answers 404
	// THEN: One log line carries method, path, status and request id

	buf := &bytes.Buffer{}
	log := logging.NewWithWriter(buf, "info", "json")

	var sawLogger bool
	h := middleware.RequestID(logging.Requests(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logging.FromContext(r.Context())
		sawLogger = l.GetLevel() != zerolog.Disabled
		w.WriteHeader(http.StatusNotFound)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/wallets/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, sawLogger)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/api/wallets/nope", line["path"])
	assert.EqualValues(t, 404, line["status"])
	assert.NotEmpty(t, line["request_id"])
}
