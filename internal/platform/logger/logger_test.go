package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFrom_FallsBackToProcessLogger(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	l := zap.New(core)
	Set(l)
	assert.Same(t, l, From(context.Background()))

	scoped := l.With(zap.String("k", "v"))
	assert.Same(t, scoped, From(ToContext(context.Background(), scoped)))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestMiddleware_LogsByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))

	h := middleware.RequestID(Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		From(r.Context()).Info("inside")
		w.WriteHeader(http.StatusUnauthorized)
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))

	require.Equal(t, 2, logs.Len())
	inside := logs.All()[0]
	assert.Equal(t, "inside", inside.Message)
	assert.NotEmpty(t, inside.ContextMap()["request_id"])
	done := logs.All()[1]
	assert.Equal(t, zapcore.WarnLevel, done.Level)
	assert.EqualValues(t, http.StatusUnauthorized, done.ContextMap()["status"])
}
