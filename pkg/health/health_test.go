package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, checker *Checker, path string) (int, Response) {
	t.Helper()
	e := echo.New()
	checker.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestChecker(t *testing.T) {
	t.Run("should always be live", func(t *testing.T) {
		code, body := serve(t, NewChecker("1.2.3"), "/api/v1/health/liveness")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, StatusHealthy, body.Status)
		assert.Equal(t, "1.2.3", body.Version)
	})

	t.Run("should not be ready before startup completes", func(t *testing.T) {
		code, body := serve(t, NewChecker("dev"), "/api/v1/health/readiness")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, StatusUnhealthy, body.Checks["startup"].Status)
	})

	t.Run("should report failing dependencies", func(t *testing.T) {
		checker := NewChecker("dev")
		checker.AddCheck("database", PingFunc(func(context.Context) error { return nil }))
		checker.AddCheck("redis", PingFunc(func(context.Context) error { return errors.New("connection refused") }))
		checker.SetReady(true)

		code, body := serve(t, checker, "/api/v1/health/readiness")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, StatusHealthy, body.Checks["database"].Status)
		assert.Equal(t, "connection refused", body.Checks["redis"].Message)
	})

	t.Run("should be ready when every dependency answers", func(t *testing.T) {
		checker := NewChecker("dev")
		checker.AddCheck("database", PingFunc(func(context.Context) error { return nil }))
		checker.SetReady(true)

		code, body := serve(t, checker, "/api/v1/health/readiness")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, StatusHealthy, body.Status)
	})
}
