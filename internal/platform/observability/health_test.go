package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestServerRoutes(t *testing.T) {
	logger := zerolog.Nop()
	fail := errors.New("connection refused")

	tests := []struct {
		name     string
		path     string
		checks   map[string]Pinger
		wantCode int
		wantBody string
	}{
		{name: "healthz", path: "/healthz", wantCode: http.StatusOK, wantBody: "OK"},
		{
			name:     "ready",
			path:     "/readyz",
			checks:   map[string]Pinger{"db": PingFunc(func(context.Context) error { return nil })},
			wantCode: http.StatusOK,
			wantBody: "OK",
		},
		{
			name: "not ready",
			path: "/readyz",
			checks: map[string]Pinger{
				"db":   PingFunc(func(context.Context) error { return nil }),
				"solr": PingFunc(func(context.Context) error { return fail }),
			},
			wantCode: http.StatusServiceUnavailable,
			wantBody: "solr error: connection refused",
		},
		{name: "metrics", path: "/metrics", wantCode: http.StatusOK, wantBody: "evaluator_runs_total"},
	}

	RunsTotal.WithLabelValues("binary", "DONE").Add(0)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(0, tt.checks, &logger)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
