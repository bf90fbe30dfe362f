package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpctx "github.com/dtroode/audience-server/internal/api/http/context"
	"github.com/dtroode/audience-server/internal/api/http/handler"
	"github.com/dtroode/audience-server/internal/testutil"
	"github.com/dtroode/audience-server/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(authEnabled bool) *gin.Engine {
	lg := testutil.MakeNoopLogger()
	ctxMgr := httpctx.NewManager()
	h := handler.New(nil, nil, nil, nil, ctxMgr, lg, 0)

	return New(h, token.NewJWT("secret", time.Hour), ctxMgr, lg, authEnabled).Register()
}

func TestRouter_Register(t *testing.T) {
	t.Parallel()

	engine := newEngine(false)
	require.NotNil(t, engine)

	routes := make(map[string]bool)
	for _, r := range engine.Routes() {
		routes[r.Method+" "+r.Path] = true
	}

	for _, want := range []string{
		"GET /metrics",
		"GET /api/health",
		"GET /api/ready",
		"POST /api/ingest",
		"POST /api/upload",
		"GET /api/user",
		"GET /api/cohort/user",
	} {
		assert.True(t, routes[want], want)
	}
}

func TestRouter_Auth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "health is public", method: http.MethodGet, path: "/api/health", wantStatus: http.StatusOK},
		{name: "metrics are public", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "ingest needs a token", method: http.MethodPost, path: "/api/ingest", wantStatus: http.StatusUnauthorized},
		{name: "lookup needs a token", method: http.MethodGet, path: "/api/user?email=a@x.io", wantStatus: http.StatusUnauthorized},
		{name: "cohorts need a token", method: http.MethodGet, path: "/api/cohort/user", wantStatus: http.StatusUnauthorized},
	}

	engine := newEngine(true)

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}")))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	// no query service is wired, so the lookup panics inside the handler
	engine := newEngine(false)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/user?email=a@x.io", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
