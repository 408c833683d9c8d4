package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, ok := New(true).(*Metrics)
	assert.True(t, ok, "New(true) should return *Metrics")

	_, ok = New(false).(*NoopMetrics)
	assert.True(t, ok, "New(false) should return *NoopMetrics")
}

func TestNewPrometheus_IndependentRegistries(t *testing.T) {
	// Registering twice must not panic with a private registry per instance.
	a := NewPrometheus()
	b := NewPrometheus()

	a.RecordTokenIssued("password")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.TokensIssuedTotal.WithLabelValues("password")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.TokensIssuedTotal.WithLabelValues("password")))
}

// =========================================================================
// RECORDER TESTS
// =========================================================================

func TestRecordAuthAttempt(t *testing.T) {
	m := NewPrometheus()

	m.RecordAuthAttempt("password", true, 10*time.Millisecond)
	m.RecordAuthAttempt("password", false, 10*time.Millisecond)
	m.RecordAuthAttempt("password", false, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("password", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("password", "failure")))
}

func TestNoopMetrics_DoesNotPanic(t *testing.T) {
	n := NewNoopMetrics()
	n.RecordAuthAttempt("google", true, time.Second)
	n.RecordTokenIssued("google")
	n.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
}

// =========================================================================
// HTTP TESTS
// =========================================================================

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := NewPrometheus()

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.Get("/api/auth/{provider}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTemporaryRedirect)
	})

	for _, p := range []string{"google", "facebook"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/"+p, nil))
		require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/auth/{provider}", "307"))
	assert.Equal(t, 2.0, got)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsInFlight))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := NewPrometheus()
	m.RecordAuthAttempt("register", true, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "petadopt_auth_attempts_total"))
}

func TestHandler_DisabledIsNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(NewNoopMetrics()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
