package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	t.Parallel()
	mp := sdkmetric.NewMeterProvider()
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.VADDuration == nil || m.ChatDuration == nil || m.GateVerdicts == nil ||
		m.MemoryOps == nil || m.HTTPRequestDuration == nil {
		t.Error("instrument left nil")
	}
}

// collectDurations returns whether the request-duration histogram was
// recorded at all.
func collectDurations(t *testing.T, reader *sdkmetric.ManualReader) bool {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, metr := range sm.Metrics {
			if metr.Name == "foyer.http.request.duration" {
				return true
			}
		}
	}
	return false
}

func TestMiddleware_RecordsDuration(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	handler := Middleware("llmd", m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
	if !collectDurations(t, reader) {
		t.Error("http request duration metric not recorded")
	}
}

func TestMiddleware_ScrapePathsStayOutOfHistogram(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	handler := Middleware("voiced", m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, path := range []string{"/metrics", "/health"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}
	if collectDurations(t, reader) {
		t.Error("scrape paths must not be recorded in the duration histogram")
	}
}

func TestMiddleware_HandlerUserReachesCompletionContext(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	var seen string
	handler := Middleware("learnd", m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithUser(r.Context(), "mom")
		// The slot is shared with the middleware-installed holder.
		seen = UserID(ctx)
	}))

	req := httptest.NewRequest(http.MethodPost, "/learning/submit", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "mom" {
		t.Errorf("UserID = %q, want mom", seen)
	}
}

func TestWithUser_NoSlotFallsBackToValueContext(t *testing.T) {
	t.Parallel()
	ctx := WithUser(context.Background(), "dad")
	if got := UserID(ctx); got != "dad" {
		t.Errorf("UserID = %q, want dad", got)
	}
	if got := UserID(context.Background()); got != "" {
		t.Errorf("UserID on bare context = %q, want empty", got)
	}
}
