package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newMiddleware builds the middleware over a manual metric reader and the
// in-memory tracer from testTracer.
func newMiddleware(t *testing.T) (func(http.Handler) http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return Middleware(m), reader, testTracer(t)
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, req *http.Request, inner http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mw(inner).ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareSetsCorrelationID(t *testing.T) {
	mw, _, _ := newMiddleware(t)

	var cid string
	rec := serve(t, mw, httptest.NewRequest("POST", "/conversation/process", nil),
		func(w http.ResponseWriter, r *http.Request) {
			cid = CorrelationID(r.Context())
			w.WriteHeader(http.StatusOK)
		})

	if len(cid) != 32 {
		t.Fatalf("handler saw correlation id %q, want a 32-char trace id", cid)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != cid {
		t.Errorf("X-Correlation-ID = %q, want %q", got, cid)
	}
}

func TestMiddlewareOpensServerSpan(t *testing.T) {
	mw, _, exp := newMiddleware(t)

	serve(t, mw, httptest.NewRequest("POST", "/voice/call", nil),
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP POST /voice/call" {
		t.Errorf("span name = %q", spans[0].Name)
	}
}

func TestMiddlewareRecordsRequestDuration(t *testing.T) {
	mw, reader, _ := newMiddleware(t)

	serve(t, mw, httptest.NewRequest("GET", "/session/abc", nil),
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "vaani.http.request.duration")
	if met == nil {
		t.Fatal("request duration histogram not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("unexpected metric shape: %+v", met.Data)
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	var method, path string
	for _, kv := range dp.Attributes.ToSlice() {
		switch string(kv.Key) {
		case "method":
			method = kv.Value.AsString()
		case "path":
			path = kv.Value.AsString()
		}
	}
	if method != "GET" || path != "/session/abc" {
		t.Errorf("attributes method=%q path=%q", method, path)
	}
}

func TestMiddlewareCapturesStatusCode(t *testing.T) {
	mw, _, exp := newMiddleware(t)

	rec := serve(t, mw, httptest.NewRequest("GET", "/session/missing", nil),
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatal("no span recorded")
	}
	var found bool
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 404 {
			found = true
		}
	}
	if !found {
		t.Error("span is missing the response status code")
	}
}

func TestMiddlewareHonoursIncomingTraceparent(t *testing.T) {
	mw, _, _ := newMiddleware(t)

	const upstream = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest("POST", "/conversation/process", nil)
	req.Header.Set("traceparent", "00-"+upstream+"-00f067aa0ba902b7-01")

	var cid string
	rec := serve(t, mw, req, func(w http.ResponseWriter, r *http.Request) {
		cid = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	if cid != upstream {
		t.Errorf("correlation id = %q, want the upstream trace id", cid)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != upstream {
		t.Errorf("X-Correlation-ID = %q, want %q", got, upstream)
	}
}
