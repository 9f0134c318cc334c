package observe

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func spanAttr(s tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// durationCounts returns the request duration sample count per path.
func durationCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]uint64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	counts := map[string]uint64{}
	met := findMetric(rm, "voxprivate.http.request.duration")
	if met == nil {
		return counts
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("request duration is %T, want histogram", met.Data)
	}
	for _, dp := range hist.DataPoints {
		path, _ := dp.Attributes.Value("path")
		counts[path.AsString()] += dp.Count
	}
	return counts
}

func TestMiddleware_RequestOutcome(t *testing.T) {
	const inboundTrace = "4bf92f3577b34da6a3ce929d0e0e4736"

	tests := []struct {
		name        string
		method      string
		path        string
		traceparent string
		status      int // 0 writes a body without an explicit header
		wantStatus  int
	}{
		{name: "status read", method: http.MethodGet, path: "/status", wantStatus: http.StatusOK},
		{name: "rejected config", method: http.MethodPost, path: "/config", status: http.StatusBadRequest, wantStatus: http.StatusBadRequest},
		{name: "missing route", method: http.MethodGet, path: "/nowhere", status: http.StatusNotFound, wantStatus: http.StatusNotFound},
		{
			name:        "inbound trace context",
			method:      http.MethodGet,
			path:        "/metrics",
			traceparent: "00-" + inboundTrace + "-00f067aa0ba902b7-01",
			wantStatus:  http.StatusOK,
		},
	}

	exp := useRecorder(t)
	m, reader := newTestMetrics(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp.Reset()
			var seen string
			h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationID(r.Context())
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				_, _ = w.Write([]byte("ok"))
			}))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if len(seen) != 32 {
				t.Fatalf("handler correlation ID = %q", seen)
			}
			if tt.traceparent != "" && seen != inboundTrace {
				t.Errorf("correlation ID = %q, want inbound trace %q", seen, inboundTrace)
			}
			if got := rec.Header().Get("X-Correlation-ID"); got != seen {
				t.Errorf("X-Correlation-ID = %q, want %q", got, seen)
			}
			if tp := rec.Header().Get("traceparent"); !strings.Contains(tp, seen) {
				t.Errorf("response traceparent %q does not carry %q", tp, seen)
			}

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("recorded %d spans, want 1", len(spans))
			}
			s := spans[0]
			if want := "HTTP " + tt.method + " " + tt.path; s.Name != want {
				t.Errorf("span name = %q, want %q", s.Name, want)
			}
			if s.SpanKind != trace.SpanKindServer {
				t.Errorf("span kind = %v, want server", s.SpanKind)
			}
			if v, ok := spanAttr(s, "http.response.status_code"); !ok || v.AsInt64() != int64(tt.wantStatus) {
				t.Errorf("status attribute = %v (present %v), want %d", v.AsInt64(), ok, tt.wantStatus)
			}
		})
	}

	counts := durationCounts(t, reader)
	for _, tt := range tests {
		if counts[tt.path] != 1 {
			t.Errorf("duration samples for %s = %d, want 1", tt.path, counts[tt.path])
		}
	}
}

// hijackRecorder is a recorder that also supports connection takeover.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestMiddleware_ResponseControllerReachesHijacker(t *testing.T) {
	useRecorder(t)
	m, _ := newTestMetrics(t)

	var hijackErr error
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, ok := w.(http.Hijacker); ok {
			t.Error("status recorder should not expose Hijack directly")
		}
		_, _, hijackErr = http.NewResponseController(w).Hijack()
	}))

	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/control", nil))

	if hijackErr != nil {
		t.Fatalf("Hijack through middleware: %v", hijackErr)
	}
	if !rec.hijacked {
		t.Error("underlying writer was not hijacked")
	}
}

func TestMiddleware_WebsocketUpgrade(t *testing.T) {
	exp := useRecorder(t)
	m, reader := newTestMetrics(t)

	served := make(chan struct{})
	stack := LoopbackOnly(Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		defer c.CloseNow()
		typ, data, err := c.Read(r.Context())
		if err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		if err := c.Write(r.Context(), typ, data); err != nil {
			t.Errorf("server write: %v", err)
		}
	})))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(served)
		stack.ServeHTTP(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/control", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Error("upgrade response lacks X-Correlation-ID")
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"op":"status"}`)); err != nil {
		t.Fatalf("client write: %v", err)
	}
	_, echo, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(echo) != `{"op":"status"}` {
		t.Errorf("echo = %q", echo)
	}

	select {
	case <-served:
	case <-ctx.Done():
		t.Fatal("handler did not return")
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if v, _ := spanAttr(spans[0], "http.response.status_code"); v.AsInt64() != http.StatusSwitchingProtocols {
		t.Errorf("status attribute = %d, want 101", v.AsInt64())
	}
	if n := durationCounts(t, reader)["/control"]; n != 1 {
		t.Errorf("duration samples = %d, want 1", n)
	}
}

func TestLoopbackOnly(t *testing.T) {
	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:51234", http.StatusNoContent},
		{"127.8.9.10:51234", http.StatusNoContent},
		{"[::1]:51234", http.StatusNoContent},
		{"192.168.1.20:51234", http.StatusForbidden},
		{"[fe80::1]:51234", http.StatusForbidden},
		{"10.0.0.7", http.StatusForbidden},
		{"garbage", http.StatusForbidden},
	}

	exp := useRecorder(t)
	m, reader := newTestMetrics(t)

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			exp.Reset()
			calls := 0
			h := LoopbackOnly(Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls++
				w.WriteHeader(http.StatusNoContent)
			})))

			req := httptest.NewRequest(http.MethodGet, "/control", nil)
			req.RemoteAddr = tt.remote
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			allowed := tt.want != http.StatusForbidden
			wantCalls := 0
			if allowed {
				wantCalls = 1
			}
			if calls != wantCalls {
				t.Errorf("handler calls = %d, want %d", calls, wantCalls)
			}
			if got := len(exp.GetSpans()) == 1; got != allowed {
				t.Errorf("span recorded = %v, want %v", got, allowed)
			}
			if got := rec.Header().Get("X-Correlation-ID") != ""; got != allowed {
				t.Errorf("correlation header present = %v, want %v", got, allowed)
			}
		})
	}

	allowed := 0
	for _, tt := range tests {
		if tt.want != http.StatusForbidden {
			allowed++
		}
	}
	if n := durationCounts(t, reader)["/control"]; n != uint64(allowed) {
		t.Errorf("duration samples = %d, want %d", n, allowed)
	}
}
