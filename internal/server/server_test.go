package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/HerbHall/driftwatch/pkg/plugin"
)

type fakeSource struct {
	plugins []plugin.Plugin
	routes  map[string][]plugin.Route
}

func (f *fakeSource) All() []plugin.Plugin { return f.plugins }

func (f *fakeSource) AllRoutes() map[string][]plugin.Route {
	if f.routes == nil {
		return map[string][]plugin.Route{}
	}
	return f.routes
}

type staticPlugin struct {
	info plugin.PluginInfo
}

func (p *staticPlugin) Info() plugin.PluginInfo                         { return p.info }
func (p *staticPlugin) Init(context.Context, plugin.Dependencies) error { return nil }
func (p *staticPlugin) Start(context.Context) error                     { return nil }
func (p *staticPlugin) Stop(context.Context) error                      { return nil }

func newTestServer(ready ReadinessChecker) *Server {
	src := &fakeSource{plugins: []plugin.Plugin{
		&staticPlugin{info: plugin.PluginInfo{
			Name:        "watch",
			Version:     "1.0.0",
			Description: "drift detection",
		}},
	}}
	return New("127.0.0.1:0", src, zap.NewNop(), ready, nil)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", path, http.NoBody))
	return w
}

func TestHealthz(t *testing.T) {
	w := get(t, newTestServer(nil).mux, "/healthz")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "alive" {
		t.Errorf("status field = %q, want alive", body["status"])
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checker    ReadinessChecker
		wantCode   int
		wantStatus string
		wantErr    string
	}{
		{
			name:       "checker passes",
			checker:    func(context.Context) error { return nil },
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:       "checker fails",
			checker:    func(context.Context) error { return errors.New("database unreachable") },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not ready",
			wantErr:    "database unreachable",
		},
		{
			name:       "no checker configured",
			checker:    nil,
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, newTestServer(tt.checker).mux, "/readyz")

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("status field = %q, want %q", body["status"], tt.wantStatus)
			}
			if tt.wantErr != "" && !strings.Contains(body["error"], tt.wantErr) {
				t.Errorf("error field = %q, want it to contain %q", body["error"], tt.wantErr)
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	w := get(t, newTestServer(nil).mux, "/api/v1/health")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["service"] != "driftwatch" {
		t.Errorf("service field = %v, want driftwatch", body["service"])
	}
	if body["version"] == nil {
		t.Error("expected a version field")
	}
}

func TestPluginsEndpoint(t *testing.T) {
	w := get(t, newTestServer(nil).mux, "/api/v1/plugins")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var listed []map[string]string
	if err := json.NewDecoder(w.Body).Decode(&listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("got %d plugins, want 1", len(listed))
	}
	if listed[0]["name"] != "watch" || listed[0]["version"] != "1.0.0" {
		t.Errorf("plugin entry = %v, want watch 1.0.0", listed[0])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := get(t, newTestServer(nil).mux, "/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected Go runtime metrics in /metrics output")
	}
}

func TestFullHandler_MiddlewareHeaders(t *testing.T) {
	// Exercise the wrapped handler rather than the bare mux so the
	// middleware chain runs.
	w := get(t, newTestServer(nil).httpServer.Handler, "/healthz")

	if w.Header().Get("X-DriftWatch-Version") == "" {
		t.Error("missing X-DriftWatch-Version header")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestPluginRoutesMounted(t *testing.T) {
	src := &fakeSource{routes: map[string][]plugin.Route{
		"watch": {{
			Method: "POST",
			Path:   "/observe",
			Handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			},
		}},
	}}
	srv := New("127.0.0.1:0", src, zap.NewNop(), nil, nil)

	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/watch/observe", http.NoBody))

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
}
