package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tinkerbelle-io/kube-medic/internal/telemetry"
)

func TestDaemonMuxHealthz(t *testing.T) {
	tests := []struct {
		name       string
		healthy    func(context.Context) bool
		wantCode   int
		wantStatus string
		wantProm   string
	}{
		{"no checker", nil, http.StatusOK, "ok", "unknown"},
		{"prometheus up", func(context.Context) bool { return true }, http.StatusOK, "ok", "reachable"},
		{"prometheus down", func(context.Context) bool { return false }, http.StatusServiceUnavailable, "degraded", "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(newDaemonMux(daemonHandlers{healthy: tt.healthy}))
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/healthz")
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status code = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body["status"] != tt.wantStatus || body["prometheus"] != tt.wantProm {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestDaemonMuxMetrics(t *testing.T) {
	m := telemetry.New()
	m.ObserveCycle("success", "remediate", 0)

	srv := httptest.NewServer(newDaemonMux(daemonHandlers{metrics: m.Handler()}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "kube_medic_cycles_total") {
		t.Errorf("metrics output missing cycle counter:\n%s", data)
	}
}

func TestDaemonMuxUnregisteredRoutes(t *testing.T) {
	srv := httptest.NewServer(newDaemonMux(daemonHandlers{}))
	defer srv.Close()

	for _, path := range []string{"/mcp", "/ws/incidents", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, resp.StatusCode)
		}
	}
}
