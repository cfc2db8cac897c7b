package prom

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func promServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("query"); got != "app_cpu_usage_percent" {
			t.Errorf("query = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQueryVector(t *testing.T) {
	srv := promServer(t, `{"status":"success","data":{"resultType":"vector","result":[
		{"metric":{"__name__":"app_cpu_usage_percent","instance":"app-7d9f-x2:8000"},"value":[1700000000.5,"14.5"]},
		{"metric":{"instance":"app-7d9f-y3:8000"},"value":[1700000000,"3"]}
	]}}`)

	g, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	samples, err := g.Query(context.Background(), "app_cpu_usage_percent")
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Labels["instance"] != "app-7d9f-x2:8000" || samples[0].Value != 14.5 {
		t.Errorf("unexpected first sample: %+v", samples[0])
	}
	if samples[0].Timestamp != 1700000000 {
		t.Errorf("timestamp = %d", samples[0].Timestamp)
	}
}

func TestQueryEmptyVector(t *testing.T) {
	srv := promServer(t, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	g, _ := New(srv.URL)
	samples, err := g.Query(context.Background(), "app_cpu_usage_percent")
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 0 {
		t.Errorf("expected no samples, got %+v", samples)
	}
}

func TestQueryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","errorType":"bad_data","error":"parse error"}`))
	}))
	defer srv.Close()

	g, _ := New(srv.URL)
	if _, err := g.Query(context.Background(), "app_cpu_usage_percent"); err == nil {
		t.Error("expected error from bad_data response")
	}
}

func TestQueryDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g, _ := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := g.Query(ctx, "app_cpu_usage_percent")
	if err == nil {
		t.Fatal("expected error after deadline")
	}
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Errorf("context should have expired, got %v", ctx.Err())
	}
}
