package grafana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
)

func TestCreateAnnotation(t *testing.T) {
	var got annotationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/annotations" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"id":17,"message":"Annotation added"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key")
	ack, err := c.CreateAnnotation(context.Background(), gateway.Annotation{
		DashboardID: 1,
		TimeMs:      1700000000000,
		Text:        "Pod app-1 restarted due to high cpu usage (15.00%)",
		Tags:        []string{"cpu", "auto-remediated", "high"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ack.ID != 17 || ack.Message != "Annotation added" {
		t.Errorf("unexpected ack: %+v", ack)
	}
	if got.DashboardID != 1 || got.Time != 1700000000000 || len(got.Tags) != 3 {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestCreateAnnotationRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Invalid API key"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad")
	if _, err := c.CreateAnnotation(context.Background(), gateway.Annotation{Text: "x"}); err == nil {
		t.Error("expected error for 401")
	}
}
