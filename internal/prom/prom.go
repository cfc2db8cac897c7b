// Package prom implements the metric gateway over the Prometheus HTTP API.
package prom

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
)

// Gateway answers instant queries against a Prometheus server.
type Gateway struct {
	client v1.API
	url    string
	log    *slog.Logger
}

// New creates a gateway for the Prometheus server at url.
func New(url string) (*Gateway, error) {
	client, err := api.NewClient(api.Config{Address: url})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	return &Gateway{
		client: v1.NewAPI(client),
		url:    url,
		log:    slog.Default().With("component", "prom"),
	}, nil
}

// URL returns the server address.
func (g *Gateway) URL() string { return g.url }

// Query evaluates series at the current time and returns one sample per
// resulting time series.
func (g *Gateway) Query(ctx context.Context, series string) ([]gateway.MetricSample, error) {
	result, warnings, err := g.client.Query(ctx, series, time.Now())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", series, err)
	}
	if len(warnings) > 0 {
		g.log.Warn("prometheus warnings", "query", series, "warnings", warnings)
	}
	return toSamples(result)
}

// Healthy reports whether the server answers a trivial query.
func (g *Gateway) Healthy(ctx context.Context) bool {
	_, _, err := g.client.Query(ctx, "vector(1)", time.Now())
	return err == nil
}

func toSamples(v model.Value) ([]gateway.MetricSample, error) {
	switch r := v.(type) {
	case model.Vector:
		out := make([]gateway.MetricSample, 0, len(r))
		for _, s := range r {
			labels := make(map[string]string, len(s.Metric))
			for k, val := range s.Metric {
				labels[string(k)] = string(val)
			}
			out = append(out, gateway.MetricSample{
				Labels:    labels,
				Value:     float64(s.Value),
				Timestamp: s.Timestamp.Unix(),
			})
		}
		return out, nil
	case *model.Scalar:
		return []gateway.MetricSample{{
			Labels:    map[string]string{},
			Value:     float64(r.Value),
			Timestamp: r.Timestamp.Unix(),
		}}, nil
	case nil:
		return []gateway.MetricSample{}, nil
	default:
		return nil, fmt.Errorf("unexpected result type %s", v.Type())
	}
}
