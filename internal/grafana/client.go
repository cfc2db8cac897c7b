// Package grafana implements the annotation gateway over the Grafana HTTP API.
package grafana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
)

// Client writes dashboard annotations.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a client for the Grafana instance at baseURL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		url:    strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: slog.Default().With("component", "grafana"),
	}
}

type annotationRequest struct {
	DashboardID int      `json:"dashboardId,omitempty"`
	Time        int64    `json:"time"`
	Text        string   `json:"text"`
	Tags        []string `json:"tags"`
}

// CreateAnnotation posts an annotation and returns Grafana's acknowledgement.
func (c *Client) CreateAnnotation(ctx context.Context, a gateway.Annotation) (gateway.AnnotationAck, error) {
	body, err := json.Marshal(annotationRequest{
		DashboardID: a.DashboardID,
		Time:        a.TimeMs,
		Text:        a.Text,
		Tags:        a.Tags,
	})
	if err != nil {
		return gateway.AnnotationAck{}, fmt.Errorf("marshal annotation: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/annotations", bytes.NewReader(body))
	if err != nil {
		return gateway.AnnotationAck{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return gateway.AnnotationAck{}, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return gateway.AnnotationAck{}, fmt.Errorf("annotation failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var ack gateway.AnnotationAck
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return gateway.AnnotationAck{}, fmt.Errorf("decode annotation reply: %w", err)
	}
	c.log.Debug("annotation created", "id", ack.ID, "dashboard_id", a.DashboardID, "tags", a.Tags)
	return ack, nil
}
