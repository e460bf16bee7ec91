// Package loki pushes security events to Grafana Loki's push API.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultJob is the job label attached to every pushed stream.
const DefaultJob = "mymessenger-identity"

const pushPath = "/loki/api/v1/push"

// Loki label values are free-form, but we keep them to a safe alphabet.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Labels map[string]string `json:"stream"`
	Values [][2]string       `json:"values"` // [unix ns, line]
}

// eventLabels are the security event fields promoted to stream labels. The identity
// id stays in the line only: as a label it would give every account its own stream.
type eventLabels struct {
	EventType string    `json:"eventType"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

// Client pushes log lines to one Loki instance.
type Client struct {
	pushURL string
	job     string
	http    *http.Client
}

// NewClient returns a Client for baseURL (e.g. http://localhost:3100). A nil httpClient
// gets a client with a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("loki: base URL is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		pushURL: strings.TrimSuffix(baseURL, "/") + pushPath,
		job:     DefaultJob,
		http:    httpClient,
	}, nil
}

// PushEventJSON pushes a security event as it arrived from Kafka. event_type and source
// become labels and createdAt the entry time; a line that does not parse is pushed as-is
// at the current time.
func (c *Client) PushEventJSON(ctx context.Context, raw []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var ev eventLabels
	if err := json.Unmarshal(raw, &ev); err == nil {
		labels["event_type"] = ev.EventType
		labels["source"] = ev.Source
		if !ev.CreatedAt.IsZero() {
			ts = ev.CreatedAt
		}
	}
	return c.Push(ctx, ts, string(raw), labels)
}

// Push sends one line with the given labels. Empty label values are dropped.
func (c *Client) Push(ctx context.Context, ts time.Time, line string, labels map[string]string) error {
	streamLabels := map[string]string{"job": c.job}
	for k, v := range labels {
		if v = labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); v != "" {
			streamLabels[k] = v
		}
	}
	payload, err := json.Marshal(pushRequest{Streams: []stream{{
		Labels: streamLabels,
		Values: [][2]string{{strconv.FormatInt(ts.UnixNano(), 10), line}},
	}}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pushURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
