// Package loki pushes telemetry lines to Grafana Loki's push API.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Job is the job label set on every stream.
const Job = "praxis-pilot"

// ErrNoURL is returned by NewClient without a base URL.
var ErrNoURL = errors.New("loki: base URL is empty")

// pushRequest is the Loki push API request body (v1).
type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // [timestamp_ns, line]
}

// labelSanitize replaces characters we keep out of label values.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Entry is one log line with its stream labels.
type Entry struct {
	Time   time.Time
	Line   string
	Labels map[string]string
}

// eventFields are the telemetry event fields used for labels and the timestamp.
type eventFields struct {
	TenantID  string    `json:"tenant_id"`
	EventType string    `json:"event_type"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// EntryFromEventJSON turns a telemetry event (a Kafka message value) into an Entry labeled
// with tenant_id, event_type and source. The line is the raw JSON. Unparseable input is
// kept as a line stamped with the current time and no extra labels.
func EntryFromEventJSON(raw []byte) Entry {
	e := Entry{Time: time.Now().UTC(), Line: string(raw), Labels: map[string]string{}}
	var f eventFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return e
	}
	if f.TenantID != "" {
		e.Labels["tenant_id"] = f.TenantID
	}
	if f.EventType != "" {
		e.Labels["event_type"] = f.EventType
	}
	if f.Source != "" {
		e.Labels["source"] = f.Source
	}
	if !f.CreatedAt.IsZero() {
		e.Time = f.CreatedAt
	}
	return e
}

// Client pushes entries to one Loki instance.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a Client for baseURL (e.g. http://localhost:3100).
func NewClient(baseURL string) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrNoURL
	}
	return &Client{
		url:  strings.TrimSuffix(baseURL, "/") + "/loki/api/v1/push",
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Push sends entries in a single request, one stream per distinct label set.
// Returns an error if the request fails or Loki answers non-2xx.
func (c *Client) Push(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(buildRequest(entries))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}

func buildRequest(entries []Entry) pushRequest {
	byKey := make(map[string]*stream)
	var order []string
	for _, e := range entries {
		labels := streamLabels(e.Labels)
		key := labelKey(labels)
		s, ok := byKey[key]
		if !ok {
			s = &stream{Stream: labels}
			byKey[key] = s
			order = append(order, key)
		}
		s.Values = append(s.Values, []string{strconv.FormatInt(e.Time.UnixNano(), 10), e.Line})
	}
	out := pushRequest{Streams: make([]stream, 0, len(order))}
	for _, k := range order {
		out.Streams = append(out.Streams, *byKey[k])
	}
	return out
}

func streamLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	out["job"] = Job
	for k, v := range in {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			out[k] = s
		}
	}
	return out
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
