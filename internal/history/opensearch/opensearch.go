package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/procman/internal/history"
)

// Sink indexes events into OpenSearch (or Elasticsearch) over its REST API,
// one document per event at baseURL/index/_doc.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

// document is the flattened form stored in the index.
type document struct {
	Type       history.EventType `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	RunID      string            `json:"run_id"`
	Name       string            `json:"name"`
	PID        int               `json:"pid"`
	StartedAt  time.Time         `json:"started_at"`
	ExitCode   *int              `json:"exit_code,omitempty"`
	Detail     string            `json:"detail,omitempty"`
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(document{
		Type:       e.Type,
		OccurredAt: e.OccurredAt.UTC(),
		RunID:      e.Record.RunID,
		Name:       e.Record.Name,
		PID:        e.Record.PID,
		StartedAt:  e.Record.StartedAt.UTC(),
		ExitCode:   e.Record.ExitCode,
		Detail:     e.Record.Detail,
	})
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, s.index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}
