package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/craftvisor/internal/history"
)

// Sink indexes events into OpenSearch over its REST API, one document per
// event. An index ending in "-*" rolls over daily: "craftvisor-*" becomes
// "craftvisor-2026.01.31" based on the event time.
type Sink struct {
	client   *http.Client
	baseURL  string
	index    string
	user     string
	password string
}

type Option func(*Sink)

// WithBasicAuth authenticates every request.
func WithBasicAuth(user, password string) Option {
	return func(s *Sink) { s.user, s.password = user, password }
}

// WithHTTPClient replaces the default client (5s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) { s.client = c }
}

func New(baseURL, index string, opts ...Option) *Sink {
	s := &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// IndexFor returns the index an event at t is written to.
func (s *Sink) IndexFor(t time.Time) string {
	if base, ok := strings.CutSuffix(s.index, "-*"); ok {
		return base + "-" + t.UTC().Format("2006.01.02")
	}
	return s.index
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, s.IndexFor(e.OccurredAt))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.user != "" {
		req.SetBasicAuth(s.user, s.password)
	}
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
