// Package intel obtains lead intelligence from an external enrichment
// service. The pipeline treats the result as opaque bytes attached to the
// lead; when no service is configured a deterministic local provider
// stands in.
package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/civicsignal/civicsignal/internal/models"
)

// Provider supplies intelligence for a lead under construction.
type Provider interface {
	Enrich(ctx context.Context, lead *models.Lead) (json.RawMessage, error)
}

// RateLimitError reports an explicit wait hint from the enrichment
// service. The backoff executor recognizes it through its RetryAfter
// method and sleeps the hinted duration instead of the exponential delay.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("enrichment rate limited, retry after %s", e.Wait)
}

// RetryAfter returns the wait hint.
func (e *RateLimitError) RetryAfter() time.Duration {
	return e.Wait
}

// Heuristic is the default provider: a local, deterministic summary built
// from the lead itself. It never fails and needs no network.
type Heuristic struct{}

// Enrich implements Provider.
func (Heuristic) Enrich(_ context.Context, lead *models.Lead) (json.RawMessage, error) {
	name := lead.Name
	if name == "" {
		name = "unnamed business"
	}
	summary := struct {
		Source     string `json:"source"`
		Summary    string `json:"summary"`
		Confidence string `json:"confidence"`
	}{
		Source:  "heuristic",
		Summary: fmt.Sprintf("%s at %s, %s", name, lead.Address, lead.City),
	}
	switch {
	case lead.Score >= 70:
		summary.Confidence = "high"
	case lead.Score >= 50:
		summary.Confidence = "medium"
	default:
		summary.Confidence = "low"
	}
	return json.Marshal(summary)
}

const defaultHTTPTimeout = 10 * time.Second

// HTTP calls a remote enrichment endpoint with the lead as JSON and
// returns the response body verbatim.
type HTTP struct {
	endpoint string
	client   *http.Client
}

// NewHTTP creates an HTTP provider for the given endpoint.
func NewHTTP(endpoint string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTP{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Enrich implements Provider. A 429 response is translated into a
// RateLimitError carrying the Retry-After hint.
func (h *HTTP) Enrich(ctx context.Context, lead *models.Lead) (json.RawMessage, error) {
	body, err := json.Marshal(lead)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lead: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build enrichment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrichment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Wait: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("enrichment returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read enrichment response: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("enrichment returned invalid json")
	}
	return json.RawMessage(data), nil
}

func parseRetryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
