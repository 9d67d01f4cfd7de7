package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 60 * time.Second

// maxErrorBody bounds how much of a failed response ends up in an apiError.
const maxErrorBody = 4 << 10

// jsonEndpoint posts JSON to a single provider URL with fixed headers.
type jsonEndpoint struct {
	provider string
	url      string
	header   http.Header
	client   *http.Client
}

func newJSONEndpoint(provider, url string, timeout time.Duration, header http.Header) jsonEndpoint {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	header.Set("Content-Type", "application/json")
	return jsonEndpoint{provider: provider, url: url, header: header, client: &http.Client{Timeout: timeout}}
}

// post sends body and decodes a 200 response into out. Any other status is
// an *apiError carrying the start of the response body.
func (e jsonEndpoint) post(ctx context.Context, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = e.header.Clone()

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &apiError{Provider: e.provider, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing %s response: %w", e.provider, err)
	}
	return nil
}
