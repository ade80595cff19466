package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const httpTimeout = 5 * time.Second

// postJSON sends body to url and treats any non-2xx answer as a failure.
// label prefixes the status error ("slack webhook returned 502").
func postJSON(ctx context.Context, client *http.Client, label, url string, body []byte, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", label, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req) // #nosec G107 -- destination comes from operator config
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		if s := strings.TrimSpace(string(snippet)); s != "" {
			return fmt.Errorf("%s returned %d: %s", label, resp.StatusCode, s)
		}
		return fmt.Errorf("%s returned %d", label, resp.StatusCode)
	}
	return nil
}
