package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/franqio/royaltyd/internal/charge/domain"
)

const maxResponseBytes = 1 << 20

// DoJSON sends a JSON request and decodes the gateway response body. Network
// failures and 5xx responses come back as ErrGatewayUnavailable so callers can
// retry; 4xx responses are ErrGatewayRejected and must not be retried.
func DoJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return domain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.ErrGatewayUnavailable
	}

	switch {
	case resp.StatusCode >= 500:
		return domain.ErrGatewayUnavailable
	case resp.StatusCode >= 400:
		return domain.ErrGatewayRejected
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.ErrInvalidPayload
	}
	return nil
}

// ReadString pulls a string value out of a gateway config map.
func ReadString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	cast, ok := value.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(cast), true
}
