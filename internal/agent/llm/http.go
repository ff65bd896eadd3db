package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// doJSON posts payload and returns the body of a 2xx response. Non-2xx and
// transport failures come back as *ProviderError; parent cancellation is
// returned as ctx.Err().
func doJSON(ctx context.Context, client *http.Client, provider, url string, timeout time.Duration, headers map[string]string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", provider, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := "transport error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("timed out after %s", timeout)
		}
		return nil, &ProviderError{Provider: provider, Kind: KindOther, Network: true, Message: msg, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Provider: provider, Kind: KindOther, Network: true, Message: "failed to read body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &ProviderError{
			Provider:   provider,
			Kind:       KindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
		if perr.Kind == KindRateLimit {
			perr.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		}
		return nil, perr
	}
	return body, nil
}

// errorMessage pulls the message out of the usual {"error":{"message":..}}
// or {"error":"..."} shapes, falling back to the raw body.
func errorMessage(body []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return truncateMessage(nested.Error.Message, 700)
	}
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return truncateMessage(flat.Error, 700)
	}
	return truncateMessage(string(body), 700)
}
