package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"civiccite/internal/util"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBodyRunes  = 300
)

// postJSON sends payload and returns the response body. Failures are
// formatted as "<provider> <op> error <status>: <body>" so ClassifyError
// can read the status back out of them.
func postJSON(ctx context.Context, client *http.Client, url, bearer string, payload any, provider, op string) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s %s payload: %w", provider, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%s %s request: %w", provider, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s request failed: %w", provider, op, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s error %d: %s", provider, op, resp.StatusCode, util.DisplaySnippet(string(body), maxErrorBodyRunes))
	}
	return body, nil
}

// completeChat runs one OpenAI-style chat completion.
func completeChat(ctx context.Context, client *http.Client, provider, url, key, model string, req GenerateRequest) (GenerateResponse, error) {
	body, err := postJSON(ctx, client, url, key, chatPayload(model, req), provider, "generate")
	if err != nil {
		return GenerateResponse{}, err
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, fmt.Errorf("decode %s response: %w", provider, err)
	}
	if len(parsed.Choices) == 0 {
		return GenerateResponse{}, fmt.Errorf("%s returned empty choices", provider)
	}
	return GenerateResponse{Text: parsed.Choices[0].Message.Content}, nil
}

// resolveKey looks up CIVICCITE_<PROVIDER>_KEY_<ALIAS> first and the
// vendor's own variable second.
func resolveKey(provider, alias, fallbackEnv string) string {
	if alias != "" {
		if v := strings.TrimSpace(os.Getenv("CIVICCITE_" + strings.ToUpper(provider) + "_KEY_" + sanitizeEnvToken(alias))); v != "" {
			return v
		}
	}
	return strings.TrimSpace(os.Getenv(fallbackEnv))
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func sanitizeEnvToken(s string) string {
	return strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(strings.ToUpper(s))
}

// matchDimension pads or truncates v to target. A target of 0 keeps v.
func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
