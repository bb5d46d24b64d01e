// Package secrets talks to the external secret provider. The keeper only
// uses it to populate child process environments; credential collection and
// validation happen before the daemon starts.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stack-keeper/internal/config"
)

// Resolver fetches the secret mapping for an (environment, path) scope.
type Resolver interface {
	Resolve(ctx context.Context, environment, path string) (map[string]string, error)
}

type httpResolver struct {
	host   string
	token  string
	client *http.Client
}

type secretItem struct {
	Key   string `json:"secretKey"`
	Value string `json:"secretValue"`
}

type secretsPayload struct {
	Secrets []secretItem `json:"secrets"`
}

// NewResolver builds a resolver from configuration. A disabled config yields
// a resolver that always returns an empty mapping, so callers never branch.
func NewResolver(cfg *config.SecretsConfig) Resolver {
	if !cfg.Enabled || cfg.Host == "" {
		return disabledResolver{}
	}
	return &httpResolver{
		host:  strings.TrimRight(cfg.Host, "/"),
		token: cfg.Token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (r *httpResolver) Resolve(ctx context.Context, environment, path string) (map[string]string, error) {
	query := url.Values{}
	query.Set("environment", environment)
	query.Set("secretPath", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/secrets?%s", r.host, query.Encode()), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("secret fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("secret fetch failed: status %d", resp.StatusCode)
	}

	var payload secretsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("secret payload decode failed: %w", err)
	}

	out := make(map[string]string, len(payload.Secrets))
	for _, item := range payload.Secrets {
		key := strings.TrimSpace(item.Key)
		if key == "" {
			continue
		}
		out[key] = item.Value
	}
	return out, nil
}

type disabledResolver struct{}

func (disabledResolver) Resolve(context.Context, string, string) (map[string]string, error) {
	return map[string]string{}, nil
}
