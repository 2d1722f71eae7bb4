package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Hub API constants.
const (
	DefaultHubEndpoint = "https://huggingface.co"
	EnvHFToken         = "HF_TOKEN"
	EnvHFEndpoint      = "HF_ENDPOINT"
	hubClientTimeout   = 30 * time.Second
	hubUserAgent       = "tunerd/1.0"
)

var (
	// ErrHubModelNotFound is returned for 404 responses from the hub.
	ErrHubModelNotFound = errors.New("model not found on hub")
	// ErrHubUnavailable covers network failures and non-2xx responses.
	ErrHubUnavailable = errors.New("hub unavailable")
)

// CardInfo is the subset of hub model-card metadata consulted during
// identity resolution.
type CardInfo struct {
	ID       string          `json:"id"`
	ModelID  string          `json:"modelId"`
	Tags     []string        `json:"tags"`
	CardData json.RawMessage `json:"cardData"`
}

// BaseModel extracts an explicit base-model hint from the card, first from
// cardData.base_model (string or list), then from base_model: tags.
func (c *CardInfo) BaseModel() string {
	if len(c.CardData) > 0 {
		var card struct {
			BaseModel any `json:"base_model"`
		}
		if err := json.Unmarshal(c.CardData, &card); err == nil {
			switch v := card.BaseModel.(type) {
			case string:
				if v != "" {
					return v
				}
			case []any:
				for _, item := range v {
					if s, ok := item.(string); ok && s != "" {
						return s
					}
				}
			}
		}
	}
	for _, tag := range c.Tags {
		if rest, ok := strings.CutPrefix(tag, "base_model:"); ok {
			// tags may carry a relation prefix, e.g. base_model:quantized:org/name
			if i := strings.LastIndex(rest, ":"); i >= 0 {
				rest = rest[i+1:]
			}
			if rest != "" {
				return rest
			}
		}
	}
	return ""
}

// HubClient queries the model hub API for repository metadata.
type HubClient struct {
	httpClient *http.Client
	endpoint   string
	token      string
}

// NewHubClient builds a client for the given endpoint; empty endpoint and
// token fall back to HF_ENDPOINT/HF_TOKEN and the public hub.
func NewHubClient(endpoint, token string) *HubClient {
	if endpoint == "" {
		endpoint = os.Getenv(EnvHFEndpoint)
	}
	if endpoint == "" {
		endpoint = DefaultHubEndpoint
	}
	if token == "" {
		token = os.Getenv(EnvHFToken)
	}
	return &HubClient{
		httpClient: &http.Client{Timeout: hubClientTimeout},
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
	}
}

// ModelInfo fetches card metadata for a repository id such as
// "mlx-community/Llama-3.2-3B-Instruct-4bit".
func (c *HubClient) ModelInfo(ctx context.Context, repoID string) (*CardInfo, error) {
	u := c.endpoint + "/api/models/" + url.PathEscape(repoID)
	// PathEscape encodes the owner/name separator too; keep it readable
	u = strings.ReplaceAll(u, "%2F", "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", hubUserAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHubUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrHubModelNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s: %s", ErrHubUnavailable, resp.Status, strings.TrimSpace(string(body)))
	}
	var info CardInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrHubUnavailable, err)
	}
	return &info, nil
}
