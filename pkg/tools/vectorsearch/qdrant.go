package vectorsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Match is one passage returned by the index.
type Match struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]string
}

// Index is a nearest-neighbor search over stored passages.
type Index interface {
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]Match, error)
}

// Qdrant implements Index over the Qdrant HTTP API. Passage text is read
// from the "content" payload field (or "text" when content is absent).
type Qdrant struct {
	BaseURL    string
	HTTPClient *http.Client
}

var _ Index = (*Qdrant)(nil)

// NewQdrant creates a client for the Qdrant instance at baseURL.
func NewQdrant(baseURL string) *Qdrant {
	return &Qdrant{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
	}
}

type qdrantSearchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type qdrantSearchResponse struct {
	Result []qdrantSearchResult `json:"result"`
}

type qdrantSearchResult struct {
	ID      any            `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Search runs POST /collections/{name}/points/search.
func (q *Qdrant) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Match, error) {
	data, err := json.Marshal(qdrantSearchRequest{Vector: vector, Limit: limit, WithPayload: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/collections/%s/points/search", q.BaseURL, url.PathEscape(collection))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qdrant search returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed qdrantSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	matches := make([]Match, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		m := Match{
			ID:       fmt.Sprintf("%v", r.ID),
			Score:    r.Score,
			Metadata: make(map[string]string),
		}
		for k, v := range r.Payload {
			s, ok := v.(string)
			if !ok {
				continue
			}
			switch k {
			case "content":
				m.Content = s
			case "text":
				if m.Content == "" {
					m.Content = s
				}
			default:
				m.Metadata[k] = s
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}
