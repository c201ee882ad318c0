package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPRetriever queries an external retrieval service over HTTP. The
// service receives {"query": ..., "top_k": ...} and answers with
// {"results": [{"id": ..., "text": ..., "score": ...}]}.
type HTTPRetriever struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRetriever creates a retriever that POSTs to endpoint. A nil
// client uses http.DefaultClient; pass one with a timeout in production.
func NewHTTPRetriever(endpoint string, client *http.Client) *HTTPRetriever {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRetriever{endpoint: endpoint, client: client}
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type retrieveResponse struct {
	Results []Snippet `json:"results"`
}

func (h *HTTPRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Snippet, error) {
	payload, err := json.Marshal(retrieveRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("failed to encode retrieval request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute retrieval request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("retrieval service returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode retrieval response: %w", err)
	}

	results := decoded.Results
	if len(results) > topK && topK > 0 {
		results = results[:topK]
	}
	return results, nil
}
