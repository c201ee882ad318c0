// Package policy retrieves support policy snippets relevant to a customer
// message. Retrieval is advisory: the workflow degrades to an empty context
// rather than failing when nothing relevant is found.
package policy

import "context"

// Snippet is one retrieved policy passage with its relevance score.
type Snippet struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Retriever finds the policy snippets most relevant to a query.
type Retriever interface {
	// Retrieve returns up to topK snippets ordered by descending score.
	// An empty result is not an error.
	Retrieve(ctx context.Context, query string, topK int) ([]Snippet, error)
}
