package policy

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// Document is one policy passage available for retrieval.
type Document struct {
	ID   string
	Text string
}

// MemoryRetriever scores documents by keyword overlap with the query. It is
// the zero-setup Retriever used in tests and single-process deployments; a
// vector store sits behind the same interface in larger installs.
type MemoryRetriever struct {
	docs []Document
}

// NewMemoryRetriever creates a retriever over the given documents.
func NewMemoryRetriever(docs []Document) *MemoryRetriever {
	return &MemoryRetriever{docs: docs}
}

// NewSeededRetriever returns a MemoryRetriever preloaded with the support
// policy set: cancellation, refunds, shipping delays, and escalation.
func NewSeededRetriever() *MemoryRetriever {
	return NewMemoryRetriever([]Document{
		{
			ID: "policy-cancellation",
			Text: "Cancellation policy: Orders can be cancelled free of charge while " +
				"they are in PLACED status. Orders that have SHIPPED may still be " +
				"cancelled before delivery, and the shipment will be recalled. " +
				"DELIVERED orders cannot be cancelled; the customer should request " +
				"a refund instead. All cancellations of paid orders require human " +
				"agent approval before they are executed.",
		},
		{
			ID: "policy-refund",
			Text: "Refund policy: Refundable orders may be refunded within 30 days " +
				"of purchase. Refunds are issued to the original payment method and " +
				"take 5-10 business days to appear. Orders marked non-refundable " +
				"(clearance and final-sale items) are not eligible. Every refund " +
				"requires human agent approval before the money moves.",
		},
		{
			ID: "policy-shipping",
			Text: "Shipping policy: Standard delivery takes 3-7 business days from " +
				"the ship date. If an order is more than 5 days past its expected " +
				"delivery date it is considered delayed; the customer may choose to " +
				"keep waiting, cancel the order, or request a refund once the order " +
				"qualifies.",
		},
		{
			ID: "policy-escalation",
			Text: "Escalation policy: When the assistant cannot resolve a request, " +
				"or the customer explicitly asks for a person, the conversation is " +
				"handed to a human support agent. Write actions against an order " +
				"are never executed without an agent's explicit approval.",
		},
	})
}

// Retrieve scores each document by the fraction of query keywords it
// contains and returns the topK best matches. Documents sharing no keywords
// with the query are omitted entirely.
func (m *MemoryRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Snippet, error) {
	if topK <= 0 || len(m.docs) == 0 {
		return nil, nil
	}

	keywords := tokenize(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	snippets := make([]Snippet, 0, len(m.docs))
	for _, doc := range m.docs {
		docTokens := tokenSet(doc.Text)
		matched := 0
		for kw := range keywords {
			if docTokens[kw] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		snippets = append(snippets, Snippet{
			ID:    doc.ID,
			Text:  doc.Text,
			Score: float64(matched) / float64(len(keywords)),
		})
	}

	sort.SliceStable(snippets, func(i, j int) bool {
		if snippets[i].Score != snippets[j].Score {
			return snippets[i].Score > snippets[j].Score
		}
		return snippets[i].ID < snippets[j].ID
	})

	if len(snippets) > topK {
		snippets = snippets[:topK]
	}
	return snippets, nil
}

// stopwords carry no retrieval signal and are excluded from scoring.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "be": true, "can": true,
	"do": true, "for": true, "i": true, "in": true, "is": true, "it": true,
	"my": true, "of": true, "on": true, "or": true, "please": true,
	"the": true, "to": true, "want": true, "you": true,
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	}) {
		if len(word) < 2 || stopwords[word] {
			continue
		}
		tokens[word] = true
	}
	return tokens
}

func tokenSet(text string) map[string]bool {
	return tokenize(text)
}
