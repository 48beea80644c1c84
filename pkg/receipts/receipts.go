// Package receipts records the immutable outcome of every tool invocation.
// Receipts are the only legal citation source: a candidate answer may cite a
// result only if its result_id appears in a receipt issued for the same
// session.
package receipts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// ResultPolicy states whether a result may be cited as evidence.
type ResultPolicy string

const (
	// PolicyReferenceable results are legal citation targets.
	PolicyReferenceable ResultPolicy = "referenceable"
	// PolicyLogOnly results exist for audit, never for citation.
	PolicyLogOnly ResultPolicy = "log_only"
)

// Result is one entry in a receipt's result list. Index is monotonically
// increasing within the receipt; ResultID is globally fresh.
type Result struct {
	ResultID string `json:"result_id"`
	Index    int    `json:"index"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	Note     string `json:"note,omitempty"`
	Raw      any    `json:"raw,omitempty"`
}

// Usage is LLM token usage captured from a tool response.
type Usage struct {
	Provider         string  `json:"provider,omitempty"`
	Model            string  `json:"model,omitempty"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// Receipt is the immutable record of one tool invocation.
type Receipt struct {
	ReceiptID    string       `json:"receipt_id"`
	SessionID    uuid.UUID    `json:"session_id"`
	UID          int          `json:"uid"`
	Tool         string       `json:"tool"`
	IssuedAt     time.Time    `json:"issued_at"`
	Results      []Result     `json:"results"`
	Policy       ResultPolicy `json:"result_policy"`
	CostUSD      float64      `json:"cost_usd,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
	RequestHash  string       `json:"request_hash"`
	ResponseHash string       `json:"response_hash"`
}

// HashPayload returns the SHA-256 of the RFC 8785 canonical JSON form of v.
// Canonicalization keeps receipt hashes stable across map ordering.
func HashPayload(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("receipts: marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("receipts: canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
