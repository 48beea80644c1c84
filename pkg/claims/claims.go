// Package claims holds the reference claim and rubric model shared by the
// platform and validator services.
package claims

import (
	"errors"
	"fmt"
	"strings"
)

// VerdictOption is one legal verdict value with its human description.
type VerdictOption struct {
	Value       int    `json:"value"`
	Description string `json:"description"`
}

// VerdictOptions is the closed set of verdicts a rubric admits.
type VerdictOptions []VerdictOption

// Allows reports whether v is a legal verdict under these options.
func (o VerdictOptions) Allows(v int) bool {
	for _, option := range o {
		if option.Value == v {
			return true
		}
	}
	return false
}

// Validate checks option set integrity: non-empty, no duplicate values.
func (o VerdictOptions) Validate() error {
	if len(o) == 0 {
		return errors.New("claims: rubric must define at least one verdict option")
	}
	seen := make(map[int]bool, len(o))
	for _, option := range o {
		if seen[option.Value] {
			return fmt.Errorf("claims: duplicate verdict option %d", option.Value)
		}
		seen[option.Value] = true
	}
	return nil
}

// Rubric is the evaluation rubric attached to each claim.
type Rubric struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	VerdictOptions VerdictOptions `json:"verdict_options"`
}

// Citation is reference citation metadata. ReceiptID/ResultID bind a citation
// to a tool receipt issued during the same session.
type Citation struct {
	ReceiptID string `json:"receipt_id,omitempty"`
	ResultID  string `json:"result_id,omitempty"`
	URL       string `json:"url,omitempty"`
	Note      string `json:"note,omitempty"`
}

// Span is an indexed excerpt within the evaluated text.
type Span struct {
	Excerpt string `json:"excerpt"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// ReferenceAnswer is the curated answer evaluations are graded against.
type ReferenceAnswer struct {
	Verdict       int        `json:"verdict"`
	Justification string     `json:"justification"`
	Citations     []Citation `json:"citations,omitempty"`
	Spans         []Span     `json:"spans,omitempty"`
}

// Claim is a factual statement plus rubric to be judged, with the reference
// answer and the per-session tool budget for candidates evaluating it.
type Claim struct {
	ClaimID         string          `json:"claim_id"`
	Text            string          `json:"text"`
	Rubric          Rubric          `json:"rubric"`
	ReferenceAnswer ReferenceAnswer `json:"reference_answer"`
	BudgetUSD       float64         `json:"budget_usd"`
	Context         map[string]any  `json:"context,omitempty"`
}

// Validate enforces claim integrity. Claims are immutable once part of an
// accepted batch, so validation happens exactly once at intake.
func (c Claim) Validate() error {
	if strings.TrimSpace(c.ClaimID) == "" {
		return errors.New("claims: claim_id must not be empty")
	}
	if strings.TrimSpace(c.Text) == "" {
		return errors.New("claims: claim text must not be empty")
	}
	if strings.TrimSpace(c.Rubric.Title) == "" {
		return errors.New("claims: rubric title must not be empty")
	}
	if strings.TrimSpace(c.Rubric.Description) == "" {
		return errors.New("claims: rubric description must not be empty")
	}
	if err := c.Rubric.VerdictOptions.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ReferenceAnswer.Justification) == "" {
		return errors.New("claims: reference justification must not be empty")
	}
	if !c.Rubric.VerdictOptions.Allows(c.ReferenceAnswer.Verdict) {
		return fmt.Errorf("claims: reference verdict %d is not a rubric option", c.ReferenceAnswer.Verdict)
	}
	if c.BudgetUSD < 0 {
		return errors.New("claims: budget_usd must be non-negative")
	}
	for _, span := range c.ReferenceAnswer.Spans {
		if span.Start < 0 || span.End < span.Start {
			return fmt.Errorf("claims: invalid span [%d,%d]", span.Start, span.End)
		}
	}
	return nil
}
