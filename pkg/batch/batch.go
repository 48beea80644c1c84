// Package batch drives the evaluation of platform-issued batches: every
// candidate script is run against every claim under bounded concurrency,
// graded, and the results folded into a progress view the platform can poll.
package batch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caster-hub/caster/pkg/claims"
	"github.com/caster-hub/caster/pkg/scoring"
	"github.com/caster-hub/caster/pkg/tools"
)

// Status is the batch lifecycle state.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrUnknownBatch is returned when no batch exists under the id.
var ErrUnknownBatch = errors.New("batch: unknown batch")

// Candidate is one competing script within a batch.
type Candidate struct {
	UID         int    `json:"uid"`
	ArtifactID  string `json:"artifact_id"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// Batch is one evaluation assignment from the platform.
type Batch struct {
	BatchID    string         `json:"batch_id"`
	Entrypoint string         `json:"entrypoint"`
	CreatedAt  time.Time      `json:"created_at"`
	CutoffAt   time.Time      `json:"cutoff_at,omitempty"`
	Claims     []claims.Claim `json:"claims"`
	Candidates []Candidate    `json:"candidates"`
}

// Validate enforces batch integrity before acceptance.
func (b Batch) Validate() error {
	if strings.TrimSpace(b.BatchID) == "" {
		return errors.New("batch: batch_id must not be empty")
	}
	if strings.TrimSpace(b.Entrypoint) == "" {
		return errors.New("batch: entrypoint must not be empty")
	}
	if len(b.Claims) == 0 {
		return errors.New("batch: at least one claim is required")
	}
	if len(b.Candidates) == 0 {
		return errors.New("batch: at least one candidate is required")
	}
	for _, claim := range b.Claims {
		if err := claim.Validate(); err != nil {
			return fmt.Errorf("batch: claim %s: %w", claim.ClaimID, err)
		}
	}
	for _, candidate := range b.Candidates {
		if strings.TrimSpace(candidate.ArtifactID) == "" {
			return fmt.Errorf("batch: candidate %d missing artifact_id", candidate.UID)
		}
		if strings.TrimSpace(candidate.ContentHash) == "" {
			return fmt.Errorf("batch: candidate %d missing content_hash", candidate.UID)
		}
	}
	return nil
}

// CriterionEvaluation is the candidate's answer as recorded in the result.
type CriterionEvaluation struct {
	Verdict       int               `json:"verdict"`
	Justification string            `json:"justification"`
	Citations     []claims.Citation `json:"citations,omitempty"`
}

// MinerTaskResult is the graded outcome of one (candidate, claim) unit.
// Exactly one is produced per pair per batch, failures included.
type MinerTaskResult struct {
	BatchID             string              `json:"batch_id"`
	UID                 int                 `json:"uid"`
	ClaimID             string              `json:"claim_id"`
	CriterionEvaluation CriterionEvaluation `json:"criterion_evaluation"`
	Score               scoring.Score       `json:"score"`
	Usage               tools.SessionUsage  `json:"usage"`
	SessionID           uuid.UUID           `json:"session"`
}
