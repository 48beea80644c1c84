// Package scoring grades candidate answers against a claim's reference
// answer. The verdict half is mechanical; the justification half consults an
// external judge collaborator. Citation validity is checked against the
// session's receipt log: only results actually issued to the session count
// as support.
package scoring

import (
	"context"

	"github.com/google/uuid"

	"github.com/caster-hub/caster/pkg/claims"
)

// Error codes recorded on scores that could not be fully graded.
const (
	// ErrorCodeInvalidVerdict marks answers whose verdict is outside the
	// rubric's option set.
	ErrorCodeInvalidVerdict = "invalid_verdict"
	// ErrorCodeJudgeUnavailable marks scores graded without a justification
	// judgment because the judge itself errored.
	ErrorCodeJudgeUnavailable = "judge_unavailable"
)

const (
	verdictWeight = 0.5
	supportWeight = 0.5
)

// CandidateAnswer is the structured result a sandboxed script returns.
type CandidateAnswer struct {
	Verdict       int              `json:"verdict"`
	Justification string           `json:"justification"`
	Citations     []claims.Citation `json:"citations,omitempty"`
}

// Score is the graded outcome of one (candidate, claim) unit.
type Score struct {
	VerdictScore      float64  `json:"verdict_score"`
	SupportScore      float64  `json:"support_score"`
	JustificationPass bool     `json:"justification_pass"`
	FailedCitationIDs []string `json:"failed_citation_ids"`
	ErrorCode         string   `json:"error_code,omitempty"`
	ErrorMessage      string   `json:"error_message,omitempty"`
}

// Total is the unit's contribution to the candidate's batch total.
func (s Score) Total() float64 {
	return s.VerdictScore*verdictWeight + s.SupportScore*supportWeight
}

// ZeroScore returns a failing score carrying an execution error.
func ZeroScore(code, message string) Score {
	return Score{FailedCitationIDs: []string{}, ErrorCode: code, ErrorMessage: message}
}

// ReceiptChecker answers whether a result id was issued to a session.
// Implemented by the receipts log.
type ReceiptChecker interface {
	HasResult(sessionID uuid.UUID, resultID string) bool
}

// JustificationJudge decides whether a justification adequately supports the
// verdict. The judgment model itself is an external collaborator.
type JustificationJudge interface {
	Judge(ctx context.Context, claim claims.Claim, answer CandidateAnswer) (bool, error)
}

// StaticJudge returns a fixed judgment. Useful in tests and for deployments
// that grade support offline.
type StaticJudge bool

// Judge returns the static verdict.
func (j StaticJudge) Judge(context.Context, claims.Claim, CandidateAnswer) (bool, error) {
	return bool(j), nil
}

// OrdinalPolicy maps (reference, candidate) verdicts to a verdict score in
// [0,1]. Policies must be deterministic; partial-credit rules are documented
// per rubric.
type OrdinalPolicy interface {
	VerdictScore(options claims.VerdictOptions, reference, candidate int) float64
}

// ExactMatchPolicy is the default: full credit on exact match, zero
// otherwise.
type ExactMatchPolicy struct{}

// VerdictScore returns 1 on exact match.
func (ExactMatchPolicy) VerdictScore(_ claims.VerdictOptions, reference, candidate int) float64 {
	if reference == candidate {
		return 1
	}
	return 0
}

// Scorer grades candidate answers.
type Scorer struct {
	receipts ReceiptChecker
	judge    JustificationJudge
	policy   OrdinalPolicy
}

// NewScorer wires the scorer. judge may be nil, in which case
// justification_pass follows verdict correctness; policy defaults to exact
// match.
func NewScorer(receipts ReceiptChecker, judge JustificationJudge, policy OrdinalPolicy) *Scorer {
	if policy == nil {
		policy = ExactMatchPolicy{}
	}
	return &Scorer{receipts: receipts, judge: judge, policy: policy}
}

// Score grades one candidate answer for the given claim and session.
func (s *Scorer) Score(ctx context.Context, claim claims.Claim, answer CandidateAnswer, sessionID uuid.UUID) Score {
	score := Score{FailedCitationIDs: []string{}}

	if !claim.Rubric.VerdictOptions.Allows(answer.Verdict) {
		score.ErrorCode = ErrorCodeInvalidVerdict
		score.ErrorMessage = "verdict is not among the rubric's verdict options"
		return score
	}
	score.VerdictScore = s.policy.VerdictScore(claim.Rubric.VerdictOptions, claim.ReferenceAnswer.Verdict, answer.Verdict)

	validSupport := false
	for _, citation := range answer.Citations {
		if citation.ResultID == "" || s.receipts == nil || !s.receipts.HasResult(sessionID, citation.ResultID) {
			score.FailedCitationIDs = append(score.FailedCitationIDs, citation.ResultID)
			continue
		}
		validSupport = true
	}

	pass := false
	if s.judge != nil {
		judged, err := s.judge.Judge(ctx, claim, answer)
		if err != nil {
			// A failing judge denies support but must stay distinguishable
			// from a failed judgment.
			score.ErrorCode = ErrorCodeJudgeUnavailable
			score.ErrorMessage = "justification judge failed: " + err.Error()
		} else {
			pass = judged
		}
	} else {
		pass = score.VerdictScore > 0
	}
	// Support requires both a passing judgment and at least one valid
	// citation when any citations were offered.
	if pass && (len(answer.Citations) == 0 || validSupport) {
		score.JustificationPass = true
		score.SupportScore = 1
	}
	return score
}
