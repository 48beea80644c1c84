package scoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/caster-hub/caster/pkg/claims"
	"github.com/caster-hub/caster/pkg/receipts"
	"github.com/caster-hub/caster/pkg/scoring"
)

func passFailClaim() claims.Claim {
	return claims.Claim{
		ClaimID: "claim-1",
		Text:    "The sky is blue.",
		Rubric: claims.Rubric{
			Title:       "Accuracy",
			Description: "Is the statement accurate?",
			VerdictOptions: claims.VerdictOptions{
				{Value: -1, Description: "Fail"},
				{Value: 1, Description: "Pass"},
			},
		},
		ReferenceAnswer: claims.ReferenceAnswer{Verdict: 1, Justification: "Rayleigh scattering."},
		BudgetUSD:       0.10,
	}
}

func logWithResult(session uuid.UUID, resultID string) *receipts.Log {
	log := receipts.NewLog()
	log.Record(receipts.Receipt{
		ReceiptID: uuid.NewString(),
		SessionID: session,
		Tool:      "search_web",
		IssuedAt:  time.Now(),
		Results:   []receipts.Result{{ResultID: resultID, Index: 0}},
		Policy:    receipts.PolicyReferenceable,
	})
	return log
}

func TestCorrectVerdictWithValidCitation(t *testing.T) {
	session := uuid.New()
	log := logWithResult(session, "res-1")
	scorer := scoring.NewScorer(log, scoring.StaticJudge(true), nil)

	score := scorer.Score(context.Background(), passFailClaim(), scoring.CandidateAnswer{
		Verdict:       1,
		Justification: "Scattering favors short wavelengths.",
		Citations:     []claims.Citation{{ResultID: "res-1"}},
	}, session)

	assert.InDelta(t, 1.0, score.VerdictScore, 1e-9)
	assert.Empty(t, score.FailedCitationIDs)
	assert.True(t, score.JustificationPass)
	assert.InDelta(t, 1.0, score.Total(), 1e-9)
	assert.Empty(t, score.ErrorCode)
}

func TestInvalidVerdictScoresZero(t *testing.T) {
	session := uuid.New()
	scorer := scoring.NewScorer(receipts.NewLog(), scoring.StaticJudge(true), nil)

	score := scorer.Score(context.Background(), passFailClaim(), scoring.CandidateAnswer{
		Verdict: 2,
	}, session)

	assert.Equal(t, scoring.ErrorCodeInvalidVerdict, score.ErrorCode)
	assert.Zero(t, score.VerdictScore)
	assert.Zero(t, score.Total())
}

func TestWrongVerdictNoPartialCredit(t *testing.T) {
	session := uuid.New()
	scorer := scoring.NewScorer(receipts.NewLog(), scoring.StaticJudge(false), nil)

	score := scorer.Score(context.Background(), passFailClaim(), scoring.CandidateAnswer{
		Verdict: -1,
	}, session)

	assert.Zero(t, score.VerdictScore)
	assert.Empty(t, score.ErrorCode)
}

func TestUnissuedCitationFlagged(t *testing.T) {
	session := uuid.New()
	log := logWithResult(session, "res-1")
	scorer := scoring.NewScorer(log, scoring.StaticJudge(true), nil)

	score := scorer.Score(context.Background(), passFailClaim(), scoring.CandidateAnswer{
		Verdict:   1,
		Citations: []claims.Citation{{ResultID: "res-1"}, {ResultID: "forged"}},
	}, session)

	assert.Equal(t, []string{"forged"}, score.FailedCitationIDs)
	// One valid citation remains, so support still passes.
	assert.True(t, score.JustificationPass)
}

func TestAllCitationsForgedNoSupport(t *testing.T) {
	session := uuid.New()
	scorer := scoring.NewScorer(receipts.NewLog(), scoring.StaticJudge(true), nil)

	score := scorer.Score(context.Background(), passFailClaim(), scoring.CandidateAnswer{
		Verdict:   1,
		Citations: []claims.Citation{{ResultID: "forged"}},
	}, session)

	assert.Equal(t, []string{"forged"}, score.FailedCitationIDs)
	assert.False(t, score.JustificationPass)
	assert.Zero(t, score.SupportScore)
	assert.InDelta(t, 0.5, score.Total(), 1e-9)
}

func TestCitationFromOtherSessionFlagged(t *testing.T) {
	session := uuid.New()
	other := uuid.New()
	log := logWithResult(other, "res-1")
	scorer := scoring.NewScorer(log, scoring.StaticJudge(true), nil)

	score := scorer.Score(context.Background(), passFailClaim(), scoring.CandidateAnswer{
		Verdict:   1,
		Citations: []claims.Citation{{ResultID: "res-1"}},
	}, session)

	assert.Equal(t, []string{"res-1"}, score.FailedCitationIDs)
	assert.False(t, score.JustificationPass)
}

func TestJudgeRejectionBlocksSupport(t *testing.T) {
	session := uuid.New()
	log := logWithResult(session, "res-1")
	scorer := scoring.NewScorer(log, scoring.StaticJudge(false), nil)

	score := scorer.Score(context.Background(), passFailClaim(), scoring.CandidateAnswer{
		Verdict:   1,
		Citations: []claims.Citation{{ResultID: "res-1"}},
	}, session)

	assert.InDelta(t, 1.0, score.VerdictScore, 1e-9)
	assert.False(t, score.JustificationPass)
	assert.InDelta(t, 0.5, score.Total(), 1e-9)
}

type erroringJudge struct{}

func (erroringJudge) Judge(context.Context, claims.Claim, scoring.CandidateAnswer) (bool, error) {
	return false, errors.New("judge backend unreachable")
}

func TestJudgeErrorIsRecorded(t *testing.T) {
	session := uuid.New()
	log := logWithResult(session, "res-1")
	scorer := scoring.NewScorer(log, erroringJudge{}, nil)

	score := scorer.Score(context.Background(), passFailClaim(), scoring.CandidateAnswer{
		Verdict:   1,
		Citations: []claims.Citation{{ResultID: "res-1"}},
	}, session)

	// Support is denied, and the score says why.
	assert.False(t, score.JustificationPass)
	assert.Zero(t, score.SupportScore)
	assert.Equal(t, scoring.ErrorCodeJudgeUnavailable, score.ErrorCode)
	assert.Contains(t, score.ErrorMessage, "judge backend unreachable")
	assert.InDelta(t, 1.0, score.VerdictScore, 1e-9)
}

type halfCreditPolicy struct{}

func (halfCreditPolicy) VerdictScore(_ claims.VerdictOptions, reference, candidate int) float64 {
	if reference == candidate {
		return 1
	}
	return 0.5
}

func TestOrdinalPolicyPluggable(t *testing.T) {
	session := uuid.New()
	scorer := scoring.NewScorer(receipts.NewLog(), scoring.StaticJudge(false), halfCreditPolicy{})

	score := scorer.Score(context.Background(), passFailClaim(), scoring.CandidateAnswer{Verdict: -1}, session)
	assert.InDelta(t, 0.5, score.VerdictScore, 1e-9)
}

func TestZeroScore(t *testing.T) {
	score := scoring.ZeroScore("timeout", "execution exceeded 2m0s")
	assert.Equal(t, "timeout", score.ErrorCode)
	assert.Zero(t, score.Total())
	assert.NotNil(t, score.FailedCitationIDs)
}
