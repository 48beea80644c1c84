package claims_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caster-hub/caster/pkg/claims"
)

func validClaim() claims.Claim {
	return claims.Claim{
		ClaimID: "6a1f8f34-26dd-4b9e-9a0e-27e442040000",
		Text:    "The repository pins its CI toolchain version.",
		Rubric: claims.Rubric{
			Title:       "Toolchain pinning",
			Description: "Judge whether the claim is supported by the cited evidence.",
			VerdictOptions: claims.VerdictOptions{
				{Value: -1, Description: "Fail"},
				{Value: 1, Description: "Pass"},
			},
		},
		ReferenceAnswer: claims.ReferenceAnswer{
			Verdict:       1,
			Justification: "CI workflow pins the toolchain explicitly.",
		},
		BudgetUSD: 0.05,
	}
}

func TestClaimValidateAccepts(t *testing.T) {
	require.NoError(t, validClaim().Validate())
}

func TestClaimValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*claims.Claim)
	}{
		{"empty text", func(c *claims.Claim) { c.Text = "  " }},
		{"empty claim id", func(c *claims.Claim) { c.ClaimID = "" }},
		{"empty rubric title", func(c *claims.Claim) { c.Rubric.Title = "" }},
		{"no verdict options", func(c *claims.Claim) { c.Rubric.VerdictOptions = nil }},
		{"duplicate options", func(c *claims.Claim) {
			c.Rubric.VerdictOptions = claims.VerdictOptions{{Value: 1}, {Value: 1}}
		}},
		{"reference verdict outside options", func(c *claims.Claim) { c.ReferenceAnswer.Verdict = 7 }},
		{"negative budget", func(c *claims.Claim) { c.BudgetUSD = -0.01 }},
		{"inverted span", func(c *claims.Claim) {
			c.ReferenceAnswer.Spans = []claims.Span{{Excerpt: "x", Start: 5, End: 2}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claim := validClaim()
			tc.mutate(&claim)
			assert.Error(t, claim.Validate())
		})
	}
}

func TestVerdictOptionsAllows(t *testing.T) {
	options := claims.VerdictOptions{{Value: -1}, {Value: 0}, {Value: 1}}
	assert.True(t, options.Allows(0))
	assert.False(t, options.Allows(2))
}
