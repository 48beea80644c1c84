package platform

import (
	"sort"
	"strconv"

	"github.com/caster-hub/caster/pkg/batch"
)

// candidateTotal is one candidate's aggregate over a batch.
type candidateTotal struct {
	uid   int
	total float64
	order int
}

// RankResults folds a batch's unit results into a ranking of candidate
// identities: total score descending, earliest submission first on exact
// ties. The tie rule means an incumbent champion can only be displaced by a
// strictly better challenger.
func RankResults(results []batch.MinerTaskResult, submissionOrder func(uid int) int) []string {
	totals := make(map[int]*candidateTotal)
	for _, r := range results {
		t, ok := totals[r.UID]
		if !ok {
			t = &candidateTotal{uid: r.UID, order: submissionOrder(r.UID)}
			totals[r.UID] = t
		}
		t.total += r.Score.Total()
	}

	ranked := make([]*candidateTotal, 0, len(totals))
	for _, t := range totals {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].total != ranked[j].total {
			return ranked[i].total > ranked[j].total
		}
		return ranked[i].order < ranked[j].order
	})

	out := make([]string, len(ranked))
	for i, t := range ranked {
		out[i] = strconv.Itoa(t.uid)
	}
	return out
}
