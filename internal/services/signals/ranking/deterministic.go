package ranking

import (
	"sort"

	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

// Scored is a candidate with its lexical score and optional rationale.
type Scored struct {
	Candidate domain.Candidate
	Score     int
	Rationale string
}

// Deterministic scores candidates by how many distinct query tokens appear
// in their name or description. Candidates with no overlap are dropped.
// Ties prefer the narrower visibility scope, then the smaller id.
func Deterministic(query string, candidates []domain.Candidate) []Scored {
	return order(scoreAll(Tokenize(query), candidates), false)
}

func scoreAll(queryTokens []string, candidates []domain.Candidate) []Scored {
	scored := make([]Scored, 0, len(candidates))
	for _, candidate := range candidates {
		scored = append(scored, Scored{
			Candidate: candidate,
			Score:     overlap(queryTokens, candidate.Signal),
		})
	}
	return scored
}

// order sorts scored in place. Zero scores are kept only when keepZero is set.
func order(scored []Scored, keepZero bool) []Scored {
	if !keepZero {
		kept := scored[:0]
		for _, item := range scored {
			if item.Score > 0 {
				kept = append(kept, item)
			}
		}
		scored = kept
	}
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		sa, sb := a.Candidate.Signal.Visibility.Specificity(), b.Candidate.Signal.Visibility.Specificity()
		if sa != sb {
			return sa < sb
		}
		return a.Candidate.Signal.ID < b.Candidate.Signal.ID
	})
	return scored
}

func overlap(queryTokens []string, signal domain.Signal) int {
	if len(queryTokens) == 0 {
		return 0
	}
	fields := Tokenize(signal.Name + " " + signal.Description)
	present := make(map[string]struct{}, len(fields))
	for _, token := range fields {
		present[token] = struct{}{}
	}
	score := 0
	for _, token := range queryTokens {
		if _, ok := present[token]; ok {
			score++
		}
	}
	return score
}
