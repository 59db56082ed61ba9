// Package lookup resolves an extracted customer identity against the
// pharmacy directory with weighted fuzzy scoring. Used by both the detector
// and the auto-resolver.
package lookup

import (
	"sort"
	"strings"

	"backend/internal/config"
	"backend/internal/model"
	"backend/internal/pattern"
)

// Identity is the candidate customer identity extracted from a document.
type Identity struct {
	VAT      string
	Name     string
	Address  string
	ZIP      string
	City     string
	Province string
}

// Candidate is one directory match with its score breakdown.
type Candidate struct {
	CustomerKey string  `json:"customer_key"`
	Name        string  `json:"name"`
	VAT         string  `json:"vat"`
	City        string  `json:"city"`
	Score       float64 `json:"score"`
}

// Outcome classifies a scoring run.
type Outcome int

const (
	// OutcomeAutoAccept — the top candidate is unambiguous; resolve silently.
	OutcomeAutoAccept Outcome = iota
	// OutcomeReview — plausible candidates exist but need a human pick.
	OutcomeReview
	// OutcomeUnresolvable — nothing scored high enough; manual identity entry.
	OutcomeUnresolvable
)

// Result is the outcome of matching one identity against the directory.
type Result struct {
	Outcome    Outcome
	Candidates []Candidate // sorted by score descending, capped at MaxCandidates
}

// Best returns the top candidate, if any.
func (r Result) Best() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Score computes the weighted score of one directory entry against the
// extracted identity.
func Score(id Identity, c model.Customer, cfg config.LookupConfig) float64 {
	var score float64
	if pattern.Normalize(id.VAT) != "" && pattern.Normalize(id.VAT) == pattern.Normalize(c.VATNumber) {
		score += cfg.WeightVAT
	}
	score += jaccard(nameTokens(id.Name), nameTokens(c.Name)) * cfg.WeightName
	score += jaccard(pattern.Tokens(id.Address), pattern.Tokens(c.Address)) * cfg.WeightAddress
	if pattern.Normalize(id.ZIP) != "" && pattern.Normalize(id.ZIP) == pattern.Normalize(c.ZIP) {
		score += cfg.WeightZIP
	}
	if pattern.Normalize(id.City) != "" && pattern.Normalize(id.City) == pattern.Normalize(c.City) {
		score += cfg.WeightCity
	}
	return score
}

// Match scores every directory entry and classifies the result.
//
// An exact VAT hit with a clear winner short-circuits to auto-accept; the
// general thresholds are: auto-accept at >= AutoAcceptScore with a gap of at
// least AutoAcceptGap to the runner-up, review between ReviewScore and
// AutoAcceptScore, unresolvable below ReviewScore.
func Match(id Identity, directory []model.Customer, cfg config.LookupConfig) Result {
	candidates := make([]Candidate, 0, len(directory))
	for _, c := range directory {
		s := Score(id, c, cfg)
		if s <= 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			CustomerKey: c.Code,
			Name:        c.Name,
			VAT:         c.VATNumber,
			City:        c.City,
			Score:       s,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	max := cfg.MaxCandidates
	if max <= 0 {
		max = 5
	}
	if len(candidates) > max {
		candidates = candidates[:max]
	}

	if len(candidates) == 0 {
		return Result{Outcome: OutcomeUnresolvable}
	}

	top := candidates[0].Score
	gap := top
	if len(candidates) > 1 {
		gap = top - candidates[1].Score
	}

	switch {
	case top >= cfg.AutoAcceptScore && gap >= cfg.AutoAcceptGap:
		return Result{Outcome: OutcomeAutoAccept, Candidates: candidates}
	case top >= cfg.ReviewScore:
		return Result{Outcome: OutcomeReview, Candidates: candidates}
	default:
		return Result{Outcome: OutcomeUnresolvable, Candidates: candidates}
	}
}

// nameAliases maps common pharmacy-name abbreviations to their long form so
// "Farm. Rossi S.R.L." and "FARMACIA ROSSI SRL" tokenize identically.
var nameAliases = map[string]string{
	"farm": "farmacia",
	"fcia": "farmacia",
	"dott": "dottore",
	"dr":   "dottore",
	"snc":  "snc",
	"sas":  "sas",
}

// nameTokens canonicalizes a business name: normalized tokens, runs of
// single letters fused (s r l -> srl), abbreviations expanded.
func nameTokens(name string) []string {
	fields := strings.Fields(pattern.Normalize(name))
	fused := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		if len(fields[i]) == 1 {
			j := i
			var run strings.Builder
			for j < len(fields) && len(fields[j]) == 1 {
				run.WriteString(fields[j])
				j++
			}
			if j-i > 1 {
				fused = append(fused, run.String())
				i = j - 1
				continue
			}
		}
		fused = append(fused, fields[i])
	}

	seen := make(map[string]struct{}, len(fused))
	out := make([]string, 0, len(fused))
	for _, t := range fused {
		if long, ok := nameAliases[t]; ok {
			t = long
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// jaccard computes token-set similarity in [0,1]. Both inputs are sorted
// unique token slices.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	var inter int
	for _, t := range b {
		if _, ok := set[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
