package search

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/georgemunganga/pharma-gateway/internal/modules/catalog"
)

const (
	fuzzyThreshold   = 0.4
	fuzzyMinTokenLen = 2
)

type scored struct {
	drug  catalog.Drug
	score float64
}

// fuzzyMatch keeps candidates where every query token has a word in name or
// description within the normalised edit-distance threshold. Best matches
// come first; equal scores keep input order.
func fuzzyMatch(tokens []string, candidates []catalog.Drug) []catalog.Drug {
	var usable []string
	for _, t := range tokens {
		if utf8.RuneCountInString(t) >= fuzzyMinTokenLen {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return nil
	}

	var matches []scored
	for _, d := range candidates {
		words := splitWords(strings.ToLower(d.Name + " " + d.Description))
		total := 0.0
		ok := true
		for _, t := range usable {
			best := bestDistance(t, words)
			if best > fuzzyThreshold {
				ok = false
				break
			}
			total += best
		}
		if ok {
			matches = append(matches, scored{drug: d, score: total / float64(len(usable))})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool { return matches[a].score < matches[b].score })
	out := make([]catalog.Drug, len(matches))
	for i, m := range matches {
		out[i] = m.drug
	}
	return out
}

// bestDistance is the smallest normalised distance from token to any word;
// 0 when a word contains the token outright.
func bestDistance(token string, words []string) float64 {
	best := 1.0
	tokenLen := utf8.RuneCountInString(token)
	for _, w := range words {
		if strings.Contains(w, token) {
			return 0
		}
		longest := tokenLen
		if n := utf8.RuneCountInString(w); n > longest {
			longest = n
		}
		d := float64(levenshtein.ComputeDistance(token, w)) / float64(longest)
		if d < best {
			best = d
		}
	}
	return best
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
