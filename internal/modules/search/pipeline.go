package search

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/georgemunganga/pharma-gateway/internal/modules/catalog"
	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

const (
	// DefaultRemoteTimeout bounds the backend keyword search.
	DefaultRemoteTimeout = 2 * time.Second
	remoteLimit          = 50
	// fuzzyBelow is the result count under which the fuzzy tier runs.
	fuzzyBelow = 5
)

// Remote is a backend keyword search delegate.
type Remote interface {
	BaseURL() string
	SearchDrugs(ctx context.Context, query string, limit int) ([]pharmaapi.Drug, error)
}

// Pipeline ranks catalog entries against a free-text query.
type Pipeline struct {
	remote  Remote
	timeout time.Duration
}

// NewPipeline creates a pipeline. remote may be nil for local-only ranking.
func NewPipeline(remote Remote, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &Pipeline{remote: remote, timeout: timeout}
}

// Run returns candidates matching query in relevance order. A blank query
// returns candidates unchanged. Remote hits win when there are any; remote
// failures fall through to local ranking.
func (p *Pipeline) Run(ctx context.Context, query string, candidates []catalog.Drug) []catalog.Drug {
	q := strings.TrimSpace(query)
	if q == "" {
		return candidates
	}
	if hits := p.searchRemote(ctx, q); len(hits) > 0 {
		return hits
	}
	return Rank(q, candidates)
}

func (p *Pipeline) searchRemote(ctx context.Context, q string) []catalog.Drug {
	if p.remote == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	items, err := p.remote.SearchDrugs(ctx, q, remoteLimit)
	if err != nil {
		log.Printf("search: remote search unavailable, ranking locally: %v", err)
		return nil
	}
	hits := make([]catalog.Drug, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, it := range items {
		d, err := catalog.FromSearchHit(p.remote.BaseURL(), it)
		if err != nil {
			log.Printf("search: skipping remote hit: %v", err)
			continue
		}
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		hits = append(hits, d)
	}
	return hits
}

type tier func(d fields) bool

type fields struct {
	name, desc string
}

// Rank runs the local matching tiers. Each tier skips items captured by an
// earlier one, so the output has no duplicate ids. It never returns nil.
func Rank(query string, candidates []catalog.Drug) []catalog.Drug {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		if candidates == nil {
			return []catalog.Drug{}
		}
		return candidates
	}
	words := strings.Fields(q)

	tiers := []tier{
		func(f fields) bool { return f.name == q || f.desc == q },
		func(f fields) bool { return strings.HasPrefix(f.name, q) || strings.HasPrefix(f.desc, q) },
		func(f fields) bool {
			combined := f.name + " " + f.desc
			for _, w := range words {
				if !strings.Contains(combined, w) {
					return false
				}
			}
			return true
		},
		func(f fields) bool { return strings.Contains(f.name, q) || strings.Contains(f.desc, q) },
	}

	lowered := make([]fields, len(candidates))
	for i, d := range candidates {
		lowered[i] = fields{name: strings.ToLower(d.Name), desc: strings.ToLower(d.Description)}
	}

	results := []catalog.Drug{}
	seen := make(map[int64]bool)
	for _, match := range tiers {
		for i, d := range candidates {
			if seen[d.ID] || !match(lowered[i]) {
				continue
			}
			seen[d.ID] = true
			results = append(results, d)
		}
	}

	if len(results) < fuzzyBelow {
		for _, d := range fuzzyMatch(words, candidates) {
			if !seen[d.ID] {
				seen[d.ID] = true
				results = append(results, d)
			}
		}
	}
	return results
}
