package literature

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bioagentlabs/bioagent/pkg/logger"
)

// SearchResult is the merged outcome of a multi-source search.
type SearchResult struct {
	Papers  []Paper  `json:"papers"`
	Sources []string `json:"sources"`
	Warning string   `json:"warning,omitempty"`
}

// Orchestrator fans queries out across sources, deduplicates, and ranks.
type Orchestrator struct {
	sources []Source
	oa      OALookup
	log     *slog.Logger

	// now is replaceable in tests for a deterministic recency bonus.
	now func() time.Time
}

// NewOrchestrator creates an orchestrator over the given sources.
func NewOrchestrator(sources []Source, oa OALookup) *Orchestrator {
	return &Orchestrator{
		sources: sources,
		oa:      oa,
		log:     logger.Component("literature"),
		now:     time.Now,
	}
}

// SourceNames lists the registered sources.
func (o *Orchestrator) SourceNames() []string {
	names := make([]string, 0, len(o.sources))
	for _, s := range o.sources {
		names = append(names, s.Name())
	}
	return names
}

// Search queries the named sources concurrently (all sources when names
// is empty), merges the results, and ranks them against the query.
// A failing source degrades silently; only total failure is flagged.
func (o *Orchestrator) Search(ctx context.Context, query string, sourceNames []string, perSourceCap int, yearFrom, yearTo int) (*SearchResult, error) {
	selected := o.selectSources(sourceNames)
	if len(selected) == 0 {
		return &SearchResult{Warning: "no matching sources"}, nil
	}

	opts := SearchOptions{Limit: perSourceCap, YearFrom: yearFrom, YearTo: yearTo}

	var mu sync.Mutex
	var collected []Paper
	var succeeded []string

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range selected {
		g.Go(func() error {
			papers, err := src.Search(gctx, query, opts)
			if err != nil {
				o.log.Warn("source search failed", "source", src.Name(), "error", err)
				return nil
			}
			mu.Lock()
			collected = append(collected, papers...)
			succeeded = append(succeeded, src.Name())
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SearchResult{
		Papers:  Rank(Dedup(collected), query, o.now().Year()),
		Sources: succeeded,
	}
	if len(succeeded) == 0 {
		result.Warning = "all literature sources failed"
	}
	return result, nil
}

// Paper looks up a single paper by identifier across sources that
// support identifier lookup. kind may be empty to let sources guess.
func (o *Orchestrator) Paper(ctx context.Context, id string, kind string) (*Paper, error) {
	for _, src := range o.sources {
		fetcher, ok := src.(Fetcher)
		if !ok {
			continue
		}
		paper, err := fetcher.Fetch(ctx, id, kind)
		if err != nil {
			o.log.Warn("source lookup failed", "source", src.Name(), "error", err)
			continue
		}
		if paper != nil {
			return paper, nil
		}
	}
	return nil, nil
}

// NetworkDirection selects which edges a citation walk follows.
type NetworkDirection string

const (
	NetworkIn   NetworkDirection = "in"
	NetworkOut  NetworkDirection = "out"
	NetworkBoth NetworkDirection = "both"
)

// CitationNetwork walks one hop of the citation graph around a paper,
// using the first source that exposes citation traversal.
func (o *Orchestrator) CitationNetwork(ctx context.Context, paperID string, direction NetworkDirection, cap int) (*SearchResult, error) {
	walker, walkerName := o.walker()
	if walker == nil {
		return &SearchResult{Warning: "no source supports citation traversal"}, nil
	}

	var papers []Paper
	if direction == NetworkIn || direction == NetworkBoth {
		incoming, err := walker.Citations(ctx, paperID, cap)
		if err != nil {
			return nil, err
		}
		papers = append(papers, incoming...)
	}
	if direction == NetworkOut || direction == NetworkBoth {
		outgoing, err := walker.References(ctx, paperID, cap)
		if err != nil {
			return nil, err
		}
		papers = append(papers, outgoing...)
	}

	return &SearchResult{Papers: Dedup(papers), Sources: []string{walkerName}}, nil
}

// Recommendations returns related papers for a paper id.
func (o *Orchestrator) Recommendations(ctx context.Context, paperID string, cap int) ([]Paper, error) {
	for _, src := range o.sources {
		if rec, ok := src.(Recommender); ok {
			return rec.Recommendations(ctx, paperID, cap)
		}
	}
	return nil, nil
}

// OpenAccessPDF resolves a DOI to an OA PDF URL, if one exists.
func (o *Orchestrator) OpenAccessPDF(ctx context.Context, doi string) (string, error) {
	if o.oa == nil {
		return "", nil
	}
	return o.oa.OpenAccessPDF(ctx, doi)
}

func (o *Orchestrator) selectSources(names []string) []Source {
	if len(names) == 0 {
		return o.sources
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(n)] = true
	}
	var selected []Source
	for _, src := range o.sources {
		if wanted[src.Name()] {
			selected = append(selected, src)
		}
	}
	return selected
}

func (o *Orchestrator) walker() (CitationWalker, string) {
	for _, src := range o.sources {
		if w, ok := src.(CitationWalker); ok {
			return w, src.Name()
		}
	}
	return nil, ""
}

// Dedup merges papers sharing an identity key. The record with the
// strongest identifier (DOI > PMID > title prefix) wins; non-empty
// fields from losers fill its gaps. Input order of winners is kept.
func Dedup(papers []Paper) []Paper {
	// Two records can share a DOI while only one carries it under a
	// weaker key, so every known identifier aliases to one canonical slot.
	byAlias := make(map[string]int)
	var out []Paper

	aliases := func(p *Paper) []string {
		var keys []string
		if doi := p.DOI(); doi != "" {
			keys = append(keys, "doi:"+strings.ToLower(doi))
		}
		if pmid := p.PMID(); pmid != "" {
			keys = append(keys, "pmid:"+pmid)
		}
		if t := NormalizeTitle(p.Title); t != "" {
			keys = append(keys, "title:"+t)
		}
		return keys
	}

	for _, p := range papers {
		slot := -1
		for _, alias := range aliases(&p) {
			if idx, ok := byAlias[alias]; ok {
				slot = idx
				break
			}
		}

		if slot < 0 {
			out = append(out, p)
			slot = len(out) - 1
		} else {
			existing := &out[slot]
			if p.keyRank() > existing.keyRank() {
				winner := p
				winner.merge(*existing)
				*existing = winner
			} else {
				existing.merge(p)
			}
		}

		for _, alias := range aliases(&out[slot]) {
			byAlias[alias] = slot
		}
	}

	return out
}

// Rank scores and stably sorts papers for a query. The score is
// 10 per query term found in the title, plus 5*log10(1+citations),
// plus a recency bonus of 2*max(0, 5-(currentYear-year)).
func Rank(papers []Paper, query string, currentYear int) []Paper {
	terms := strings.Fields(strings.ToLower(query))

	for i := range papers {
		papers[i].RelevanceScore = score(&papers[i], terms, currentYear)
	}

	sort.SliceStable(papers, func(i, j int) bool {
		a, b := papers[i], papers[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if a.CitationCount != b.CitationCount {
			return a.CitationCount > b.CitationCount
		}
		return a.Year > b.Year
	})

	return papers
}

func score(p *Paper, terms []string, currentYear int) float64 {
	title := strings.ToLower(p.Title)

	var s float64
	for _, term := range terms {
		if strings.Contains(title, term) {
			s += 10
		}
	}

	s += math.Log10(1+float64(p.CitationCount)) * 5

	if p.Year > 0 {
		recency := 5 - (currentYear - p.Year)
		if recency > 0 {
			s += float64(recency) * 2
		}
	}

	return s
}
