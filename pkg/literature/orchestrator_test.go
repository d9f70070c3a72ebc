package literature

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves canned papers, optionally failing.
type fakeSource struct {
	name   string
	papers []Paper
	err    error
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Search(ctx context.Context, query string, opts SearchOptions) ([]Paper, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.papers, nil
}

func paperWith(title string, ids map[string]string) Paper {
	p := Paper{Title: title}
	for kind, value := range ids {
		p.SetIdentifier(kind, value)
	}
	return p
}

func TestDedupMergesByDOI(t *testing.T) {
	papers := []Paper{
		paperWith("TP53 in cancer", map[string]string{IDDOI: "10.1/abc"}),
		paperWith("TP53 in cancer (preprint)", map[string]string{IDDOI: "10.1/ABC"}),
	}

	out := Dedup(papers)
	require.Len(t, out, 1)
	assert.Equal(t, "TP53 in cancer", out[0].Title)
}

func TestDedupAliasChain(t *testing.T) {
	// Record A carries only a PMID; record B carries the same PMID plus
	// a DOI; record C carries only that DOI. All three are one paper.
	a := paperWith("Gene expression atlas", map[string]string{IDPMID: "12345"})
	b := paperWith("Gene expression atlas", map[string]string{IDPMID: "12345", IDDOI: "10.1/xyz"})
	c := paperWith("", map[string]string{IDDOI: "10.1/xyz"})
	c.Abstract = "only the DOI record has the abstract"

	out := Dedup([]Paper{a, b, c})
	require.Len(t, out, 1)

	merged := out[0]
	assert.Equal(t, "10.1/xyz", merged.DOI())
	assert.Equal(t, "12345", merged.PMID())
	assert.Equal(t, "only the DOI record has the abstract", merged.Abstract)
}

func TestDedupByNormalizedTitle(t *testing.T) {
	papers := []Paper{
		{Title: "Single-cell RNA sequencing of the tumor microenvironment"},
		{Title: "Single-Cell RNA Sequencing of the Tumor Microenvironment."},
		{Title: "A completely different study"},
	}

	out := Dedup(papers)
	assert.Len(t, out, 2)
}

func TestDedupStrongerKeyWins(t *testing.T) {
	weak := Paper{Title: "CRISPR screening methods", Year: 2020}
	strong := paperWith("CRISPR screening methods", map[string]string{IDDOI: "10.1/crispr"})
	strong.CitationCount = 50

	out := Dedup([]Paper{weak, strong})
	require.Len(t, out, 1)
	assert.Equal(t, "10.1/crispr", out[0].DOI())
	assert.Equal(t, 2020, out[0].Year) // filled from the weak record
	assert.Equal(t, 50, out[0].CitationCount)
}

func TestRankOrdersByTermsCitationsRecency(t *testing.T) {
	currentYear := 2026
	papers := []Paper{
		{Title: "Unrelated metabolomics work", Year: 2025, CitationCount: 10},
		{Title: "TP53 mutation landscape", Year: 2010, CitationCount: 1000},
		{Title: "TP53 mutation hotspots in cancer", Year: 2025, CitationCount: 100},
	}

	ranked := Rank(papers, "TP53 mutation", currentYear)

	// Both term hits beat the citation giant's log-scaled count only
	// when recency adds up; the old heavily-cited paper still outranks
	// the unrelated one.
	assert.Equal(t, "TP53 mutation hotspots in cancer", ranked[0].Title)
	assert.Equal(t, "TP53 mutation landscape", ranked[1].Title)
	assert.Equal(t, "Unrelated metabolomics work", ranked[2].Title)
	assert.Greater(t, ranked[0].RelevanceScore, ranked[1].RelevanceScore)
}

func TestSearchDegradesOnPartialFailure(t *testing.T) {
	good := &fakeSource{name: "good", papers: []Paper{{Title: "A result"}}}
	bad := &fakeSource{name: "bad", err: fmt.Errorf("rate limited")}

	o := NewOrchestrator([]Source{good, bad}, nil)
	o.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	result, err := o.Search(context.Background(), "anything", nil, 10, 0, 0)
	require.NoError(t, err)
	assert.Len(t, result.Papers, 1)
	assert.Equal(t, []string{"good"}, result.Sources)
	assert.Empty(t, result.Warning)
}

func TestSearchFlagsTotalFailure(t *testing.T) {
	bad := &fakeSource{name: "bad", err: fmt.Errorf("down")}

	o := NewOrchestrator([]Source{bad}, nil)
	result, err := o.Search(context.Background(), "anything", nil, 10, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, result.Papers)
	assert.Equal(t, "all literature sources failed", result.Warning)
}

func TestSearchSelectsNamedSources(t *testing.T) {
	a := &fakeSource{name: "a", papers: []Paper{{Title: "from a"}}}
	b := &fakeSource{name: "b", papers: []Paper{{Title: "from b"}}}

	o := NewOrchestrator([]Source{a, b}, nil)
	result, err := o.Search(context.Background(), "q", []string{"b"}, 10, 0, 0)
	require.NoError(t, err)
	require.Len(t, result.Papers, 1)
	assert.Equal(t, "from b", result.Papers[0].Title)
}

func TestCiteIsIdempotent(t *testing.T) {
	m := NewCitationManager(NatureStyle{})

	p1 := paperWith("First paper", map[string]string{IDDOI: "10.1/one"})
	p2 := paperWith("Second paper", map[string]string{IDDOI: "10.1/two"})

	first := m.Cite(p1)
	second := m.Cite(p2)
	again := m.Cite(p1)

	assert.Equal(t, first, again)
	assert.NotEqual(t, first, second)
	assert.Len(t, m.Citations(), 2)
}

func TestFormatReferenceListRejectsStyleMismatch(t *testing.T) {
	m := NewCitationManager(NatureStyle{})
	m.Cite(Paper{Title: "Some paper", Year: 2024})

	_, err := m.FormatReferenceList("apa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "style mismatch")

	refs, err := m.FormatReferenceList("nature")
	require.NoError(t, err)
	assert.Contains(t, refs, "## References")
	assert.Contains(t, refs, "Some paper")
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t,
		NormalizeTitle("Single Cell   RNA\tSequencing!"),
		NormalizeTitle("single cell rna sequencing"))
}

// fakeWalker is a source that also supports citation traversal.
type fakeWalker struct {
	fakeSource
	citing []Paper
	cited  []Paper
}

func (s *fakeWalker) Citations(ctx context.Context, id string, limit int) ([]Paper, error) {
	return s.citing, nil
}

func (s *fakeWalker) References(ctx context.Context, id string, limit int) ([]Paper, error) {
	return s.cited, nil
}

func TestCitationNetworkReportsRespondingSource(t *testing.T) {
	plain := &fakeSource{name: "plain"}
	w := &fakeWalker{
		fakeSource: fakeSource{name: "europe_pmc"},
		citing:     []Paper{{Title: "Cites it"}},
		cited:      []Paper{{Title: "Cited by it"}},
	}
	o := NewOrchestrator([]Source{plain, w}, nil)

	res, err := o.CitationNetwork(context.Background(), "10.1000/x", NetworkBoth, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"europe_pmc"}, res.Sources)
	assert.Len(t, res.Papers, 2)
}

func TestCitationNetworkWithoutWalker(t *testing.T) {
	o := NewOrchestrator([]Source{&fakeSource{name: "plain"}}, nil)

	res, err := o.CitationNetwork(context.Background(), "10.1000/x", NetworkBoth, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Papers)
	assert.NotEmpty(t, res.Warning)
}
