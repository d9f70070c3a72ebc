package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioagentlabs/bioagent/pkg/llms"
)

func TestTranscriptSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	tr := NewTranscript()
	tr.Append(llms.TextMessage(llms.RoleUser, "what does TP53 do?"))
	tr.Append(llms.TextMessage(llms.RoleAssistant, "TP53 encodes a tumor suppressor."))
	tr.EndRound()

	require.NoError(t, tr.Save(path))

	loaded, err := LoadTranscript(path)
	require.NoError(t, err)
	assert.Equal(t, tr.SessionID(), loaded.SessionID())
	assert.Equal(t, 1, loaded.Rounds())
	require.Equal(t, 2, loaded.Len())
	assert.Equal(t, "what does TP53 do?", loaded.Messages()[0].Text())
}

func TestTranscriptWindowClamped(t *testing.T) {
	tr := NewTranscript()
	for i := 0; i < 3; i++ {
		tr.Append(llms.TextMessage(llms.RoleUser, "m"))
	}

	assert.Len(t, tr.Window(0, 3), 3)
	assert.Len(t, tr.Window(1, 100), 2)
	assert.Nil(t, tr.Window(3, 3))
	assert.Nil(t, tr.Window(5, 2))
}

func TestArtifactRoundTrip(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	content := []byte("library(DESeq2)\ndds <- DESeqDataSetFromMatrix(...)\n")
	saved, err := store.Save("deseq script", content, ArtifactCode, "differential expression script", []string{"rnaseq"}, "session-1")
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	_, readBack, err := store.Read(saved.ID)
	require.NoError(t, err)
	// Byte-for-byte.
	assert.Equal(t, content, readBack)
}

func TestArtifactListFilters(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("volcano plot", []byte("png"), ArtifactFigure, "DEG volcano", []string{"plot"}, "")
	require.NoError(t, err)
	_, err = store.Save("qc report", []byte("text"), ArtifactReport, "fastqc summary", nil, "")
	require.NoError(t, err)

	assert.Len(t, store.List("", ""), 2)
	assert.Len(t, store.List(ArtifactFigure, ""), 1)
	assert.Len(t, store.List("", "volcano"), 1)
	assert.Len(t, store.List("", "nothing"), 0)
}

func TestArtifactIndexPersists(t *testing.T) {
	dir := t.TempDir()

	store, err := NewArtifactStore(dir)
	require.NoError(t, err)
	saved, err := store.Save("notes", []byte("x"), ArtifactNote, "", nil, "")
	require.NoError(t, err)

	reopened, err := NewArtifactStore(dir)
	require.NoError(t, err)
	_, content, err := reopened.Read(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), content)
}

func TestKnowledgeGraphDedupByIdentifier(t *testing.T) {
	g, err := NewKnowledgeGraph(filepath.Join(t.TempDir(), "kg.json"))
	require.NoError(t, err)

	a, err := g.UpsertEntity("TP53", EntityGene, map[string]string{"hgnc": "HGNC:11998"})
	require.NoError(t, err)

	// Different display name, same canonical identifier: same node.
	b, err := g.UpsertEntity("p53", EntityGene, map[string]string{"hgnc": "HGNC:11998"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	// No identifier: dedup by (name, type).
	c, err := g.UpsertEntity("TP53", EntityGene, nil)
	require.NoError(t, err)
	assert.Equal(t, a.ID, c.ID)

	// Same name, different type: distinct node.
	d, err := g.UpsertEntity("TP53", EntityProtein, map[string]string{"uniprot": "P04637"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, d.ID)

	nodes, _ := g.Len()
	assert.Equal(t, 2, nodes)
}

func TestKnowledgeGraphLinkAndQuery(t *testing.T) {
	g, err := NewKnowledgeGraph(filepath.Join(t.TempDir(), "kg.json"))
	require.NoError(t, err)

	gene, err := g.UpsertEntity("BRCA1", EntityGene, map[string]string{"symbol": "BRCA1"})
	require.NoError(t, err)
	disease, err := g.UpsertEntity("breast cancer", EntityDisease, nil)
	require.NoError(t, err)
	require.NoError(t, g.Link(gene.ID, disease.ID, "associated_with", "literature_search"))

	results := g.Query("BRCA1", "", true)
	require.Len(t, results, 1)
	require.Len(t, results[0].Neighbors, 1)
	assert.Equal(t, "breast cancer", results[0].Neighbors[0].Entity.Name)
	assert.True(t, results[0].Neighbors[0].Outgoing)

	// The disease side sees the edge as incoming.
	back := g.Query("breast cancer", EntityDisease, true)
	require.Len(t, back, 1)
	require.Len(t, back[0].Neighbors, 1)
	assert.False(t, back[0].Neighbors[0].Outgoing)
}

func TestKnowledgeGraphPersistsCycles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kg.json")

	g, err := NewKnowledgeGraph(path)
	require.NoError(t, err)
	a, err := g.UpsertEntity("AKT1", EntityGene, nil)
	require.NoError(t, err)
	b, err := g.UpsertEntity("MTOR", EntityGene, nil)
	require.NoError(t, err)
	require.NoError(t, g.Link(a.ID, b.ID, "activates", ""))
	require.NoError(t, g.Link(b.ID, a.ID, "regulates", ""))

	reopened, err := NewKnowledgeGraph(path)
	require.NoError(t, err)
	nodes, edges := reopened.Len()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 2, edges)

	results := reopened.Query("AKT1", "", true)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Neighbors, 2)
}

func TestExtractEntities(t *testing.T) {
	text := "BLAST hits: TP53 (UniProt P04637) and BRCA1. Variant rs7412 is relevant. " +
		"The file was hashed with MD5."

	entities := ExtractEntities(text)

	byName := map[string]string{}
	for _, e := range entities {
		byName[e.Name] = e.Type
	}

	assert.Equal(t, EntityProtein, byName["P04637"])
	assert.Equal(t, EntityGene, byName["TP53"])
	assert.Equal(t, EntityGene, byName["BRCA1"])
	assert.Equal(t, EntityVariant, byName["rs7412"])

	// Stoplisted tokens never become entities.
	_, ok := byName["MD5"]
	assert.False(t, ok)
}

func TestExtractEntitiesDedup(t *testing.T) {
	entities := ExtractEntities("TP53 TP53 TP53")
	assert.Len(t, entities, 1)
}

// scriptedProvider returns canned responses in order.
type scriptedProvider struct {
	responses []string
	calls     int
}

func (p *scriptedProvider) Generate(ctx context.Context, req llms.Request) (*llms.Response, error) {
	text := "summary"
	if p.calls < len(p.responses) {
		text = p.responses[p.calls]
	}
	p.calls++
	return &llms.Response{
		Message:    llms.TextMessage(llms.RoleAssistant, text),
		StopReason: llms.StopEndTurn,
	}, nil
}

func (p *scriptedProvider) ModelName() string { return "scripted" }

func TestSummarizerTriggersOnRoundBudget(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"user is analyzing TP53 variants"}}
	s, err := NewSummarizer(filepath.Join(t.TempDir(), "summaries.json"), provider, 2)
	require.NoError(t, err)

	tr := NewTranscript()
	tr.Append(llms.TextMessage(llms.RoleUser, "question one"))
	tr.Append(llms.TextMessage(llms.RoleAssistant, "answer one"))

	// First round: not due yet.
	summary, err := s.MaybeSummarize(context.Background(), tr)
	require.NoError(t, err)
	assert.Nil(t, summary)

	tr.Append(llms.TextMessage(llms.RoleUser, "question two"))
	tr.Append(llms.TextMessage(llms.RoleAssistant, "answer two"))

	summary, err = s.MaybeSummarize(context.Background(), tr)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "user is analyzing TP53 variants", summary.Text)
	assert.Equal(t, 0, summary.FromIndex)
	assert.Equal(t, 4, summary.ToIndex)

	// The window cursor advanced: the next summary starts after this one.
	tr.Append(llms.TextMessage(llms.RoleUser, "question three"))
	tr.Append(llms.TextMessage(llms.RoleAssistant, "answer three"))
	_, err = s.MaybeSummarize(context.Background(), tr)
	require.NoError(t, err)
	summary, err = s.MaybeSummarize(context.Background(), tr)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 4, summary.FromIndex)
}

func TestAssembleContextBudget(t *testing.T) {
	sections := []contextSection{
		{header: "old", body: "old summary covering the earlier variant annotation work in the session", recency: 1},
		{header: "new", body: "new summary covering the current differential expression comparison", recency: 2},
	}

	// Budget fits only one section: the newer one wins.
	out := assembleContext(sections, 20)
	assert.Contains(t, out, "new summary")
	assert.NotContains(t, out, "old summary")

	// Big budget fits both, newest first.
	out = assembleContext(sections, 1000)
	assert.Less(t, indexOf(out, "new summary"), indexOf(out, "old summary"))
}

func TestAssembleContextScoreTieBreak(t *testing.T) {
	sections := []contextSection{
		{header: "hit a", body: "weak match", score: 0.2},
		{header: "hit b", body: "strong match", score: 0.9},
	}
	out := assembleContext(sections, 1000)
	assert.Less(t, indexOf(out, "strong match"), indexOf(out, "weak match"))
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
