package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bioagentlabs/bioagent/pkg/config"
	"github.com/bioagentlabs/bioagent/pkg/embedder"
	"github.com/bioagentlabs/bioagent/pkg/llms"
	"github.com/bioagentlabs/bioagent/pkg/logger"
)

// retrievalK is how many index hits feed the enhanced context.
const retrievalK = 5

// Memory aggregates the per-session stores behind one facade. Any
// store can be absent (disabled or failed to open); every method
// degrades to a no-op for missing stores. Memory failures are never
// fatal to a turn.
type Memory struct {
	cfg *config.Config
	log *slog.Logger

	Transcript *Transcript
	summarizer *Summarizer
	artifacts  *ArtifactStore
	graph      *KnowledgeGraph
	index      *Index
}

// New opens the memory subsystem for one session. Store-open failures
// are logged and leave that store disabled; they do not fail startup.
func New(cfg *config.Config, provider llms.Provider, emb embedder.Embedder) *Memory {
	m := &Memory{
		cfg:        cfg,
		log:        logger.Component("memory"),
		Transcript: NewTranscript(),
	}

	if !cfg.EnableMemory {
		return m
	}

	if cfg.EnableSummaries && provider != nil {
		s, err := NewSummarizer(cfg.SummariesPath(), provider, cfg.SummaryRounds)
		if err != nil {
			m.log.Warn("summaries disabled", "error", err)
		} else {
			m.summarizer = s
		}
	}

	if cfg.EnableArtifacts {
		a, err := NewArtifactStore(cfg.ArtifactsDir())
		if err != nil {
			m.log.Warn("artifact store disabled", "error", err)
		} else {
			m.artifacts = a
		}
	}

	if cfg.EnableKG {
		g, err := NewKnowledgeGraph(cfg.KnowledgeGraphPath())
		if err != nil {
			m.log.Warn("knowledge graph disabled", "error", err)
		} else {
			m.graph = g
		}
	}

	if cfg.EnableRAG && emb != nil {
		x, err := NewIndex(cfg.IndexDir(), emb)
		if err != nil {
			m.log.Warn("retrieval index disabled", "error", err)
		} else {
			m.index = x
		}
	}

	return m
}

// Graph exposes the knowledge graph, which may be nil when disabled.
func (m *Memory) Graph() *KnowledgeGraph { return m.graph }

// SaveArtifact stores content and indexes its descriptor.
func (m *Memory) SaveArtifact(name string, content []byte, artifactType, description string, tags []string) (*Artifact, error) {
	if m.artifacts == nil {
		return nil, fmt.Errorf("artifact store is disabled")
	}

	artifact, err := m.artifacts.Save(name, content, artifactType, description, tags, m.Transcript.SessionID())
	if err != nil {
		return nil, err
	}

	if m.index != nil {
		descriptor := artifact.Name
		if artifact.Description != "" {
			descriptor += ": " + artifact.Description
		}
		m.index.Add(CollectionArtifacts, artifact.ID, descriptor, map[string]string{
			"type": artifact.Type,
			"name": artifact.Name,
		})
	}
	return artifact, nil
}

// ReadArtifact returns an artifact and its content by id.
func (m *Memory) ReadArtifact(id string) (*Artifact, []byte, error) {
	if m.artifacts == nil {
		return nil, nil, fmt.Errorf("artifact store is disabled")
	}
	return m.artifacts.Read(id)
}

// ListArtifacts filters stored artifacts.
func (m *Memory) ListArtifacts(artifactType, query string) []*Artifact {
	if m.artifacts == nil {
		return nil
	}
	return m.artifacts.List(artifactType, query)
}

// UpsertEntity adds an entity to the graph and indexes its descriptor.
func (m *Memory) UpsertEntity(name, entityType string, identifiers map[string]string) (*Entity, error) {
	if m.graph == nil {
		return nil, fmt.Errorf("knowledge graph is disabled")
	}
	entity, err := m.graph.UpsertEntity(name, entityType, identifiers)
	if err != nil {
		return nil, err
	}

	if m.index != nil {
		m.index.Add(CollectionEntities, fmt.Sprintf("entity-%d", entity.ID),
			entityDescriptor(entity), map[string]string{"type": entity.Type})
	}
	return entity, nil
}

func entityDescriptor(e *Entity) string {
	var parts []string
	parts = append(parts, e.Name+" ("+e.Type+")")
	for kind, value := range e.Identifiers {
		parts = append(parts, kind+"="+value)
	}
	return strings.Join(parts, " ")
}

// ObserveToolOutput runs entity extraction over a tool result and adds
// the hits to the knowledge graph. Best-effort.
func (m *Memory) ObserveToolOutput(toolName, output string) {
	if m.graph == nil {
		return
	}
	extracted := ExtractEntities(output)
	for _, e := range extracted {
		if _, err := m.UpsertEntity(e.Name, e.Type, e.Identifiers); err != nil {
			m.log.Debug("entity upsert failed", "name", e.Name, "error", err)
		}
	}
	if len(extracted) > 0 {
		m.log.Debug("extracted entities from tool output", "tool", toolName, "count", len(extracted))
	}
}

// EndRound records a completed round and triggers summarization when
// due. Summarization failures are logged, not surfaced.
func (m *Memory) EndRound(ctx context.Context) {
	m.Transcript.EndRound()
	if m.summarizer == nil {
		return
	}

	summary, err := m.summarizer.MaybeSummarize(ctx, m.Transcript)
	if err != nil {
		m.log.Warn("summarization failed", "error", err)
		return
	}
	if summary != nil && m.index != nil {
		m.index.Add(CollectionSummaries, fmt.Sprintf("summary-%d", summary.ID),
			summary.Text, map[string]string{"session": m.Transcript.SessionID()})
	}
}

// contextSection is one candidate block for the enhanced context, with
// the ordering keys the truncation rule needs.
type contextSection struct {
	header  string
	body    string
	recency int     // higher = newer
	score   float32 // retrieval similarity where applicable
}

// EnhancedContext assembles the system-prompt addendum for the next
// LLM call: recent summaries, top-k retrieval hits for the user
// message, and the graph neighborhood of entities named in it. The
// result is bounded by the configured token budget; over budget,
// sections are dropped most-recent-wins, then highest-score-wins.
func (m *Memory) EnhancedContext(ctx context.Context, userMessage string) string {
	var sections []contextSection

	if m.summarizer != nil {
		summaries := m.summarizer.Summaries()
		for _, s := range summaries {
			sections = append(sections, contextSection{
				header:  "Conversation summary",
				body:    s.Text,
				recency: s.ID + 1,
			})
		}
	}

	if m.graph != nil {
		if body := m.graphNeighborhood(userMessage); body != "" {
			sections = append(sections, contextSection{
				header:  "Known entities",
				body:    body,
				recency: 1 << 20, // current-message entities always rank first
			})
		}
	}

	if m.index != nil {
		hits, err := m.index.SearchAll(ctx, userMessage, retrievalK)
		if err != nil {
			m.log.Debug("retrieval failed", "error", err)
		}
		for _, hit := range hits {
			sections = append(sections, contextSection{
				header: "Retrieved " + hit.Collection,
				body:   hit.Content,
				score:  hit.Score,
			})
		}
	}

	return assembleContext(sections, m.cfg.ContextBudget)
}

// graphNeighborhood renders the immediate neighborhood of entities the
// user message names.
func (m *Memory) graphNeighborhood(userMessage string) string {
	var b strings.Builder
	for _, e := range ExtractEntities(userMessage) {
		results := m.graph.Query(e.Name, "", true)
		for _, r := range results {
			b.WriteString("- ")
			b.WriteString(entityDescriptor(r.Entity))
			for _, n := range r.Neighbors {
				arrow := "<-"
				if n.Outgoing {
					arrow = "->"
				}
				b.WriteString(fmt.Sprintf("; %s %s %s", arrow, n.Relation, n.Entity.Name))
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// assembleContext packs sections into the token budget. Ordering is
// deterministic: newer sections beat older ones, then higher scores
// beat lower ones. A section that does not fit is skipped whole.
func assembleContext(sections []contextSection, budget int) string {
	if len(sections) == 0 {
		return ""
	}

	ordered := make([]contextSection, len(sections))
	copy(ordered, sections)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].recency != ordered[j].recency {
			return ordered[i].recency > ordered[j].recency
		}
		return ordered[i].score > ordered[j].score
	})

	var b strings.Builder
	used := 0
	for _, s := range ordered {
		block := "## " + s.header + "\n" + s.body + "\n\n"
		cost := CountTokens(block)
		if used+cost > budget {
			continue
		}
		b.WriteString(block)
		used += cost
	}
	return strings.TrimSpace(b.String())
}

// SaveSession persists the transcript to path and flushes index writes.
func (m *Memory) SaveSession(path string) error {
	if m.index != nil {
		m.index.Flush()
	}
	return m.Transcript.Save(path)
}

// LoadSession replaces the transcript with one restored from path.
func (m *Memory) LoadSession(path string) error {
	t, err := LoadTranscript(path)
	if err != nil {
		return err
	}
	m.Transcript = t
	return nil
}
