package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/llms"
)

// summaryCharBudget caps a single summary's length.
const summaryCharBudget = 2000

const summaryPrompt = `Summarize this conversation window from a bioinformatics research session.
Capture: (1) the user's intent, (2) key biological entities and datasets mentioned,
(3) analyses performed and their outcomes, (4) outstanding actions.
Be dense and factual. No preamble.`

// Summary is one compacted window of the transcript. Newer summaries
// supersede older ones in retrieval, but all remain addressable by
// offset.
type Summary struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	FromIndex int       `json:"from_index"`
	ToIndex   int       `json:"to_index"`
	CreatedAt time.Time `json:"created_at"`
}

// Summarizer compacts transcript windows with an LLM every
// summaryRounds rounds and persists the results.
type Summarizer struct {
	mu        sync.RWMutex
	path      string
	provider  llms.Provider
	rounds    int
	summaries []Summary

	// next uncompressed message index
	cursor int
	// rounds seen since the last summary
	sinceLast int
}

// NewSummarizer opens the summary store at path. summaryRounds is how
// many completed rounds trigger a compaction.
func NewSummarizer(path string, provider llms.Provider, summaryRounds int) (*Summarizer, error) {
	s := &Summarizer{
		path:     path,
		provider: provider,
		rounds:   summaryRounds,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read summaries: %w", err)
	}
	if err := json.Unmarshal(data, &s.summaries); err != nil {
		return nil, fmt.Errorf("summary file %s is corrupt: %w", path, err)
	}
	if n := len(s.summaries); n > 0 {
		s.cursor = s.summaries[n-1].ToIndex
	}
	return s, nil
}

// Summaries returns a copy, oldest first.
func (s *Summarizer) Summaries() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, len(s.summaries))
	copy(out, s.summaries)
	return out
}

// Latest returns the most recent summary, if any.
func (s *Summarizer) Latest() (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.summaries) == 0 {
		return Summary{}, false
	}
	return s.summaries[len(s.summaries)-1], true
}

// MaybeSummarize records a completed round and, when the round budget
// is reached, compresses the oldest uncompressed transcript window into
// a new summary. Returns the new summary when one was produced.
func (s *Summarizer) MaybeSummarize(ctx context.Context, transcript *Transcript) (*Summary, error) {
	s.mu.Lock()
	s.sinceLast++
	due := s.rounds > 0 && s.sinceLast >= s.rounds
	from := s.cursor
	s.mu.Unlock()

	if !due {
		return nil, nil
	}

	to := transcript.Len()
	window := transcript.Window(from, to)
	if len(window) == 0 {
		return nil, nil
	}

	text, err := s.summarizeWindow(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{
		ID:        len(s.summaries),
		Text:      text,
		FromIndex: from,
		ToIndex:   to,
		CreatedAt: time.Now(),
	}
	s.summaries = append(s.summaries, summary)
	s.cursor = to
	s.sinceLast = 0

	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Summarizer) summarizeWindow(ctx context.Context, window []llms.Message) (string, error) {
	var b strings.Builder
	for _, msg := range window {
		text := msg.Text()
		if text == "" {
			continue
		}
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n")
	}

	resp, err := s.provider.Generate(ctx, llms.Request{
		System: summaryPrompt,
		Messages: []llms.Message{
			llms.TextMessage(llms.RoleUser, b.String()),
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Message.Text())
	if len(text) > summaryCharBudget {
		text = text[:summaryCharBudget]
	}
	return text, nil
}

// saveLocked persists summaries. Callers hold s.mu.
func (s *Summarizer) saveLocked() error {
	data, err := json.MarshalIndent(s.summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summaries: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summaries: %w", err)
	}
	return os.Rename(tmp, s.path)
}
