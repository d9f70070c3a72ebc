package literature

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Style formats inline citations and reference-list entries.
type Style interface {
	Name() string
	FormatInline(p *Paper, n int) string
	FormatReference(p *Paper, n int) string
}

// Citation is a cited paper with its assigned number.
type Citation struct {
	Paper     Paper
	Number    int
	FirstCite time.Time
}

// CitationManager assigns stable first-cited numbers within a session.
type CitationManager struct {
	mu       sync.Mutex
	style    Style
	byKey    map[string]*Citation
	sequence int
}

// NewCitationManager creates a manager with the given style.
func NewCitationManager(style Style) *CitationManager {
	if style == nil {
		style = NatureStyle{}
	}
	return &CitationManager{style: style, byKey: make(map[string]*Citation)}
}

// Cite registers a paper (idempotent on identity key) and returns its
// inline citation string. Citing the same paper twice yields the same
// string.
func (m *CitationManager) Cite(p Paper) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := p.Key()
	if existing, ok := m.byKey[key]; ok {
		return m.style.FormatInline(&existing.Paper, existing.Number)
	}

	m.sequence++
	c := &Citation{Paper: p, Number: m.sequence, FirstCite: time.Now()}
	m.byKey[key] = c
	return m.style.FormatInline(&c.Paper, c.Number)
}

// Citations returns all registered citations in first-cited order.
func (m *CitationManager) Citations() []Citation {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Citation, 0, len(m.byKey))
	for _, c := range m.byKey {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// FormatReferenceList renders the reference list. A style argument
// naming a different style than the manager's is rejected rather than
// silently ignored.
func (m *CitationManager) FormatReferenceList(styleName string) (string, error) {
	m.mu.Lock()
	style := m.style
	m.mu.Unlock()

	if styleName != "" && styleName != style.Name() {
		return "", fmt.Errorf("citation style mismatch: manager uses %q, requested %q", style.Name(), styleName)
	}

	var b strings.Builder
	b.WriteString("## References\n\n")
	for _, c := range m.Citations() {
		b.WriteString(style.FormatReference(&c.Paper, c.Number))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// NatureStyle is numbered superscript-free inline citations with
// abbreviated-author references.
type NatureStyle struct{}

// Name implements Style.
func (NatureStyle) Name() string { return "nature" }

// FormatInline implements Style.
func (NatureStyle) FormatInline(p *Paper, n int) string {
	return fmt.Sprintf("[%d]", n)
}

// FormatReference implements Style.
func (NatureStyle) FormatReference(p *Paper, n int) string {
	authors := formatAuthorsNature(p.Authors)
	parts := []string{fmt.Sprintf("%d. %s %s.", n, authors, p.Title)}
	if p.Venue != "" {
		parts = append(parts, fmt.Sprintf("*%s*", p.Venue))
	}
	if p.Year > 0 {
		parts = append(parts, fmt.Sprintf("(%d).", p.Year))
	}
	if doi := p.DOI(); doi != "" {
		parts = append(parts, "https://doi.org/"+doi)
	}
	return strings.Join(parts, " ")
}

// APAStyle is author-year citations.
type APAStyle struct{}

// Name implements Style.
func (APAStyle) Name() string { return "apa" }

// FormatInline implements Style.
func (APAStyle) FormatInline(p *Paper, n int) string {
	if len(p.Authors) == 0 {
		return fmt.Sprintf("(Anon., %d)", p.Year)
	}
	family := p.Authors[0].Family
	if len(p.Authors) > 1 {
		return fmt.Sprintf("(%s et al., %d)", family, p.Year)
	}
	return fmt.Sprintf("(%s, %d)", family, p.Year)
}

// FormatReference implements Style.
func (APAStyle) FormatReference(p *Paper, n int) string {
	var authors []string
	for _, a := range p.Authors {
		name := a.Family
		if a.Given != "" {
			name += ", " + initials(a.Given)
		}
		authors = append(authors, name)
	}
	authorStr := strings.Join(authors, ", ")
	if authorStr == "" {
		authorStr = "Anonymous"
	}

	ref := fmt.Sprintf("%s (%d). %s.", authorStr, p.Year, p.Title)
	if p.Venue != "" {
		ref += fmt.Sprintf(" *%s*.", p.Venue)
	}
	if doi := p.DOI(); doi != "" {
		ref += " https://doi.org/" + doi
	}
	return ref
}

func formatAuthorsNature(authors []Author) string {
	if len(authors) == 0 {
		return "Anonymous."
	}
	first := authors[0].Family
	if g := initials(authors[0].Given); g != "" {
		first += ", " + g
	}
	if len(authors) > 1 {
		return first + " et al."
	}
	return first
}

func initials(given string) string {
	var parts []string
	for _, name := range strings.Fields(given) {
		parts = append(parts, strings.ToUpper(name[:1])+".")
	}
	return strings.Join(parts, " ")
}
