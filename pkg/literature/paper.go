// Package literature searches scholarly sources, deduplicates and ranks
// the results, and walks citation networks.
package literature

import (
	"regexp"
	"strings"
)

// Identifier kinds carried on a Paper.
const (
	IDDOI   = "doi"
	IDPMID  = "pmid"
	IDPMCID = "pmcid"
	IDS2    = "s2"
	IDArxiv = "arxiv"
)

// Author is one paper author.
type Author struct {
	Family string `json:"family"`
	Given  string `json:"given,omitempty"`
	ORCID  string `json:"orcid,omitempty"`
}

// Paper is the unified literature record across sources.
type Paper struct {
	Title          string            `json:"title"`
	Authors        []Author          `json:"authors,omitempty"`
	Year           int               `json:"year,omitempty"`
	Venue          string            `json:"venue,omitempty"`
	Identifiers    map[string]string `json:"identifiers,omitempty"`
	Abstract       string            `json:"abstract,omitempty"`
	CitationCount  int               `json:"citation_count,omitempty"`
	ReferenceCount int               `json:"reference_count,omitempty"`
	IsOpenAccess   bool              `json:"is_open_access,omitempty"`
	PDFURL         string            `json:"pdf_url,omitempty"`
	SourceTag      string            `json:"source_tag,omitempty"`
	RelevanceScore float64           `json:"relevance_score,omitempty"`
}

// DOI returns the paper's DOI, if any.
func (p *Paper) DOI() string { return p.Identifiers[IDDOI] }

// PMID returns the paper's PubMed id, if any.
func (p *Paper) PMID() string { return p.Identifiers[IDPMID] }

// SetIdentifier records an identifier, allocating the map lazily.
func (p *Paper) SetIdentifier(kind, value string) {
	if value == "" {
		return
	}
	if p.Identifiers == nil {
		p.Identifiers = make(map[string]string)
	}
	p.Identifiers[kind] = value
}

const titleKeyPrefixLen = 60

var nonAlnum = regexp.MustCompile(`[^a-z0-9 ]+`)

// Key returns the identity key used for deduplication:
// lowercased DOI, else PMID, else a normalized title prefix.
func (p *Paper) Key() string {
	if doi := p.DOI(); doi != "" {
		return "doi:" + strings.ToLower(doi)
	}
	if pmid := p.PMID(); pmid != "" {
		return "pmid:" + pmid
	}
	return "title:" + NormalizeTitle(p.Title)
}

// keyRank orders identity-key strength: DOI beats PMID beats title.
func (p *Paper) keyRank() int {
	if p.DOI() != "" {
		return 3
	}
	if p.PMID() != "" {
		return 2
	}
	return 1
}

// NormalizeTitle lowercases, strips punctuation, collapses whitespace and
// truncates to a fixed prefix.
func NormalizeTitle(title string) string {
	t := strings.ToLower(title)
	t = nonAlnum.ReplaceAllString(t, "")
	t = strings.Join(strings.Fields(t), " ")
	if len(t) > titleKeyPrefixLen {
		t = t[:titleKeyPrefixLen]
	}
	return t
}

// merge fills empty fields of p from other. Identifiers union, with p's
// values winning on conflict.
func (p *Paper) merge(other Paper) {
	if p.Title == "" {
		p.Title = other.Title
	}
	if len(p.Authors) == 0 {
		p.Authors = other.Authors
	}
	if p.Year == 0 {
		p.Year = other.Year
	}
	if p.Venue == "" {
		p.Venue = other.Venue
	}
	if p.Abstract == "" {
		p.Abstract = other.Abstract
	}
	if p.CitationCount == 0 {
		p.CitationCount = other.CitationCount
	}
	if p.ReferenceCount == 0 {
		p.ReferenceCount = other.ReferenceCount
	}
	if !p.IsOpenAccess {
		p.IsOpenAccess = other.IsOpenAccess
	}
	if p.PDFURL == "" {
		p.PDFURL = other.PDFURL
	}
	for kind, value := range other.Identifiers {
		if _, ok := p.Identifiers[kind]; !ok {
			p.SetIdentifier(kind, value)
		}
	}
}
