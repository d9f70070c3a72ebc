package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/literature"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

const litTimeout = 2 * time.Minute

func registerLiteratureTools(reg *tools.Registry, deps *Deps) error {
	specs := []struct {
		spec    tools.Spec
		handler tools.HandlerFunc
	}{
		{
			spec: tools.Spec{
				Name:        "search_literature",
				Description: "Search scholarly literature across PubMed, Semantic Scholar, Europe PMC, CrossRef and bioRxiv. Results are deduplicated and ranked by relevance.",
				Params: map[string]tools.Param{
					"query":     {Type: "string", Description: "Search query", Required: true},
					"limit":     {Type: "integer", Description: "Maximum papers to return", Default: 10},
					"sources":   {Type: "array", Description: "Restrict to named sources (pubmed, semanticscholar, europepmc, crossref, biorxiv)"},
					"year_from": {Type: "integer", Description: "Earliest publication year"},
					"year_to":   {Type: "integer", Description: "Latest publication year"},
				},
				Timeout: litTimeout,
			},
			handler: deps.searchLiterature,
		},
		{
			spec: tools.Spec{
				Name:        "get_paper",
				Description: "Fetch one paper's full record by identifier (DOI, PMID, or Semantic Scholar id).",
				Params: map[string]tools.Param{
					"id":      {Type: "string", Description: "Paper identifier", Required: true},
					"id_type": {Type: "string", Description: "Identifier kind", Enum: []string{"doi", "pmid", "s2"}},
				},
				Timeout: litTimeout,
			},
			handler: deps.getPaper,
		},
		{
			spec: tools.Spec{
				Name:        "citation_network",
				Description: "Walk a paper's citation neighborhood: papers it references, papers citing it, or both.",
				Params: map[string]tools.Param{
					"id":        {Type: "string", Description: "Paper identifier (DOI or Semantic Scholar id)", Required: true},
					"direction": {Type: "string", Description: "Edge direction to follow", Enum: []string{"in", "out", "both"}, Default: "both"},
					"limit":     {Type: "integer", Description: "Maximum papers to return", Default: 20},
				},
				Timeout: litTimeout,
			},
			handler: deps.citationNetwork,
		},
		{
			spec: tools.Spec{
				Name:        "recommend_papers",
				Description: "Recommend papers related to a given paper.",
				Params: map[string]tools.Param{
					"id":    {Type: "string", Description: "Seed paper identifier", Required: true},
					"limit": {Type: "integer", Description: "Maximum recommendations", Default: 10},
				},
				Timeout: litTimeout,
			},
			handler: deps.recommendPapers,
		},
		{
			spec: tools.Spec{
				Name:        "find_open_access",
				Description: "Find a legal open-access PDF for a DOI via Unpaywall.",
				Params: map[string]tools.Param{
					"doi": {Type: "string", Description: "The paper's DOI", Required: true},
				},
				Timeout: litTimeout,
			},
			handler: deps.findOpenAccess,
		},
		{
			spec: tools.Spec{
				Name:        "format_citations",
				Description: "Render the reference list for every paper cited this session.",
				Params: map[string]tools.Param{
					"style": {Type: "string", Description: "Citation style", Enum: []string{"nature", "apa"}},
				},
			},
			handler: deps.formatCitations,
		},
	}

	for _, s := range specs {
		if err := reg.Register(s.spec, s.handler); err != nil {
			return err
		}
	}
	return nil
}

type searchArgs struct {
	Query    string   `mapstructure:"query"`
	Limit    int      `mapstructure:"limit"`
	Sources  []string `mapstructure:"sources"`
	YearFrom int      `mapstructure:"year_from"`
	YearTo   int      `mapstructure:"year_to"`
}

func (d *Deps) searchLiterature(ctx context.Context, args map[string]any) (string, error) {
	var p searchArgs
	if err := decodeArgs(args, &p); err != nil {
		return "", err
	}

	result, err := d.Lit.Search(ctx, p.Query, p.Sources, p.Limit, p.YearFrom, p.YearTo)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d papers (sources: %s)\n", len(result.Papers), strings.Join(result.Sources, ", "))
	if result.Warning != "" {
		fmt.Fprintf(&b, "Warning: %s\n", result.Warning)
	}
	b.WriteString("\n")
	for i := range result.Papers {
		writePaper(&b, &result.Papers[i], i+1)
	}
	return b.String(), nil
}

func (d *Deps) getPaper(ctx context.Context, args map[string]any) (string, error) {
	paper, err := d.Lit.Paper(ctx, argString(args, "id"), argString(args, "id_type"))
	if err != nil {
		return "", err
	}
	if paper == nil {
		return "No paper found for that identifier.", nil
	}

	var b strings.Builder
	writePaper(&b, paper, 0)
	if paper.Abstract != "" {
		fmt.Fprintf(&b, "\nAbstract:\n%s\n", paper.Abstract)
	}
	return b.String(), nil
}

func (d *Deps) citationNetwork(ctx context.Context, args map[string]any) (string, error) {
	direction := literature.NetworkDirection(argString(args, "direction"))
	result, err := d.Lit.CitationNetwork(ctx, argString(args, "id"), direction, argInt(args, "limit"))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Citation network (%s): %d papers\n\n", direction, len(result.Papers))
	for i := range result.Papers {
		writePaper(&b, &result.Papers[i], i+1)
	}
	return b.String(), nil
}

func (d *Deps) recommendPapers(ctx context.Context, args map[string]any) (string, error) {
	papers, err := d.Lit.Recommendations(ctx, argString(args, "id"), argInt(args, "limit"))
	if err != nil {
		return "", err
	}
	if len(papers) == 0 {
		return "No recommendations available for that paper.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d recommended papers\n\n", len(papers))
	for i := range papers {
		writePaper(&b, &papers[i], i+1)
	}
	return b.String(), nil
}

func (d *Deps) findOpenAccess(ctx context.Context, args map[string]any) (string, error) {
	doi := argString(args, "doi")
	pdfURL, err := d.Lit.OpenAccessPDF(ctx, doi)
	if err != nil {
		return "", err
	}
	if pdfURL == "" {
		return fmt.Sprintf("No open-access copy found for %s.", doi), nil
	}
	return fmt.Sprintf("Open-access PDF for %s:\n%s", doi, pdfURL), nil
}

func (d *Deps) formatCitations(ctx context.Context, args map[string]any) (string, error) {
	refs, err := d.Citations.FormatReferenceList(argString(args, "style"))
	if err != nil {
		return "", err
	}
	if len(d.Citations.Citations()) == 0 {
		return "No papers have been cited this session.", nil
	}
	return refs, nil
}

// writePaper renders one paper as a numbered list entry. A zero number
// drops the numbering.
func writePaper(b *strings.Builder, p *literature.Paper, n int) {
	if n > 0 {
		fmt.Fprintf(b, "%d. ", n)
	}
	fmt.Fprintf(b, "%s", p.Title)
	if p.Year > 0 {
		fmt.Fprintf(b, " (%d)", p.Year)
	}
	b.WriteString("\n")

	if len(p.Authors) > 0 {
		names := make([]string, 0, min(3, len(p.Authors)))
		for i, a := range p.Authors {
			if i == 3 {
				break
			}
			names = append(names, a.Family)
		}
		suffix := ""
		if len(p.Authors) > 3 {
			suffix = " et al."
		}
		fmt.Fprintf(b, "   Authors: %s%s\n", strings.Join(names, ", "), suffix)
	}
	if p.Venue != "" {
		fmt.Fprintf(b, "   Venue: %s\n", p.Venue)
	}
	if doi := p.DOI(); doi != "" {
		fmt.Fprintf(b, "   DOI: %s\n", doi)
	}
	if pmid := p.PMID(); pmid != "" {
		fmt.Fprintf(b, "   PMID: %s\n", pmid)
	}
	if p.CitationCount > 0 {
		fmt.Fprintf(b, "   Citations: %d\n", p.CitationCount)
	}
	if p.IsOpenAccess && p.PDFURL != "" {
		fmt.Fprintf(b, "   PDF: %s\n", p.PDFURL)
	}
	b.WriteString("\n")
}
