package literature

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/httpclient"
)

const s2Base = "https://api.semanticscholar.org/graph/v1"

const s2Fields = "title,authors,year,venue,externalIds,abstract,citationCount,referenceCount,isOpenAccess,openAccessPdf"

// SemanticScholar is the Graph API client. It is the one bundled source
// exposing both citation directions and recommendations.
type SemanticScholar struct {
	client *httpclient.Client
}

// NewSemanticScholar creates the client. An API key raises the rate limit
// from the shared public pool to 1 req/s dedicated.
func NewSemanticScholar(apiKey string) *SemanticScholar {
	opts := []httpclient.Option{
		httpclient.WithMinInterval(1100 * time.Millisecond),
		httpclient.WithUserAgent("bioagent/1.0"),
	}
	if apiKey != "" {
		opts = append(opts,
			httpclient.WithMinInterval(1000*time.Millisecond),
			httpclient.WithHeader("x-api-key", apiKey),
		)
	}
	return &SemanticScholar{client: httpclient.New(opts...)}
}

// Name implements Source.
func (s *SemanticScholar) Name() string { return "semantic_scholar" }

type s2Paper struct {
	PaperID     string `json:"paperId"`
	Title       string `json:"title"`
	Year        int    `json:"year"`
	Venue       string `json:"venue"`
	Abstract    string `json:"abstract"`
	CitationCnt int    `json:"citationCount"`
	ReferenceCt int    `json:"referenceCount"`
	IsOA        bool   `json:"isOpenAccess"`
	OAPdf       *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
	ExternalIDs map[string]any `json:"externalIds"`
	Authors     []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

type s2SearchResponse struct {
	Data []s2Paper `json:"data"`
}

type s2LinkedResponse struct {
	Data []struct {
		CitingPaper *s2Paper `json:"citingPaper"`
		CitedPaper  *s2Paper `json:"citedPaper"`
	} `json:"data"`
}

// Search implements Source.
func (s *SemanticScholar) Search(ctx context.Context, query string, opts SearchOptions) ([]Paper, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", s2Fields)
	if opts.YearFrom > 0 || opts.YearTo > 0 {
		from, to := "", ""
		if opts.YearFrom > 0 {
			from = strconv.Itoa(opts.YearFrom)
		}
		if opts.YearTo > 0 {
			to = strconv.Itoa(opts.YearTo)
		}
		params.Set("year", from+"-"+to)
	}

	var resp s2SearchResponse
	if err := s.client.GetJSON(ctx, httpclient.BuildURL(s2Base+"/paper/search", params), nil, &resp); err != nil {
		return nil, fmt.Errorf("semantic scholar search failed: %w", err)
	}

	papers := make([]Paper, 0, len(resp.Data))
	for _, doc := range resp.Data {
		papers = append(papers, doc.toPaper())
	}
	return papers, nil
}

// Fetch implements Fetcher. The id may be an S2 id, DOI ("DOI:..." is
// added automatically), or PMID ("PMID:...").
func (s *SemanticScholar) Fetch(ctx context.Context, id string, kind string) (*Paper, error) {
	ref := id
	switch kind {
	case IDDOI:
		ref = "DOI:" + id
	case IDPMID:
		ref = "PMID:" + id
	case IDArxiv:
		ref = "ARXIV:" + id
	}

	params := url.Values{}
	params.Set("fields", s2Fields)

	var doc s2Paper
	err := s.client.GetJSON(ctx, httpclient.BuildURL(s2Base+"/paper/"+url.PathEscape(ref), params), nil, &doc)
	if err != nil {
		if httpclient.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("semantic scholar lookup failed: %w", err)
	}

	paper := doc.toPaper()
	return &paper, nil
}

// Citations implements CitationWalker (papers citing the given one).
func (s *SemanticScholar) Citations(ctx context.Context, id string, limit int) ([]Paper, error) {
	return s.linked(ctx, id, "citations", limit)
}

// References implements CitationWalker (papers the given one cites).
func (s *SemanticScholar) References(ctx context.Context, id string, limit int) ([]Paper, error) {
	return s.linked(ctx, id, "references", limit)
}

func (s *SemanticScholar) linked(ctx context.Context, id, direction string, limit int) ([]Paper, error) {
	if limit <= 0 {
		limit = 20
	}

	params := url.Values{}
	params.Set("fields", s2Fields)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/paper/%s/%s", s2Base, url.PathEscape(id), direction)

	var resp s2LinkedResponse
	if err := s.client.GetJSON(ctx, httpclient.BuildURL(endpoint, params), nil, &resp); err != nil {
		return nil, fmt.Errorf("semantic scholar %s walk failed: %w", direction, err)
	}

	papers := make([]Paper, 0, len(resp.Data))
	for _, entry := range resp.Data {
		doc := entry.CitingPaper
		if direction == "references" {
			doc = entry.CitedPaper
		}
		if doc == nil || doc.Title == "" {
			continue
		}
		papers = append(papers, doc.toPaper())
	}
	return papers, nil
}

// Recommendations implements Recommender.
func (s *SemanticScholar) Recommendations(ctx context.Context, id string, limit int) ([]Paper, error) {
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("fields", s2Fields)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := "https://api.semanticscholar.org/recommendations/v1/papers/forpaper/" + url.PathEscape(id)

	var resp struct {
		RecommendedPapers []s2Paper `json:"recommendedPapers"`
	}
	if err := s.client.GetJSON(ctx, httpclient.BuildURL(endpoint, params), nil, &resp); err != nil {
		return nil, fmt.Errorf("semantic scholar recommendations failed: %w", err)
	}

	papers := make([]Paper, 0, len(resp.RecommendedPapers))
	for _, doc := range resp.RecommendedPapers {
		papers = append(papers, doc.toPaper())
	}
	return papers, nil
}

func (d s2Paper) toPaper() Paper {
	paper := Paper{
		Title:          d.Title,
		Year:           d.Year,
		Venue:          d.Venue,
		Abstract:       d.Abstract,
		CitationCount:  d.CitationCnt,
		ReferenceCount: d.ReferenceCt,
		IsOpenAccess:   d.IsOA,
		SourceTag:      "semantic_scholar",
	}
	if d.OAPdf != nil {
		paper.PDFURL = d.OAPdf.URL
	}
	paper.SetIdentifier(IDS2, d.PaperID)

	for key, raw := range d.ExternalIDs {
		switch key {
		case "DOI":
			if doi, ok := raw.(string); ok {
				paper.SetIdentifier(IDDOI, doi)
			}
		case "PubMed":
			switch v := raw.(type) {
			case string:
				paper.SetIdentifier(IDPMID, v)
			case float64:
				paper.SetIdentifier(IDPMID, strconv.Itoa(int(v)))
			}
		case "ArXiv":
			if id, ok := raw.(string); ok {
				paper.SetIdentifier(IDArxiv, id)
			}
		}
	}

	for _, a := range d.Authors {
		if a.Name == "" {
			continue
		}
		family, given := a.Name, ""
		if idx := lastSpace(a.Name); idx > 0 {
			given, family = a.Name[:idx], a.Name[idx+1:]
		}
		paper.Authors = append(paper.Authors, Author{Family: family, Given: given})
	}

	return paper
}

func lastSpace(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ' ' {
			return i
		}
	}
	return -1
}

var (
	_ Source         = (*SemanticScholar)(nil)
	_ Fetcher        = (*SemanticScholar)(nil)
	_ CitationWalker = (*SemanticScholar)(nil)
	_ Recommender    = (*SemanticScholar)(nil)
)
