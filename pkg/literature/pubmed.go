package literature

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/httpclient"
)

const eutilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// NCBI politeness: 3 req/s without an API key, 10 req/s with one.
const (
	pubmedIntervalNoKey = 340 * time.Millisecond
	pubmedIntervalKey   = 100 * time.Millisecond
)

// PubMed searches via the NCBI E-utilities (esearch then esummary).
type PubMed struct {
	client *httpclient.Client
	apiKey string
	email  string
}

// NewPubMed creates the client. An API key raises the rate limit.
func NewPubMed(apiKey, email string) *PubMed {
	interval := pubmedIntervalNoKey
	if apiKey != "" {
		interval = pubmedIntervalKey
	}
	return &PubMed{
		client: httpclient.New(
			httpclient.WithMinInterval(interval),
			httpclient.WithUserAgent("bioagent/1.0"),
		),
		apiKey: apiKey,
		email:  email,
	}
}

// Name implements Source.
func (p *PubMed) Name() string { return "pubmed" }

func (p *PubMed) baseParams() url.Values {
	params := url.Values{}
	params.Set("retmode", "json")
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}
	if p.email != "" {
		params.Set("email", p.email)
	}
	params.Set("tool", "bioagent")
	return params
}

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type esummaryResponse struct {
	Result map[string]any `json:"result"`
}

// Search implements Source.
func (p *PubMed) Search(ctx context.Context, query string, opts SearchOptions) ([]Paper, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	term := query
	if opts.YearFrom > 0 || opts.YearTo > 0 {
		from, to := opts.YearFrom, opts.YearTo
		if from == 0 {
			from = 1900
		}
		if to == 0 {
			to = time.Now().Year()
		}
		term = fmt.Sprintf("%s AND %d:%d[dp]", query, from, to)
	}

	params := p.baseParams()
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(limit))
	params.Set("sort", "relevance")

	var search esearchResponse
	if err := p.client.GetJSON(ctx, httpclient.BuildURL(eutilsBase+"/esearch.fcgi", params), nil, &search); err != nil {
		return nil, fmt.Errorf("pubmed esearch failed: %w", err)
	}

	ids := search.ESearchResult.IDList
	if len(ids) == 0 {
		return nil, nil
	}

	return p.summaries(ctx, ids)
}

// Fetch implements Fetcher for PMIDs.
func (p *PubMed) Fetch(ctx context.Context, id string, kind string) (*Paper, error) {
	if kind != "" && kind != IDPMID {
		return nil, fmt.Errorf("pubmed lookup supports pmid only, got %q", kind)
	}
	papers, err := p.summaries(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, nil
	}
	return &papers[0], nil
}

func (p *PubMed) summaries(ctx context.Context, pmids []string) ([]Paper, error) {
	params := p.baseParams()
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(pmids, ","))

	var summary esummaryResponse
	if err := p.client.GetJSON(ctx, httpclient.BuildURL(eutilsBase+"/esummary.fcgi", params), nil, &summary); err != nil {
		return nil, fmt.Errorf("pubmed esummary failed: %w", err)
	}

	papers := make([]Paper, 0, len(pmids))
	for _, pmid := range pmids {
		raw, ok := summary.Result[pmid].(map[string]any)
		if !ok {
			continue
		}
		papers = append(papers, parseESummary(pmid, raw))
	}
	return papers, nil
}

func parseESummary(pmid string, doc map[string]any) Paper {
	paper := Paper{SourceTag: "pubmed"}
	paper.SetIdentifier(IDPMID, pmid)

	if title, ok := doc["title"].(string); ok {
		paper.Title = strings.TrimSuffix(strings.TrimSpace(title), ".")
	}
	if venue, ok := doc["fulljournalname"].(string); ok {
		paper.Venue = venue
	}
	if pubdate, ok := doc["pubdate"].(string); ok && len(pubdate) >= 4 {
		if year, err := strconv.Atoi(pubdate[:4]); err == nil {
			paper.Year = year
		}
	}

	if authors, ok := doc["authors"].([]any); ok {
		for _, a := range authors {
			entry, ok := a.(map[string]any)
			if !ok {
				continue
			}
			name, _ := entry["name"].(string)
			if name == "" {
				continue
			}
			// esummary names are "Family Initials".
			family, given := name, ""
			if idx := strings.LastIndex(name, " "); idx > 0 {
				family, given = name[:idx], name[idx+1:]
			}
			paper.Authors = append(paper.Authors, Author{Family: family, Given: given})
		}
	}

	if ids, ok := doc["articleids"].([]any); ok {
		for _, entry := range ids {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			idType, _ := m["idtype"].(string)
			value, _ := m["value"].(string)
			switch idType {
			case "doi":
				paper.SetIdentifier(IDDOI, value)
			case "pmc":
				paper.SetIdentifier(IDPMCID, value)
			}
		}
	}

	return paper
}

var (
	_ Source  = (*PubMed)(nil)
	_ Fetcher = (*PubMed)(nil)
)
