package literature

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/httpclient"
)

const crossrefBase = "https://api.crossref.org/works"

// CrossRef searches the CrossRef works API.
type CrossRef struct {
	client *httpclient.Client
	mailto string
}

// NewCrossRef creates the client. A mailto address puts requests in the
// polite pool.
func NewCrossRef(mailto string) *CrossRef {
	return &CrossRef{
		client: httpclient.New(
			httpclient.WithMinInterval(100*time.Millisecond),
			httpclient.WithUserAgent("bioagent/1.0 (mailto:"+mailto+")"),
		),
		mailto: mailto,
	}
}

// Name implements Source.
func (c *CrossRef) Name() string { return "crossref" }

type crossrefWork struct {
	Title  []string `json:"title"`
	Author []struct {
		Family string `json:"family"`
		Given  string `json:"given"`
		ORCID  string `json:"ORCID"`
	} `json:"author"`
	ContainerTitle []string `json:"container-title"`
	DOI            string   `json:"DOI"`
	IsReferencedBy int      `json:"is-referenced-by-count"`
	ReferenceCount int      `json:"references-count"`
	Issued         struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
	Abstract string `json:"abstract"`
}

type crossrefResponse struct {
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

// Search implements Source.
func (c *CrossRef) Search(ctx context.Context, query string, opts SearchOptions) ([]Paper, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("rows", strconv.Itoa(limit))
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}
	if opts.YearFrom > 0 {
		params.Add("filter", fmt.Sprintf("from-pub-date:%d-01-01", opts.YearFrom))
	}
	if opts.YearTo > 0 {
		params.Add("filter", fmt.Sprintf("until-pub-date:%d-12-31", opts.YearTo))
	}

	var resp crossrefResponse
	if err := c.client.GetJSON(ctx, httpclient.BuildURL(crossrefBase, params), nil, &resp); err != nil {
		return nil, fmt.Errorf("crossref search failed: %w", err)
	}

	papers := make([]Paper, 0, len(resp.Message.Items))
	for _, work := range resp.Message.Items {
		papers = append(papers, work.toPaper())
	}
	return papers, nil
}

// Fetch implements Fetcher for DOIs.
func (c *CrossRef) Fetch(ctx context.Context, id string, kind string) (*Paper, error) {
	if kind != "" && kind != IDDOI {
		return nil, fmt.Errorf("crossref lookup supports doi only, got %q", kind)
	}

	var resp struct {
		Message crossrefWork `json:"message"`
	}
	err := c.client.GetJSON(ctx, crossrefBase+"/"+url.PathEscape(id), nil, &resp)
	if err != nil {
		if httpclient.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("crossref lookup failed: %w", err)
	}

	paper := resp.Message.toPaper()
	return &paper, nil
}

func (w crossrefWork) toPaper() Paper {
	paper := Paper{
		CitationCount:  w.IsReferencedBy,
		ReferenceCount: w.ReferenceCount,
		Abstract:       w.Abstract,
		SourceTag:      "crossref",
	}
	if len(w.Title) > 0 {
		paper.Title = w.Title[0]
	}
	if len(w.ContainerTitle) > 0 {
		paper.Venue = w.ContainerTitle[0]
	}
	if len(w.Issued.DateParts) > 0 && len(w.Issued.DateParts[0]) > 0 {
		paper.Year = w.Issued.DateParts[0][0]
	}
	paper.SetIdentifier(IDDOI, w.DOI)
	for _, a := range w.Author {
		paper.Authors = append(paper.Authors, Author{Family: a.Family, Given: a.Given, ORCID: a.ORCID})
	}
	return paper
}

var (
	_ Source  = (*CrossRef)(nil)
	_ Fetcher = (*CrossRef)(nil)
)
