package literature

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/httpclient"
)

const europePMCBase = "https://www.ebi.ac.uk/europepmc/webservices/rest/search"

// EuropePMC searches the Europe PMC REST API.
type EuropePMC struct {
	client *httpclient.Client
}

// NewEuropePMC creates the client.
func NewEuropePMC() *EuropePMC {
	return &EuropePMC{
		client: httpclient.New(
			httpclient.WithMinInterval(200*time.Millisecond),
			httpclient.WithUserAgent("bioagent/1.0"),
		),
	}
}

// Name implements Source.
func (e *EuropePMC) Name() string { return "europepmc" }

type europePMCResponse struct {
	ResultList struct {
		Result []struct {
			Title       string `json:"title"`
			AuthorStr   string `json:"authorString"`
			JournalInfo struct {
				Journal struct {
					Title string `json:"title"`
				} `json:"journal"`
			} `json:"journalInfo"`
			PubYear    string `json:"pubYear"`
			DOI        string `json:"doi"`
			PMID       string `json:"pmid"`
			PMCID      string `json:"pmcid"`
			CitedByCnt int    `json:"citedByCount"`
			IsOpen     string `json:"isOpenAccess"`
			Abstract   string `json:"abstractText"`
		} `json:"result"`
	} `json:"resultList"`
}

// Search implements Source.
func (e *EuropePMC) Search(ctx context.Context, query string, opts SearchOptions) ([]Paper, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	q := query
	if opts.YearFrom > 0 || opts.YearTo > 0 {
		from, to := opts.YearFrom, opts.YearTo
		if from == 0 {
			from = 1900
		}
		if to == 0 {
			to = time.Now().Year()
		}
		q = fmt.Sprintf("%s AND PUB_YEAR:[%d TO %d]", query, from, to)
	}

	params := url.Values{}
	params.Set("query", q)
	params.Set("format", "json")
	params.Set("pageSize", strconv.Itoa(limit))
	params.Set("resultType", "core")

	var resp europePMCResponse
	if err := e.client.GetJSON(ctx, httpclient.BuildURL(europePMCBase, params), nil, &resp); err != nil {
		return nil, fmt.Errorf("europe pmc search failed: %w", err)
	}

	papers := make([]Paper, 0, len(resp.ResultList.Result))
	for _, doc := range resp.ResultList.Result {
		paper := Paper{
			Title:         doc.Title,
			Venue:         doc.JournalInfo.Journal.Title,
			Abstract:      doc.Abstract,
			CitationCount: doc.CitedByCnt,
			IsOpenAccess:  doc.IsOpen == "Y",
			SourceTag:     "europepmc",
		}
		if year, err := strconv.Atoi(doc.PubYear); err == nil {
			paper.Year = year
		}
		paper.SetIdentifier(IDDOI, doc.DOI)
		paper.SetIdentifier(IDPMID, doc.PMID)
		paper.SetIdentifier(IDPMCID, doc.PMCID)
		papers = append(papers, paper)
	}
	return papers, nil
}

var _ Source = (*EuropePMC)(nil)
