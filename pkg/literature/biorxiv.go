package literature

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/httpclient"
)

// BioRxiv queries the bioRxiv details API. The API has no free-text
// search endpoint, so Search scans recent preprints and filters titles
// and abstracts against the query terms.
type BioRxiv struct {
	client   *httpclient.Client
	scanDays int
}

// NewBioRxiv creates the client.
func NewBioRxiv() *BioRxiv {
	return &BioRxiv{
		client: httpclient.New(
			httpclient.WithMinInterval(500*time.Millisecond),
			httpclient.WithUserAgent("bioagent/1.0"),
		),
		scanDays: 30,
	}
}

// Name implements Source.
func (b *BioRxiv) Name() string { return "biorxiv" }

type biorxivResponse struct {
	Collection []struct {
		Title    string `json:"title"`
		Authors  string `json:"authors"`
		DOI      string `json:"doi"`
		Date     string `json:"date"`
		Abstract string `json:"abstract"`
		Category string `json:"category"`
	} `json:"collection"`
}

// Search implements Source.
func (b *BioRxiv) Search(ctx context.Context, query string, opts SearchOptions) ([]Paper, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	to := time.Now()
	from := to.AddDate(0, 0, -b.scanDays)
	endpoint := fmt.Sprintf("https://api.biorxiv.org/details/biorxiv/%s/%s/0/json",
		from.Format("2006-01-02"), to.Format("2006-01-02"))

	var resp biorxivResponse
	if err := b.client.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("biorxiv fetch failed: %w", err)
	}

	terms := strings.Fields(strings.ToLower(query))

	var papers []Paper
	for _, doc := range resp.Collection {
		if !matchesTerms(doc.Title+" "+doc.Abstract, terms) {
			continue
		}

		paper := Paper{
			Title:        doc.Title,
			Venue:        "bioRxiv",
			Abstract:     doc.Abstract,
			IsOpenAccess: true,
			PDFURL:       "https://www.biorxiv.org/content/" + doc.DOI + "v1.full.pdf",
			SourceTag:    "biorxiv",
		}
		paper.SetIdentifier(IDDOI, doc.DOI)
		if len(doc.Date) >= 4 {
			if year, err := strconv.Atoi(doc.Date[:4]); err == nil {
				paper.Year = year
			}
		}
		for _, name := range strings.Split(doc.Authors, ";") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			// bioRxiv author strings are "Family, G."
			family, given := name, ""
			if idx := strings.Index(name, ","); idx > 0 {
				family, given = name[:idx], strings.TrimSpace(name[idx+1:])
			}
			paper.Authors = append(paper.Authors, Author{Family: family, Given: given})
		}

		papers = append(papers, paper)
		if len(papers) >= limit {
			break
		}
	}
	return papers, nil
}

func matchesTerms(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

var _ Source = (*BioRxiv)(nil)
