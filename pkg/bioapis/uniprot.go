// Package bioapis provides clients for biological reference databases:
// UniProt, NCBI Gene and InterPro. All of them ride the shared
// rate-limited HTTP client.
package bioapis

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/httpclient"
)

const uniprotBase = "https://rest.uniprot.org/uniprotkb"

// ProteinRecord is a condensed UniProt entry.
type ProteinRecord struct {
	Accession string   `json:"accession"`
	Name      string   `json:"name"`
	GeneNames []string `json:"gene_names,omitempty"`
	Organism  string   `json:"organism"`
	Function  string   `json:"function,omitempty"`
	Length    int      `json:"length"`
	Reviewed  bool     `json:"reviewed"`
}

// UniProtClient queries the UniProt REST API.
type UniProtClient struct {
	client *httpclient.Client
	base   string
}

// NewUniProtClient creates a client with polite rate limiting.
func NewUniProtClient() *UniProtClient {
	return &UniProtClient{
		client: httpclient.New(
			httpclient.WithMinInterval(200*time.Millisecond),
			httpclient.WithTimeout(30*time.Second),
		),
		base: uniprotBase,
	}
}

// SetBase overrides the API host. Tests point this at a stub server.
func (c *UniProtClient) SetBase(base string) { c.base = base }

type uniprotSearchResponse struct {
	Results []uniprotEntry `json:"results"`
}

type uniprotEntry struct {
	PrimaryAccession   string `json:"primaryAccession"`
	EntryType          string `json:"entryType"`
	ProteinDescription struct {
		RecommendedName struct {
			FullName struct {
				Value string `json:"value"`
			} `json:"fullName"`
		} `json:"recommendedName"`
	} `json:"proteinDescription"`
	Genes []struct {
		GeneName struct {
			Value string `json:"value"`
		} `json:"geneName"`
	} `json:"genes"`
	Organism struct {
		ScientificName string `json:"scientificName"`
	} `json:"organism"`
	Sequence struct {
		Length int `json:"length"`
	} `json:"sequence"`
	Comments []struct {
		CommentType string `json:"commentType"`
		Texts       []struct {
			Value string `json:"value"`
		} `json:"texts"`
	} `json:"comments"`
}

// Search queries UniProtKB, best-annotated entries first.
func (c *UniProtClient) Search(ctx context.Context, query string, limit int) ([]ProteinRecord, error) {
	if limit <= 0 {
		limit = 5
	}

	u := httpclient.BuildURL(c.base+"/search", url.Values{
		"query":  {query},
		"format": {"json"},
		"size":   {strconv.Itoa(limit)},
	})

	var parsed uniprotSearchResponse
	if err := c.client.GetJSON(ctx, u, nil, &parsed); err != nil {
		return nil, fmt.Errorf("uniprot search failed: %w", err)
	}

	records := make([]ProteinRecord, 0, len(parsed.Results))
	for _, e := range parsed.Results {
		records = append(records, e.toRecord())
	}
	return records, nil
}

// Fetch retrieves one entry by accession.
func (c *UniProtClient) Fetch(ctx context.Context, accession string) (*ProteinRecord, error) {
	var entry uniprotEntry
	u := httpclient.BuildURL(c.base+"/"+url.PathEscape(accession), url.Values{"format": {"json"}})
	if err := c.client.GetJSON(ctx, u, nil, &entry); err != nil {
		if httpclient.IsNotFound(err) {
			return nil, fmt.Errorf("no UniProt entry for %s", accession)
		}
		return nil, fmt.Errorf("uniprot fetch failed: %w", err)
	}
	record := entry.toRecord()
	return &record, nil
}

func (e uniprotEntry) toRecord() ProteinRecord {
	r := ProteinRecord{
		Accession: e.PrimaryAccession,
		Name:      e.ProteinDescription.RecommendedName.FullName.Value,
		Organism:  e.Organism.ScientificName,
		Length:    e.Sequence.Length,
		Reviewed:  strings.Contains(e.EntryType, "Swiss-Prot"),
	}
	for _, g := range e.Genes {
		if g.GeneName.Value != "" {
			r.GeneNames = append(r.GeneNames, g.GeneName.Value)
		}
	}
	for _, comment := range e.Comments {
		if comment.CommentType == "FUNCTION" && len(comment.Texts) > 0 {
			r.Function = comment.Texts[0].Value
			break
		}
	}
	return r
}
