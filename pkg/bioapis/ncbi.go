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

const eutilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// NCBI politeness: 3 req/s without an API key, 10 req/s with one.
const (
	ncbiIntervalNoKey = 340 * time.Millisecond
	ncbiIntervalKey   = 100 * time.Millisecond
)

// GeneRecord is a condensed NCBI Gene entry.
type GeneRecord struct {
	GeneID      string   `json:"gene_id"`
	Symbol      string   `json:"symbol"`
	Description string   `json:"description"`
	Organism    string   `json:"organism"`
	Aliases     []string `json:"aliases,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Chromosome  string   `json:"chromosome,omitempty"`
	MapLocation string   `json:"map_location,omitempty"`
}

// NCBIGeneClient looks up genes via the E-utilities (esearch then
// esummary against db=gene).
type NCBIGeneClient struct {
	client *httpclient.Client
	apiKey string
	email  string
	base   string
}

// NewNCBIGeneClient creates the client. An API key raises the rate limit.
func NewNCBIGeneClient(apiKey, email string) *NCBIGeneClient {
	interval := ncbiIntervalNoKey
	if apiKey != "" {
		interval = ncbiIntervalKey
	}
	return &NCBIGeneClient{
		client: httpclient.New(
			httpclient.WithMinInterval(interval),
			httpclient.WithUserAgent("bioagent/1.0"),
		),
		apiKey: apiKey,
		email:  email,
		base:   eutilsBase,
	}
}

// SetBase overrides the API host. Tests point this at a stub server.
func (c *NCBIGeneClient) SetBase(base string) { c.base = base }

func (c *NCBIGeneClient) baseParams() url.Values {
	params := url.Values{}
	params.Set("retmode", "json")
	params.Set("tool", "bioagent")
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	if c.email != "" {
		params.Set("email", c.email)
	}
	return params
}

type geneSearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type geneSummaryResponse struct {
	Result map[string]any `json:"result"`
}

// Lookup resolves a gene symbol to its NCBI record. The organism
// defaults to human when empty.
func (c *NCBIGeneClient) Lookup(ctx context.Context, symbol, organism string) (*GeneRecord, error) {
	if organism == "" {
		organism = "Homo sapiens"
	}
	term := fmt.Sprintf("%s[sym] AND %s[orgn]", symbol, organism)

	records, err := c.search(ctx, term, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no NCBI gene found for %s (%s)", symbol, organism)
	}
	return &records[0], nil
}

// Search runs a free-text query against db=gene.
func (c *NCBIGeneClient) Search(ctx context.Context, query string, limit int) ([]GeneRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	return c.search(ctx, query, limit)
}

func (c *NCBIGeneClient) search(ctx context.Context, term string, limit int) ([]GeneRecord, error) {
	params := c.baseParams()
	params.Set("db", "gene")
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(limit))

	var search geneSearchResponse
	if err := c.client.GetJSON(ctx, httpclient.BuildURL(c.base+"/esearch.fcgi", params), nil, &search); err != nil {
		return nil, fmt.Errorf("ncbi gene esearch failed: %w", err)
	}

	ids := search.ESearchResult.IDList
	if len(ids) == 0 {
		return nil, nil
	}

	return c.summaries(ctx, ids)
}

func (c *NCBIGeneClient) summaries(ctx context.Context, ids []string) ([]GeneRecord, error) {
	params := c.baseParams()
	params.Set("db", "gene")
	params.Set("id", strings.Join(ids, ","))

	var summary geneSummaryResponse
	if err := c.client.GetJSON(ctx, httpclient.BuildURL(c.base+"/esummary.fcgi", params), nil, &summary); err != nil {
		return nil, fmt.Errorf("ncbi gene esummary failed: %w", err)
	}

	records := make([]GeneRecord, 0, len(ids))
	for _, id := range ids {
		doc, ok := summary.Result[id].(map[string]any)
		if !ok {
			continue
		}
		records = append(records, parseGeneSummary(id, doc))
	}
	return records, nil
}

func parseGeneSummary(id string, doc map[string]any) GeneRecord {
	r := GeneRecord{GeneID: id}

	if v, ok := doc["name"].(string); ok {
		r.Symbol = v
	}
	if v, ok := doc["description"].(string); ok {
		r.Description = v
	}
	if v, ok := doc["summary"].(string); ok {
		r.Summary = v
	}
	if v, ok := doc["chromosome"].(string); ok {
		r.Chromosome = v
	}
	if v, ok := doc["maplocation"].(string); ok {
		r.MapLocation = v
	}
	if v, ok := doc["otheraliases"].(string); ok && v != "" {
		for _, alias := range strings.Split(v, ",") {
			if alias = strings.TrimSpace(alias); alias != "" {
				r.Aliases = append(r.Aliases, alias)
			}
		}
	}
	if org, ok := doc["organism"].(map[string]any); ok {
		if v, ok := org["scientificname"].(string); ok {
			r.Organism = v
		}
	}

	return r
}
