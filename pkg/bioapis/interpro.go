package bioapis

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/httpclient"
)

const interproBase = "https://www.ebi.ac.uk/interpro/api"

// DomainRecord is one InterPro entry matched against a protein.
type DomainRecord struct {
	Accession string `json:"accession"`
	Name      string `json:"name"`
	Type      string `json:"type"`
}

// InterProClient queries the InterPro REST API for protein domain
// annotations.
type InterProClient struct {
	client *httpclient.Client
	base   string
}

// NewInterProClient creates the client.
func NewInterProClient() *InterProClient {
	return &InterProClient{
		client: httpclient.New(
			httpclient.WithMinInterval(200*time.Millisecond),
			httpclient.WithTimeout(30*time.Second),
		),
		base: interproBase,
	}
}

// SetBase overrides the API host. Tests point this at a stub server.
func (c *InterProClient) SetBase(base string) { c.base = base }

// interproResponse is the current (v1) paged list shape: entries under
// results[].metadata.
type interproResponse struct {
	Results []struct {
		Metadata struct {
			Accession string `json:"accession"`
			Name      string `json:"name"`
			Type      string `json:"type"`
		} `json:"metadata"`
	} `json:"results"`

	// entry_subset is the pre-v1 shape. Kept as a deprecated fallback
	// for mirrors that still serve it; results[].metadata wins when
	// both are present.
	EntrySubset []struct {
		Accession string `json:"accession"`
		Name      string `json:"name"`
		Type      string `json:"type"`
	} `json:"entry_subset"`
}

// Domains returns the InterPro entries annotated on a UniProt
// accession.
func (c *InterProClient) Domains(ctx context.Context, accession string) ([]DomainRecord, error) {
	u := httpclient.BuildURL(
		c.base+"/entry/interpro/protein/uniprot/"+url.PathEscape(accession),
		url.Values{"format": {"json"}},
	)

	var parsed interproResponse
	if err := c.client.GetJSON(ctx, u, nil, &parsed); err != nil {
		if httpclient.IsNotFound(err) {
			// InterPro answers 404 for proteins with no matches.
			return nil, nil
		}
		return nil, fmt.Errorf("interpro lookup failed: %w", err)
	}

	if len(parsed.Results) > 0 {
		records := make([]DomainRecord, 0, len(parsed.Results))
		for _, r := range parsed.Results {
			records = append(records, DomainRecord{
				Accession: r.Metadata.Accession,
				Name:      r.Metadata.Name,
				Type:      r.Metadata.Type,
			})
		}
		return records, nil
	}

	records := make([]DomainRecord, 0, len(parsed.EntrySubset))
	for _, e := range parsed.EntrySubset {
		records = append(records, DomainRecord{Accession: e.Accession, Name: e.Name, Type: e.Type})
	}
	return records, nil
}
