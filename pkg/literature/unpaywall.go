package literature

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/bioagentlabs/bioagent/pkg/httpclient"
)

// Unpaywall resolves DOIs to open-access PDF locations.
type Unpaywall struct {
	client *httpclient.Client
	email  string
}

// NewUnpaywall creates the client. The API requires a contact email.
func NewUnpaywall(email string) *Unpaywall {
	return &Unpaywall{
		client: httpclient.New(
			httpclient.WithMinInterval(100*time.Millisecond),
			httpclient.WithUserAgent("bioagent/1.0"),
		),
		email: email,
	}
}

// OpenAccessPDF implements OALookup. Returns "" when no OA copy exists.
func (u *Unpaywall) OpenAccessPDF(ctx context.Context, doi string) (string, error) {
	params := url.Values{}
	params.Set("email", u.email)

	endpoint := "https://api.unpaywall.org/v2/" + url.PathEscape(doi)

	var resp struct {
		IsOA           bool `json:"is_oa"`
		BestOALocation *struct {
			URLForPDF string `json:"url_for_pdf"`
			URL       string `json:"url"`
		} `json:"best_oa_location"`
	}
	err := u.client.GetJSON(ctx, httpclient.BuildURL(endpoint, params), nil, &resp)
	if err != nil {
		if httpclient.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("unpaywall lookup failed: %w", err)
	}

	if !resp.IsOA || resp.BestOALocation == nil {
		return "", nil
	}
	if resp.BestOALocation.URLForPDF != "" {
		return resp.BestOALocation.URLForPDF, nil
	}
	return resp.BestOALocation.URL, nil
}

var _ OALookup = (*Unpaywall)(nil)
