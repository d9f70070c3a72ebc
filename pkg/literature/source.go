package literature

import "context"

// SearchOptions narrow a source query.
type SearchOptions struct {
	Limit    int
	YearFrom int
	YearTo   int
}

// Source is the minimal capability every literature client provides.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, opts SearchOptions) ([]Paper, error)
}

// Fetcher is the optional lookup-by-identifier capability.
type Fetcher interface {
	Fetch(ctx context.Context, id string, kind string) (*Paper, error)
}

// CitationWalker exposes one-hop citation traversal. Semantic Scholar is
// the only bundled source with both directions.
type CitationWalker interface {
	Citations(ctx context.Context, id string, limit int) ([]Paper, error)
	References(ctx context.Context, id string, limit int) ([]Paper, error)
}

// Recommender exposes related-paper suggestions.
type Recommender interface {
	Recommendations(ctx context.Context, id string, limit int) ([]Paper, error)
}

// OALookup resolves a DOI to an open-access PDF URL.
type OALookup interface {
	OpenAccessPDF(ctx context.Context, doi string) (string, error)
}
