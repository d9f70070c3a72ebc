package memory

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/bioagentlabs/bioagent/pkg/embedder"
	"github.com/bioagentlabs/bioagent/pkg/logger"
)

// Index collections.
const (
	CollectionArtifacts = "artifacts"
	CollectionSummaries = "summaries"
	CollectionEntities  = "entities"
)

// indexWriteTimeout bounds a background index write.
const indexWriteTimeout = 30 * time.Second

// IndexHit is one retrieval result.
type IndexHit struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Score      float32           `json:"score"`
}

// Index is the dense retrieval index over artifacts, summaries and
// entity descriptors. Writes run in the background and never block or
// fail the agent loop; the index is rebuildable from the other stores.
type Index struct {
	mu          sync.Mutex
	db          *chromem.DB
	collections map[string]*chromem.Collection
	embed       chromem.EmbeddingFunc
	log         *slog.Logger
	pending     sync.WaitGroup
}

// NewIndex opens a persistent index under dir.
func NewIndex(dir string, emb embedder.Embedder) (*Index, error) {
	db, err := chromem.NewPersistentDB(dir, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open retrieval index: %w", err)
	}

	return &Index{
		db:          db,
		collections: make(map[string]*chromem.Collection),
		embed:       func(ctx context.Context, text string) ([]float32, error) { return emb.Embed(ctx, text) },
		log:         logger.Component("memory.index"),
	}, nil
}

func (x *Index) collection(name string) (*chromem.Collection, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if col, ok := x.collections[name]; ok {
		return col, nil
	}
	col, err := x.db.GetOrCreateCollection(name, nil, x.embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", name, err)
	}
	x.collections[name] = col
	return col, nil
}

// Add indexes one document asynchronously. Failures are logged, never
// surfaced: a broken embedder must not break the turn.
func (x *Index) Add(collection, id, content string, metadata map[string]string) {
	if content == "" {
		return
	}

	x.pending.Add(1)
	go func() {
		defer x.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), indexWriteTimeout)
		defer cancel()

		col, err := x.collection(collection)
		if err != nil {
			x.log.Warn("index write skipped", "collection", collection, "error", err)
			return
		}

		doc := chromem.Document{ID: id, Content: content, Metadata: metadata}
		if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
			x.log.Warn("index write failed", "collection", collection, "id", id, "error", err)
		}
	}()
}

// Search queries one collection by cosine similarity.
func (x *Index) Search(ctx context.Context, collection, query string, k int) ([]IndexHit, error) {
	col, err := x.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects k greater than the collection size.
	if count := col.Count(); count < k {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	results, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}

	hits := make([]IndexHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, IndexHit{
			ID:         r.ID,
			Collection: collection,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Score:      r.Similarity,
		})
	}
	return hits, nil
}

// SearchAll queries every collection and returns the merged top-k.
func (x *Index) SearchAll(ctx context.Context, query string, k int) ([]IndexHit, error) {
	var all []IndexHit
	for _, name := range []string{CollectionArtifacts, CollectionSummaries, CollectionEntities} {
		hits, err := x.Search(ctx, name, query, k)
		if err != nil {
			// One empty or failing collection must not hide the others.
			x.log.Debug("collection search failed", "collection", name, "error", err)
			continue
		}
		all = append(all, hits...)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > k {
		all = all[:k]
	}
	return all, nil
}

// Flush waits for pending background writes. Used by tests and
// session shutdown.
func (x *Index) Flush() {
	x.pending.Wait()
}
