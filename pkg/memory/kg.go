package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Biological entity types.
const (
	EntityGene        = "gene"
	EntityProtein     = "protein"
	EntityVariant     = "variant"
	EntityPathway     = "pathway"
	EntitySample      = "sample"
	EntityOrganism    = "organism"
	EntityDisease     = "disease"
	EntityDrug        = "drug"
	EntityPublication = "publication"
	EntityStructure   = "structure"
	EntityDomain      = "domain"
	EntityGOTerm      = "go_term"
	EntityOther       = "other"
)

// Entity is one node in the knowledge graph. The id is its arena index.
type Entity struct {
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Identifiers map[string]string `json:"identifiers,omitempty"`
	FirstSeen   time.Time         `json:"first_seen"`
	LastSeen    time.Time         `json:"last_seen"`
}

// Edge is a typed relationship between two entities.
type Edge struct {
	Src        int       `json:"src"`
	Dst        int       `json:"dst"`
	Relation   string    `json:"relation"`
	Provenance string    `json:"provenance,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Neighbor pairs an adjacent entity with the edge that reaches it.
type Neighbor struct {
	Entity   *Entity `json:"entity"`
	Relation string  `json:"relation"`
	Outgoing bool    `json:"outgoing"`
}

// EntityResult is one query hit with an optional neighborhood.
type EntityResult struct {
	Entity    *Entity    `json:"entity"`
	Neighbors []Neighbor `json:"neighbors,omitempty"`
}

// KnowledgeGraph is a directed labeled multigraph over biological
// entities. Nodes live in an arena and adjacency is by index, so cyclic
// structure serializes cleanly. The graph tolerates inconsistent names
// mapping to the same canonical identifier.
type KnowledgeGraph struct {
	mu    sync.RWMutex
	path  string
	nodes []*Entity
	edges []Edge

	// canonical "key:value" identifier -> node index
	byIdentifier map[string]int
	// lowercased "name|type" -> node index, for entities with no ids
	byNameType map[string]int

	// adjacency: node index -> edge indices
	out map[int][]int
	in  map[int][]int
}

// NewKnowledgeGraph opens the graph persisted at path, tolerating a
// missing file.
func NewKnowledgeGraph(path string) (*KnowledgeGraph, error) {
	g := &KnowledgeGraph{
		path:         path,
		byIdentifier: make(map[string]int),
		byNameType:   make(map[string]int),
		out:          make(map[int][]int),
		in:           make(map[int][]int),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return g, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge graph: %w", err)
	}

	var saved savedGraph
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("knowledge graph file %s is corrupt: %w", path, err)
	}

	g.nodes = saved.Nodes
	g.edges = saved.Edges
	for i, node := range g.nodes {
		g.indexNodeLocked(i, node)
	}
	for i, edge := range g.edges {
		g.out[edge.Src] = append(g.out[edge.Src], i)
		g.in[edge.Dst] = append(g.in[edge.Dst], i)
	}
	return g, nil
}

type savedGraph struct {
	Nodes []*Entity `json:"nodes"`
	Edges []Edge    `json:"edges"`
}

func identifierKey(kind, value string) string {
	return strings.ToLower(kind) + ":" + strings.ToLower(value)
}

func nameTypeKey(name, entityType string) string {
	return strings.ToLower(name) + "|" + strings.ToLower(entityType)
}

func (g *KnowledgeGraph) indexNodeLocked(idx int, node *Entity) {
	for kind, value := range node.Identifiers {
		g.byIdentifier[identifierKey(kind, value)] = idx
	}
	g.byNameType[nameTypeKey(node.Name, node.Type)] = idx
}

// UpsertEntity adds or updates an entity. Dedup is by canonical
// identifier where one matches, else by (name, type). New identifiers
// from the update are merged into an existing node.
func (g *KnowledgeGraph) UpsertEntity(name, entityType string, identifiers map[string]string) (*Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("entity name is required")
	}
	if entityType == "" {
		entityType = EntityOther
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	idx := -1
	for kind, value := range identifiers {
		if i, ok := g.byIdentifier[identifierKey(kind, value)]; ok {
			idx = i
			break
		}
	}
	if idx < 0 {
		if i, ok := g.byNameType[nameTypeKey(name, entityType)]; ok {
			idx = i
		}
	}

	now := time.Now()
	if idx >= 0 {
		node := g.nodes[idx]
		node.LastSeen = now
		if node.Identifiers == nil && len(identifiers) > 0 {
			node.Identifiers = make(map[string]string)
		}
		for kind, value := range identifiers {
			if _, ok := node.Identifiers[kind]; !ok {
				node.Identifiers[kind] = value
				g.byIdentifier[identifierKey(kind, value)] = idx
			}
		}
		return node, g.saveLocked()
	}

	node := &Entity{
		ID:          len(g.nodes),
		Name:        name,
		Type:        entityType,
		Identifiers: identifiers,
		FirstSeen:   now,
		LastSeen:    now,
	}
	g.nodes = append(g.nodes, node)
	g.indexNodeLocked(node.ID, node)
	return node, g.saveLocked()
}

// Link adds a typed edge between two entities by id.
func (g *KnowledgeGraph) Link(src, dst int, relation, provenance string) error {
	if relation == "" {
		return fmt.Errorf("relation is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if src < 0 || src >= len(g.nodes) || dst < 0 || dst >= len(g.nodes) {
		return fmt.Errorf("unknown entity id in edge %d -> %d", src, dst)
	}

	edge := Edge{Src: src, Dst: dst, Relation: relation, Provenance: provenance, CreatedAt: time.Now()}
	idx := len(g.edges)
	g.edges = append(g.edges, edge)
	g.out[src] = append(g.out[src], idx)
	g.in[dst] = append(g.in[dst], idx)
	return g.saveLocked()
}

// Query returns entities matching a name substring and/or type, with
// their immediate neighborhood when includeRelationships is set.
func (g *KnowledgeGraph) Query(name, entityType string, includeRelationships bool) []EntityResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nameLower := strings.ToLower(name)
	var results []EntityResult

	for _, node := range g.nodes {
		if entityType != "" && node.Type != entityType {
			continue
		}
		if nameLower != "" && !strings.Contains(strings.ToLower(node.Name), nameLower) {
			continue
		}

		result := EntityResult{Entity: node}
		if includeRelationships {
			result.Neighbors = g.neighborsLocked(node.ID)
		}
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Entity.LastSeen.After(results[j].Entity.LastSeen)
	})
	return results
}

// Entity returns a node by id.
func (g *KnowledgeGraph) Entity(id int) (*Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if id < 0 || id >= len(g.nodes) {
		return nil, false
	}
	return g.nodes[id], true
}

// Len reports node and edge counts.
func (g *KnowledgeGraph) Len() (nodes, edges int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes), len(g.edges)
}

func (g *KnowledgeGraph) neighborsLocked(id int) []Neighbor {
	var neighbors []Neighbor
	for _, ei := range g.out[id] {
		edge := g.edges[ei]
		neighbors = append(neighbors, Neighbor{Entity: g.nodes[edge.Dst], Relation: edge.Relation, Outgoing: true})
	}
	for _, ei := range g.in[id] {
		edge := g.edges[ei]
		neighbors = append(neighbors, Neighbor{Entity: g.nodes[edge.Src], Relation: edge.Relation})
	}
	return neighbors
}

// saveLocked persists the graph. Callers hold g.mu.
func (g *KnowledgeGraph) saveLocked() error {
	data, err := json.MarshalIndent(savedGraph{Nodes: g.nodes, Edges: g.edges}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode knowledge graph: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return err
	}
	tmp := g.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write knowledge graph: %w", err)
	}
	return os.Rename(tmp, g.path)
}
