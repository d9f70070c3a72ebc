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

	"github.com/google/uuid"
)

// Artifact types. The store does not interpret content; the type is a
// retrieval tag only.
const (
	ArtifactCode     = "code"
	ArtifactData     = "data"
	ArtifactFigure   = "figure"
	ArtifactReport   = "report"
	ArtifactWorkflow = "workflow"
	ArtifactNote     = "note"
	ArtifactOther    = "other"
)

// Artifact is a named, typed blob produced during a session. Names may
// repeat; the id is the stable handle.
type Artifact struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	Tags        []string  `json:"tags,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	SizeBytes   int64     `json:"size_bytes"`
}

// ArtifactStore persists artifacts as files under dir/<id>/content,
// with an index file beside them.
type ArtifactStore struct {
	mu    sync.RWMutex
	dir   string
	index map[string]*Artifact
}

// NewArtifactStore opens the store at dir, loading any existing index.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	s := &ArtifactStore{
		dir:   dir,
		index: make(map[string]*Artifact),
	}

	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact index: %w", err)
	}

	var artifacts []*Artifact
	if err := json.Unmarshal(data, &artifacts); err != nil {
		return nil, fmt.Errorf("artifact index is corrupt: %w", err)
	}
	for _, a := range artifacts {
		s.index[a.ID] = a
	}
	return s, nil
}

func (s *ArtifactStore) indexPath() string { return filepath.Join(s.dir, "index.json") }

// Save stores content under a fresh artifact id.
func (s *ArtifactStore) Save(name string, content []byte, artifactType, description string, tags []string, sessionID string) (*Artifact, error) {
	if name == "" {
		return nil, fmt.Errorf("artifact name is required")
	}
	if artifactType == "" {
		artifactType = ArtifactOther
	}

	artifact := &Artifact{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Type:        artifactType,
		Tags:        tags,
		SessionID:   sessionID,
		CreatedAt:   time.Now(),
		SizeBytes:   int64(len(content)),
	}

	dir := filepath.Join(s.dir, artifact.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "content"), content, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write artifact content: %w", err)
	}

	s.mu.Lock()
	s.index[artifact.ID] = artifact
	err := s.saveIndexLocked()
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return artifact, nil
}

// Read returns an artifact's metadata and content by id.
func (s *ArtifactStore) Read(id string) (*Artifact, []byte, error) {
	s.mu.RLock()
	artifact, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("no artifact with id %q", id)
	}

	content, err := os.ReadFile(filepath.Join(s.dir, id, "content"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read artifact %s: %w", id, err)
	}
	return artifact, content, nil
}

// List returns artifacts, newest first, optionally filtered by type and
// a substring query over name, description and tags.
func (s *ArtifactStore) List(artifactType, query string) []*Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Artifact
	q := strings.ToLower(query)
	for _, a := range s.index {
		if artifactType != "" && a.Type != artifactType {
			continue
		}
		if q != "" && !artifactMatches(a, q) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func artifactMatches(a *Artifact, q string) bool {
	if strings.Contains(strings.ToLower(a.Name), q) ||
		strings.Contains(strings.ToLower(a.Description), q) {
		return true
	}
	for _, tag := range a.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// saveIndexLocked writes the index atomically. Callers hold s.mu.
func (s *ArtifactStore) saveIndexLocked() error {
	artifacts := make([]*Artifact, 0, len(s.index))
	for _, a := range s.index {
		artifacts = append(artifacts, a)
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt) })

	data, err := json.MarshalIndent(artifacts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact index: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact index: %w", err)
	}
	return os.Rename(tmp, s.indexPath())
}
