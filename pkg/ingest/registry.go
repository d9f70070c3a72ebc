package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Entry is one registered dataset: a label plus its profile.
type Entry struct {
	Label        string       `json:"label"`
	Profile      *FileProfile `json:"profile"`
	RegisteredAt time.Time    `json:"registered_at"`
}

// Registry tracks ingested datasets and persists them to a JSON file so
// a new session sees what earlier sessions ingested.
type Registry struct {
	mu      sync.RWMutex
	path    string
	entries map[string]*Entry
}

// NewRegistry loads the registry at path, tolerating a missing file.
// A corrupt registry file is an error: silently starting empty would
// orphan previously ingested data.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{
		path:    path,
		entries: make(map[string]*Entry),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("registry file %s is corrupt: %w", path, err)
	}
	for _, e := range entries {
		r.entries[e.Label] = e
	}
	return r, nil
}

// Add registers a profiled file under label. An empty label defaults to
// the original filename. Re-registering a label replaces the entry.
func (r *Registry) Add(label string, profile *FileProfile) (*Entry, error) {
	if profile == nil || profile.File == nil {
		return nil, fmt.Errorf("cannot register a nil profile")
	}
	if label == "" {
		label = profile.File.OriginalName
	}

	entry := &Entry{
		Label:        label,
		Profile:      profile,
		RegisteredAt: time.Now(),
	}

	r.mu.Lock()
	r.entries[label] = entry
	err := r.saveLocked()
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Get looks up a dataset by label, falling back to original filename.
func (r *Registry) Get(label string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[label]; ok {
		return e, true
	}
	for _, e := range r.entries {
		if e.Profile.File.OriginalName == label {
			return e, true
		}
	}
	return nil, false
}

// Remove drops a dataset entry. The file on disk is kept.
func (r *Registry) Remove(label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[label]; !ok {
		return fmt.Errorf("no dataset registered as %q", label)
	}
	delete(r.entries, label)
	return r.saveLocked()
}

// List returns all entries sorted by label.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Profiles returns the profiles of all entries, label-sorted.
func (r *Registry) Profiles() []*FileProfile {
	entries := r.List()
	profiles := make([]*FileProfile, len(entries))
	for i, e := range entries {
		profiles[i] = e.Profile
	}
	return profiles
}

// Len reports the number of registered datasets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// saveLocked writes the registry atomically. Callers hold r.mu.
func (r *Registry) saveLocked() error {
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Label < entries[j].Label })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return os.Rename(tmp, r.path)
}
