// Package memory is the session memory facade: transcript, rolling
// summaries, artifact store, knowledge graph and retrieval index. It is
// an aggregate over independent file-backed stores, not a single
// database; every store degrades to a no-op when disabled.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bioagentlabs/bioagent/pkg/llms"
)

// Transcript is the append-only message history of one session.
// Mutations are serialized; reads return copies.
type Transcript struct {
	mu        sync.RWMutex
	sessionID string
	messages  []llms.Message
	rounds    int
	createdAt time.Time
}

// NewTranscript starts an empty transcript with a fresh session id.
func NewTranscript() *Transcript {
	return &Transcript{
		sessionID: uuid.NewString(),
		createdAt: time.Now(),
	}
}

// SessionID returns the session identifier.
func (t *Transcript) SessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID
}

// Append adds a message.
func (t *Transcript) Append(msg llms.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msg)
}

// EndRound marks the completion of one agent round.
func (t *Transcript) EndRound() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rounds++
}

// Rounds reports completed rounds.
func (t *Transcript) Rounds() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rounds
}

// Len reports the message count.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Messages returns a copy of the full history.
func (t *Transcript) Messages() []llms.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]llms.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Window returns a copy of messages[from:to], clamped to valid bounds.
func (t *Transcript) Window(from, to int) []llms.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if from < 0 {
		from = 0
	}
	if to > len(t.messages) {
		to = len(t.messages)
	}
	if from >= to {
		return nil
	}
	out := make([]llms.Message, to-from)
	copy(out, t.messages[from:to])
	return out
}

// savedSession is the on-disk form of a session.
type savedSession struct {
	SessionID string         `json:"session_id"`
	CreatedAt time.Time      `json:"created_at"`
	SavedAt   time.Time      `json:"saved_at"`
	Rounds    int            `json:"rounds"`
	Messages  []llms.Message `json:"messages"`
}

// Save persists the transcript to path.
func (t *Transcript) Save(path string) error {
	t.mu.RLock()
	saved := savedSession{
		SessionID: t.sessionID,
		CreatedAt: t.createdAt,
		SavedAt:   time.Now(),
		Rounds:    t.rounds,
		Messages:  t.messages,
	}
	t.mu.RUnlock()

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadTranscript restores a saved session from path.
func LoadTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var saved savedSession
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("session file %s is corrupt: %w", path, err)
	}

	return &Transcript{
		sessionID: saved.SessionID,
		createdAt: saved.CreatedAt,
		rounds:    saved.Rounds,
		messages:  saved.Messages,
	}, nil
}
