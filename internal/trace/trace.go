// Package trace records one durable trace per completed request.
package trace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Trace outcome values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Record is the durable outcome of one completion request. It is never
// mutated after being handed to a store.
type Record struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	PromptID     string    `json:"promptId,omitempty"`
	ModelID      string    `json:"modelId"`
	Input        string    `json:"input"`
	Output       string    `json:"output"`
	TokensInput  int       `json:"tokensInput"`
	TokensOutput int       `json:"tokensOutput"`
	LatencyMs    int64     `json:"latencyMs"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store persists trace records.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	List(ctx context.Context, limit int) ([]*Record, error)
}

// Recorder writes traces through a Store. Store failures are logged and
// swallowed: a broken trace store must never turn a successful completion
// into a failure for the caller.
type Recorder struct {
	store Store
}

// NewRecorder constructs a Recorder over store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record assigns the record an ID and timestamp and persists it.
func (r *Recorder) Record(ctx context.Context, rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := r.store.Save(ctx, rec); err != nil {
		slog.Error("failed to save trace", "trace_id", rec.ID, "error", err)
	}
}

// MemoryStore is an in-process Store, used in tests and as a fallback when no
// data directory is configured.
type MemoryStore struct {
	mu      sync.Mutex
	records []*Record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}
