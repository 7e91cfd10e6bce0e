// Package etl implements the licencia medica extraction pipeline: windowed
// batch reads from the operational source table, dimension normalization,
// idempotent writes into the analytics schema, and task lifecycle tracking.
package etl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// Phase is the lifecycle state of an extraction task.
type Phase string

const (
	PhaseInitial   Phase = "initial"
	PhaseInProcess Phase = "in_process"
	PhaseExecuteRN Phase = "execute_rn"
	PhaseFinish    Phase = "finish"
	PhaseError     Phase = "error"
)

// Terminal reports whether no further transitions are allowed out of p.
func (p Phase) Terminal() bool {
	return p == PhaseFinish || p == PhaseError
}

// Detail is the status payload attached to each phase. Field names follow the
// wire format consumed by existing pollers.
type Detail struct {
	TaskID        string `json:"idtask"`
	RecordsCopied int    `json:"record_process"`
	ErrorCode     int    `json:"id_error,omitempty"`
	ErrorMessage  string `json:"message,omitempty"`
}

// StatusDoc is what pollers observe for a task.
type StatusDoc struct {
	Status Phase  `json:"status"`
	Detail Detail `json:"detail"`
}

// TaskID derives the deterministic identifier for an extraction request. The
// request is serialized as key-sorted JSON, so identical parameter sets hash
// identically regardless of field order.
func TaskID(req Request) string {
	canonical, _ := json.Marshal(map[string]string{
		"start_date": req.StartDate,
		"end_date":   req.EndDate,
	})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// StatusStore tracks task lifecycle state. Implementations must provide
// read-your-writes semantics within one process; a durable backend can be
// swapped in without changing callers.
type StatusStore interface {
	// Get returns the current status for a task, or nil if unknown.
	Get(ctx context.Context, taskID string) (*StatusDoc, error)
	// Set unconditionally overwrites the status for a task.
	Set(ctx context.Context, taskID string, phase Phase, detail Detail) error
}

// MemoryStatusStore keeps task status in process memory. Tasks are never
// deleted for the lifetime of the process.
type MemoryStatusStore struct {
	mu    sync.RWMutex
	tasks map[string]StatusDoc
}

// NewMemoryStatusStore creates an empty in-memory status store.
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{tasks: make(map[string]StatusDoc)}
}

func (s *MemoryStatusStore) Get(_ context.Context, taskID string) (*StatusDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (s *MemoryStatusStore) Set(_ context.Context, taskID string, phase Phase, detail Detail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[taskID] = StatusDoc{Status: phase, Detail: detail}
	return nil
}
