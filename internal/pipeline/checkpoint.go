package pipeline

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Status is the state of a pipeline instance.
type Status string

const (
	StatusPending        Status = "pending"
	StatusPromptDelivery Status = "prompt-delivery"
	StatusPostProcessing Status = "post-processing"
	StatusComplete       Status = "complete"
	StatusAborted        Status = "aborted"
	StatusFailed         Status = "failed"
)

// Terminal reports whether no further steps run from s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusAborted || s == StatusFailed
}

// StepStatus is the checkpointed result of one step.
type StepStatus string

const (
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// ErrInstanceNotFound is returned for unknown instance ids.
var ErrInstanceNotFound = errors.New("pipeline instance not found")

// Instance is one durable run of the pipeline.
type Instance struct {
	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	Input     json.RawMessage `json:"input"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// StepRecord is a checkpointed step outcome. A step with a record is not
// executed again when the instance is replayed.
type StepRecord struct {
	InstanceID  string     `json:"instanceId"`
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	Outcome     bool       `json:"outcome"`
	Error       string     `json:"error,omitempty"`
	CompletedAt time.Time  `json:"completedAt"`
}

// CheckpointStore persists instances and their step records.
type CheckpointStore interface {
	CreateInstance(ctx context.Context, inst *Instance) error
	GetInstance(ctx context.Context, id string) (*Instance, error)
	UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error
	ListInstances(ctx context.Context, activeOnly bool) ([]*Instance, error)
	SaveStep(ctx context.Context, rec StepRecord) error
	Steps(ctx context.Context, instanceID string) ([]StepRecord, error)
}

// MemoryStore is an in-process CheckpointStore.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	steps     map[string][]StepRecord
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*Instance),
		steps:     make(map[string][]StepRecord),
	}
}

func (m *MemoryStore) CreateInstance(_ context.Context, inst *Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[inst.ID]; ok {
		return errors.Errorf("pipeline instance %s already exists", inst.ID)
	}
	cp := *inst
	m.instances[inst.ID] = &cp
	return nil
}

func (m *MemoryStore) GetInstance(_ context.Context, id string) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	cp := *inst
	return &cp, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, status Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return ErrInstanceNotFound
	}
	inst.Status = status
	inst.Error = errMsg
	inst.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ListInstances(_ context.Context, activeOnly bool) ([]*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		if activeOnly && inst.Status.Terminal() {
			continue
		}
		cp := *inst
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *Instance) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) SaveStep(_ context.Context, rec StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[rec.InstanceID]; !ok {
		return ErrInstanceNotFound
	}
	recs := m.steps[rec.InstanceID]
	for i, r := range recs {
		if r.Name == rec.Name {
			recs[i] = rec
			return nil
		}
	}
	m.steps[rec.InstanceID] = append(recs, rec)
	return nil
}

func (m *MemoryStore) Steps(_ context.Context, instanceID string) ([]StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.steps[instanceID]), nil
}
