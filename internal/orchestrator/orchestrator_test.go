package orchestrator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccoin/shieldengine/internal/field"
	"github.com/ccoin/shieldengine/internal/orchestrator"
	"github.com/ccoin/shieldengine/internal/storage"
)

// fakeSubmitter counts confirmed transactions, rejects duplicate emission
// indices, and rejects phase-2/3 emissions before phase 1. SubmitClose
// accepts every call.
type fakeSubmitter struct {
	mu                   sync.Mutex
	confirmedTxCount     int
	verifiedReserve      map[string]bool
	emittedNullifiers    map[string]map[int]bool
	emittedCommitments   map[string]map[int]bool
	closed               map[string]bool
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{
		verifiedReserve:     make(map[string]bool),
		emittedNullifiers:   make(map[string]map[int]bool),
		emittedCommitments:  make(map[string]map[int]bool),
		closed:              make(map[string]bool),
	}
}

func (f *fakeSubmitter) SubmitVerifyReserve(ctx context.Context, req orchestrator.VerifyReserveRequest, operationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifiedReserve[operationID] = true
	f.confirmedTxCount++
	return nil
}

func (f *fakeSubmitter) SubmitEmitNullifier(ctx context.Context, operationID string, index int, poolID [32]byte, nullifier field.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.verifiedReserve[operationID] {
		return fmt.Errorf("phase 1 not confirmed")
	}
	if f.emittedNullifiers[operationID] == nil {
		f.emittedNullifiers[operationID] = make(map[int]bool)
	}
	if f.emittedNullifiers[operationID][index] {
		return fmt.Errorf("duplicate nullifier index %d", index)
	}
	f.emittedNullifiers[operationID][index] = true
	f.confirmedTxCount++
	return nil
}

func (f *fakeSubmitter) SubmitEmitCommitment(ctx context.Context, operationID string, index int, poolID [32]byte, commitment field.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.verifiedReserve[operationID] {
		return fmt.Errorf("phase 1 not confirmed")
	}
	if f.emittedCommitments[operationID] == nil {
		f.emittedCommitments[operationID] = make(map[int]bool)
	}
	if f.emittedCommitments[operationID][index] {
		return fmt.Errorf("duplicate commitment index %d", index)
	}
	f.emittedCommitments[operationID][index] = true
	f.confirmedTxCount++
	return nil
}

func (f *fakeSubmitter) SubmitClose(ctx context.Context, operationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[operationID] = true
	f.confirmedTxCount++
	return nil
}

// memStore is an in-memory stand-in for internal/storage's PostgresStore.
type memStore struct {
	mu         sync.Mutex
	ops        map[string]storage.PendingOperation
	nullifiers map[string]map[int]bool
	commitments map[string]map[int]bool
}

func newMemStore() *memStore {
	return &memStore{
		ops:         make(map[string]storage.PendingOperation),
		nullifiers:  make(map[string]map[int]bool),
		commitments: make(map[string]map[int]bool),
	}
}

func (m *memStore) SaveOperation(ctx context.Context, op storage.PendingOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.ops[op.OperationID]
	if ok {
		existing.State = op.State
		m.ops[op.OperationID] = existing
	} else {
		m.ops[op.OperationID] = op
	}
	return nil
}

func (m *memStore) MarkNullifierEmitted(ctx context.Context, operationID string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nullifiers[operationID] == nil {
		m.nullifiers[operationID] = make(map[int]bool)
	}
	m.nullifiers[operationID][index] = true
	return nil
}

func (m *memStore) MarkCommitmentEmitted(ctx context.Context, operationID string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitments[operationID] == nil {
		m.commitments[operationID] = make(map[int]bool)
	}
	m.commitments[operationID][index] = true
	return nil
}

func (m *memStore) EmittedIndices(ctx context.Context, operationID string) (map[int]bool, map[int]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := make(map[int]bool)
	for k, v := range m.nullifiers[operationID] {
		n[k] = v
	}
	c := make(map[int]bool)
	for k, v := range m.commitments[operationID] {
		c[k] = v
	}
	return n, c, nil
}

func (m *memStore) UnclosedOperations(ctx context.Context) ([]storage.PendingOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.PendingOperation
	for _, op := range m.ops {
		if op.State != storage.OperationClosed {
			out = append(out, op)
		}
	}
	return out, nil
}

// Scenario 7: a two-nullifier, three-commitment operation completes in
// exactly 1 + 2 + 3 + 1 = 7 confirmed transactions (spec §8).
func TestScenario7TwoPhaseSettlement(t *testing.T) {
	sub := newFakeSubmitter()
	store := newMemStore()
	o := orchestrator.New(sub, store)

	req := orchestrator.VerifyReserveRequest{
		PoolID:      [32]byte{1},
		Nullifiers:  []field.Element{field.FromUint64(1), field.FromUint64(2)},
		Commitments: []field.Element{field.FromUint64(10), field.FromUint64(11), field.FromUint64(12)},
	}

	operationID, err := o.Submit(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 7, sub.confirmedTxCount)
	require.True(t, sub.closed[operationID])
}

func TestDuplicateNullifierIndexRejected(t *testing.T) {
	sub := newFakeSubmitter()
	sub.verifiedReserve["op-1"] = true
	err := sub.SubmitEmitNullifier(context.Background(), "op-1", 0, [32]byte{}, field.FromUint64(1))
	require.NoError(t, err)
	err = sub.SubmitEmitNullifier(context.Background(), "op-1", 0, [32]byte{}, field.FromUint64(1))
	require.Error(t, err)
}

func TestEmitNullifierRejectedBeforeVerifyReserve(t *testing.T) {
	sub := newFakeSubmitter()
	err := sub.SubmitEmitNullifier(context.Background(), "op-2", 0, [32]byte{}, field.FromUint64(1))
	require.Error(t, err)
}
