// Package orchestrator drives the settlement engine's four-phase operation
// protocol (spec §4.J): verify-and-reserve, emit-nullifiers,
// emit-commitments, close. Grounded on m1zr-ccoin's consensus phase-commit
// style (propose/commit staged broadcast) and wyf-ACCEPT-eth2030's
// pkg/sync/state_syncer.go checkpoint-and-resume pattern, generalized to a
// persisted pending-operation ledger instead of an in-memory DAG.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ccoin/shieldengine/internal/field"
	"github.com/ccoin/shieldengine/internal/storage"
)

// ErrOutOfOrder is returned when a caller attempts an action the state
// machine forbids in its current phase (spec §4.J: "only forward
// transitions").
var ErrOutOfOrder = errors.New("orchestrator: transition not permitted in current state")

// maxFanOut bounds phase-2/3 parallel dispatch per spec §5's "recommend ≤ 4
// to respect RPC limits".
const maxFanOut = 4

// VerifyReserveRequest carries everything phase 1 submits: the proof, its
// public inputs, and the pending nullifiers/commitments subsequent phases
// must materialize.
type VerifyReserveRequest struct {
	PoolID       [32]byte
	Proof        []byte
	MerkleRoot   field.Element
	Nullifiers   []field.Element
	Commitments  []field.Element
	OldStateHash [32]byte
	NewStateHash [32]byte
}

// Submitter is the settlement-chain RPC surface the orchestrator drives.
// Modeled as an interface so tests can substitute a fake without a live
// settlement program (spec treats on-chain submission as an external
// collaborator, per §1's non-goals).
type Submitter interface {
	SubmitVerifyReserve(ctx context.Context, req VerifyReserveRequest, operationID string) error
	SubmitEmitNullifier(ctx context.Context, operationID string, index int, poolID [32]byte, nullifier field.Element) error
	SubmitEmitCommitment(ctx context.Context, operationID string, index int, poolID [32]byte, commitment field.Element) error
	SubmitClose(ctx context.Context, operationID string) error
}

// Store is the subset of internal/storage's PostgresStore the orchestrator
// needs, narrowed to an interface for testability.
type Store interface {
	SaveOperation(ctx context.Context, op storage.PendingOperation) error
	MarkNullifierEmitted(ctx context.Context, operationID string, index int) error
	MarkCommitmentEmitted(ctx context.Context, operationID string, index int) error
	EmittedIndices(ctx context.Context, operationID string) (nullifierIdx, commitmentIdx map[int]bool, err error)
	UnclosedOperations(ctx context.Context) ([]storage.PendingOperation, error)
}

// Orchestrator drives operations through Init -> VerifyReserve ->
// EmitNullifiers -> EmitCommitments -> Closed.
type Orchestrator struct {
	submitter Submitter
	store     Store
}

// New builds an Orchestrator against the given settlement submitter and
// persisted pending-operation store.
func New(submitter Submitter, store Store) *Orchestrator {
	return &Orchestrator{submitter: submitter, store: store}
}

// Submit runs a full operation start-to-finish: phase 1 (verify & reserve),
// then phases 2/3 fanned out up to maxFanOut, then phase 4 (close). It
// returns the freshly minted operation id.
func (o *Orchestrator) Submit(ctx context.Context, req VerifyReserveRequest) (string, error) {
	operationID := uuid.NewString()

	nullifierBytes := make([][]byte, len(req.Nullifiers))
	for i, n := range req.Nullifiers {
		b := n.ToBytesBE()
		nullifierBytes[i] = b[:]
	}
	commitmentBytes := make([][]byte, len(req.Commitments))
	for i, c := range req.Commitments {
		b := c.ToBytesBE()
		commitmentBytes[i] = b[:]
	}

	op := storage.PendingOperation{
		OperationID: operationID,
		PoolID:      req.PoolID,
		State:       storage.OperationInit,
		Nullifiers:  nullifierBytes,
		Commitments: commitmentBytes,
	}
	if err := o.store.SaveOperation(ctx, op); err != nil {
		return "", fmt.Errorf("orchestrator: persist init: %w", err)
	}

	if err := o.verifyReserve(ctx, req, operationID); err != nil {
		return operationID, err
	}
	if err := o.emitAll(ctx, operationID, req.PoolID, req.Nullifiers, req.Commitments); err != nil {
		return operationID, err
	}
	if err := o.close(ctx, operationID); err != nil {
		return operationID, err
	}
	return operationID, nil
}

// verifyReserve runs phase 1 and advances Init -> VerifyReserve.
func (o *Orchestrator) verifyReserve(ctx context.Context, req VerifyReserveRequest, operationID string) error {
	if err := o.submitter.SubmitVerifyReserve(ctx, req, operationID); err != nil {
		return fmt.Errorf("orchestrator: phase 1 verify-reserve: %w", err)
	}
	return o.store.SaveOperation(ctx, storage.PendingOperation{
		OperationID: operationID,
		PoolID:      req.PoolID,
		State:       storage.OperationVerifyReserve,
	})
}

// emitAll runs phases 2 and 3 as two sequential, internally-bounded-fanout
// stages, persisting the intermediate EmitNullifiers state between them so
// a crash between phases resumes from a state that reflects nullifiers
// already emitted rather than falling back to VerifyReserve (spec §4.J's
// literal Init -> VerifyReserve -> EmitNullifiers -> EmitCommitments ->
// Closed state list).
func (o *Orchestrator) emitAll(ctx context.Context, operationID string, poolID [32]byte, nullifiers, commitments []field.Element) error {
	nullifierIdx, commitmentIdx, err := o.store.EmittedIndices(ctx, operationID)
	if err != nil {
		return fmt.Errorf("orchestrator: load emitted indices: %w", err)
	}

	if err := o.emitNullifiers(ctx, operationID, poolID, nullifiers, nullifierIdx); err != nil {
		return err
	}
	if err := o.store.SaveOperation(ctx, storage.PendingOperation{
		OperationID: operationID,
		PoolID:      poolID,
		State:       storage.OperationEmitNullifiers,
	}); err != nil {
		return fmt.Errorf("orchestrator: persist emit-nullifiers state: %w", err)
	}

	if err := o.emitCommitments(ctx, operationID, poolID, commitments, commitmentIdx); err != nil {
		return err
	}
	return o.store.SaveOperation(ctx, storage.PendingOperation{
		OperationID: operationID,
		PoolID:      poolID,
		State:       storage.OperationEmitCommitments,
	})
}

// emitNullifiers runs phase 2, each not-yet-emitted index dispatched up to
// maxFanOut concurrent transactions.
func (o *Orchestrator) emitNullifiers(ctx context.Context, operationID string, poolID [32]byte, nullifiers []field.Element, emitted map[int]bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)

	for i, n := range nullifiers {
		if emitted[i] {
			continue
		}
		i, n := i, n
		g.Go(func() error {
			if err := o.submitter.SubmitEmitNullifier(gctx, operationID, i, poolID, n); err != nil {
				return fmt.Errorf("orchestrator: emit nullifier %d: %w", i, err)
			}
			return o.store.MarkNullifierEmitted(gctx, operationID, i)
		})
	}
	return g.Wait()
}

// emitCommitments runs phase 3, each not-yet-emitted index dispatched up to
// maxFanOut concurrent transactions.
func (o *Orchestrator) emitCommitments(ctx context.Context, operationID string, poolID [32]byte, commitments []field.Element, emitted map[int]bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)

	for i, c := range commitments {
		if emitted[i] {
			continue
		}
		i, c := i, c
		g.Go(func() error {
			if err := o.submitter.SubmitEmitCommitment(gctx, operationID, i, poolID, c); err != nil {
				return fmt.Errorf("orchestrator: emit commitment %d: %w", i, err)
			}
			return o.store.MarkCommitmentEmitted(gctx, operationID, i)
		})
	}
	return g.Wait()
}

// close runs phase 4, permissible only once every index has materialized.
func (o *Orchestrator) close(ctx context.Context, operationID string) error {
	if err := o.submitter.SubmitClose(ctx, operationID); err != nil {
		return fmt.Errorf("orchestrator: phase 4 close: %w", err)
	}
	return o.store.SaveOperation(ctx, storage.PendingOperation{
		OperationID: operationID,
		State:       storage.OperationClosed,
	})
}

// Resume enumerates every unclosed operation on startup and replays its
// remaining phases, per spec §4.J's "on restart enumerates remaining
// indices before retrying". Safe to call even if no operations are pending.
func (o *Orchestrator) Resume(ctx context.Context) error {
	pending, err := o.store.UnclosedOperations(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: resume: listing unclosed operations: %w", err)
	}

	for _, op := range pending {
		nullifiers := make([]field.Element, len(op.Nullifiers))
		for i, b := range op.Nullifiers {
			e, err := field.FromBytesBE(b)
			if err != nil {
				return fmt.Errorf("orchestrator: resume %s: malformed nullifier %d: %w", op.OperationID, i, err)
			}
			nullifiers[i] = e
		}
		commitments := make([]field.Element, len(op.Commitments))
		for i, b := range op.Commitments {
			e, err := field.FromBytesBE(b)
			if err != nil {
				return fmt.Errorf("orchestrator: resume %s: malformed commitment %d: %w", op.OperationID, i, err)
			}
			commitments[i] = e
		}

		switch op.State {
		case storage.OperationInit:
			return fmt.Errorf("%w: operation %s stuck in Init, phase 1 outcome unknown", ErrOutOfOrder, op.OperationID)
		case storage.OperationVerifyReserve:
			if err := o.emitAll(ctx, op.OperationID, op.PoolID, nullifiers, commitments); err != nil {
				return err
			}
			if err := o.close(ctx, op.OperationID); err != nil {
				return err
			}
		case storage.OperationEmitNullifiers, storage.OperationEmitCommitments:
			if err := o.emitAll(ctx, op.OperationID, op.PoolID, nullifiers, commitments); err != nil {
				return err
			}
			if err := o.close(ctx, op.OperationID); err != nil {
				return err
			}
		}
	}
	return nil
}
