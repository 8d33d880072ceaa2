// Package storage implements the PostgreSQL-backed persistence layer for
// the shielded engine: the scanner's exported note cache and cursor
// (spec §6 "Persisted state"), and the settlement orchestrator's
// pending-operation ledger (spec §4.J). Adapted from m1zr-ccoin's
// internal/storage/postgres.go connection/pool pattern and its
// ON CONFLICT DO NOTHING idempotency idiom, retargeted at this engine's
// schema.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrDBConnection = errors.New("database connection error")
)

// PostgresStore implements persistent storage using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Config holds database configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig returns default database configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "shieldengine",
		Password: "",
		Database: "shieldengine",
		SSLMode:  "disable",
		MaxConns: 20,
	}
}

// NewPostgresStore creates a new PostgreSQL store and verifies connectivity.
func NewPostgresStore(ctx context.Context, cfg *Config) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// ============================================
// Scanner cache persistence
// ============================================

// CacheEntry is one persisted scanner cache row: either a decrypted note's
// serialized wire form, or a tombstone marking the leaf as not-owned.
type CacheEntry struct {
	ViewKeyID   string
	AccountHash [32]byte
	NotOurs     bool
	Serialized  []byte // opaque serialized note, nil when NotOurs
}

// SaveCacheEntry upserts a scanner cache entry. Idempotent: a repeated scan
// over the same leaf overwrites with an identical row.
func (s *PostgresStore) SaveCacheEntry(ctx context.Context, e CacheEntry) error {
	query := `
		INSERT INTO scanner_cache (view_key_id, account_hash, not_ours, serialized_note)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (view_key_id, account_hash) DO UPDATE
			SET not_ours = $3, serialized_note = $4
	`
	_, err := s.pool.Exec(ctx, query, e.ViewKeyID, e.AccountHash[:], e.NotOurs, e.Serialized)
	if err != nil {
		return fmt.Errorf("storage: save cache entry: %w", err)
	}
	return nil
}

// GetCacheEntry returns a previously persisted cache entry, or ErrNotFound.
func (s *PostgresStore) GetCacheEntry(ctx context.Context, viewKeyID string, accountHash [32]byte) (*CacheEntry, error) {
	query := `SELECT not_ours, serialized_note FROM scanner_cache WHERE view_key_id = $1 AND account_hash = $2`

	var entry CacheEntry
	entry.ViewKeyID = viewKeyID
	entry.AccountHash = accountHash

	err := s.pool.QueryRow(ctx, query, viewKeyID, accountHash[:]).Scan(&entry.NotOurs, &entry.Serialized)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get cache entry: %w", err)
	}
	return &entry, nil
}

// ExportCache loads every cache entry for a viewing key, for the §6
// persisted-cache export format.
func (s *PostgresStore) ExportCache(ctx context.Context, viewKeyID string) ([]CacheEntry, error) {
	query := `SELECT account_hash, not_ours, serialized_note FROM scanner_cache WHERE view_key_id = $1`

	rows, err := s.pool.Query(ctx, query, viewKeyID)
	if err != nil {
		return nil, fmt.Errorf("storage: export cache: %w", err)
	}
	defer rows.Close()

	var out []CacheEntry
	for rows.Next() {
		var hashBytes []byte
		e := CacheEntry{ViewKeyID: viewKeyID}
		if err := rows.Scan(&hashBytes, &e.NotOurs, &e.Serialized); err != nil {
			return nil, err
		}
		copy(e.AccountHash[:], hashBytes)
		out = append(out, e)
	}
	return out, nil
}

// SetCursor persists the highest-scanned slot for a pool.
func (s *PostgresStore) SetCursor(ctx context.Context, poolID [32]byte, slot int64) error {
	query := `
		INSERT INTO scanner_cursor (pool_id, slot) VALUES ($1, $2)
		ON CONFLICT (pool_id) DO UPDATE SET slot = GREATEST(scanner_cursor.slot, $2)
	`
	_, err := s.pool.Exec(ctx, query, poolID[:], slot)
	if err != nil {
		return fmt.Errorf("storage: set cursor: %w", err)
	}
	return nil
}

// GetCursor returns the last-scanned slot for a pool, or 0 if unset.
func (s *PostgresStore) GetCursor(ctx context.Context, poolID [32]byte) (int64, error) {
	query := `SELECT slot FROM scanner_cursor WHERE pool_id = $1`
	var slot int64
	err := s.pool.QueryRow(ctx, query, poolID[:]).Scan(&slot)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: get cursor: %w", err)
	}
	return slot, nil
}

// ============================================
// Orchestrator pending-operation ledger
// ============================================

// OperationState is the settlement state machine's current phase
// (spec §4.J: Init -> VerifyReserve -> EmitNullifiers -> EmitCommitments -> Closed).
type OperationState string

const (
	OperationInit            OperationState = "init"
	OperationVerifyReserve   OperationState = "verify_reserve"
	OperationEmitNullifiers  OperationState = "emit_nullifiers"
	OperationEmitCommitments OperationState = "emit_commitments"
	OperationClosed          OperationState = "closed"
)

// PendingOperation is the authoritative record of an in-flight settlement
// operation, surviving client restarts (spec §4.J's "pending-operation
// entry... publicly readable" local mirror).
type PendingOperation struct {
	OperationID string
	PoolID      [32]byte
	State       OperationState
	Nullifiers  [][]byte
	Commitments [][]byte
}

// SaveOperation upserts an operation's current state and index bookkeeping.
func (s *PostgresStore) SaveOperation(ctx context.Context, op PendingOperation) error {
	query := `
		INSERT INTO pending_operations (operation_id, pool_id, state, nullifiers, commitments)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (operation_id) DO UPDATE SET state = $3
	`
	_, err := s.pool.Exec(ctx, query, op.OperationID, op.PoolID[:], string(op.State), op.Nullifiers, op.Commitments)
	if err != nil {
		return fmt.Errorf("storage: save operation: %w", err)
	}
	return nil
}

// MarkNullifierEmitted records that nullifier index i of operationID has
// materialized, idempotently: a repeated call with the same index is a
// no-op via ON CONFLICT DO NOTHING (spec §4.J: "retries within a state are
// idempotent because emission is indexed").
func (s *PostgresStore) MarkNullifierEmitted(ctx context.Context, operationID string, index int) error {
	query := `
		INSERT INTO pending_operation_nullifier_emissions (operation_id, idx)
		VALUES ($1, $2)
		ON CONFLICT (operation_id, idx) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query, operationID, index)
	return err
}

// MarkCommitmentEmitted is MarkNullifierEmitted's commitment-phase twin.
func (s *PostgresStore) MarkCommitmentEmitted(ctx context.Context, operationID string, index int) error {
	query := `
		INSERT INTO pending_operation_commitment_emissions (operation_id, idx)
		VALUES ($1, $2)
		ON CONFLICT (operation_id, idx) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query, operationID, index)
	return err
}

// EmittedIndices returns which nullifier/commitment indices have already
// materialized for operationID, used to skip redundant broadcasts when
// phases 2/3 are run again for the same operation.
func (s *PostgresStore) EmittedIndices(ctx context.Context, operationID string) (nullifierIdx, commitmentIdx map[int]bool, err error) {
	nullifierIdx = make(map[int]bool)
	commitmentIdx = make(map[int]bool)

	nrows, err := s.pool.Query(ctx, `SELECT idx FROM pending_operation_nullifier_emissions WHERE operation_id = $1`, operationID)
	if err != nil {
		return nil, nil, err
	}
	defer nrows.Close()
	for nrows.Next() {
		var idx int
		if err := nrows.Scan(&idx); err != nil {
			return nil, nil, err
		}
		nullifierIdx[idx] = true
	}

	crows, err := s.pool.Query(ctx, `SELECT idx FROM pending_operation_commitment_emissions WHERE operation_id = $1`, operationID)
	if err != nil {
		return nil, nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var idx int
		if err := crows.Scan(&idx); err != nil {
			return nil, nil, err
		}
		commitmentIdx[idx] = true
	}

	return nullifierIdx, commitmentIdx, nil
}

// UnclosedOperations enumerates every operation not yet in OperationClosed
// state, for the orchestrator's startup Resume() per spec §4.J/§7
// (OperationResumeRequired).
func (s *PostgresStore) UnclosedOperations(ctx context.Context) ([]PendingOperation, error) {
	query := `SELECT operation_id, pool_id, state, nullifiers, commitments FROM pending_operations WHERE state != $1`
	rows, err := s.pool.Query(ctx, query, string(OperationClosed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingOperation
	for rows.Next() {
		var op PendingOperation
		var poolIDBytes []byte
		var state string
		if err := rows.Scan(&op.OperationID, &poolIDBytes, &state, &op.Nullifiers, &op.Commitments); err != nil {
			return nil, err
		}
		copy(op.PoolID[:], poolIDBytes)
		op.State = OperationState(state)
		out = append(out, op)
	}
	return out, nil
}
