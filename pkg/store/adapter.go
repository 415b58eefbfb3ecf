// Copyright 2025 Ditto Network

package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dittonetwork/workflow-engine/pkg/workflow"
)

// Adapter implements C7, the Workflow Store Adapter (spec §4.7).
type Adapter struct {
	client *Client
}

// NewAdapter wraps a Client with the typed workflow operations.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

// Update describes a partial mutation applied to one document. Nil fields
// are left unchanged; IsCancelled and Runs use pointer/flag fields because
// their zero values are meaningful.
type Update struct {
	Meta               *workflow.Meta
	Runs               *int64
	IsCancelled        *bool
	NextSimulationTime **time.Time
	BlockTracking      map[string]workflow.BlockMark
	LastSimulation     *workflow.SimulationResult
	ValidationDetails  *workflow.ValidationDetails
}

// GetDue returns workflows eligible for a processing attempt this cycle
// (spec §4.7): not cancelled, and either their next_simulation_time has
// arrived, or they have no triggers and are within their valid window.
func (a *Adapter) GetDue(ctx context.Context) ([]*workflow.Document, error) {
	rows, err := a.client.DB().QueryContext(ctx, `
		SELECT content_hash, meta, runs, is_cancelled, next_simulation_time,
		       block_tracking, last_simulation, validation_details, valid_after, valid_until
		FROM workflows
		WHERE is_cancelled = false
		  AND (
		        next_simulation_time <= now()
		        OR (
		              (meta IS NULL OR jsonb_array_length(COALESCE(meta->'triggers', '[]'::jsonb)) = 0)
		              AND valid_after <= now() AND now() <= valid_until
		           )
		      )`)
	if err != nil {
		return nil, fmt.Errorf("store: get_due: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// GetMissingNextTime returns up to limit workflows whose
// next_simulation_time has never been bootstrapped.
func (a *Adapter) GetMissingNextTime(ctx context.Context, limit int) ([]*workflow.Document, error) {
	rows, err := a.client.DB().QueryContext(ctx, `
		SELECT content_hash, meta, runs, is_cancelled, next_simulation_time,
		       block_tracking, last_simulation, validation_details, valid_after, valid_until
		FROM workflows
		WHERE is_cancelled = false AND next_simulation_time IS NULL
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: get_missing_next_time: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// GetByHashes reloads a specific set of documents, used by the scheduler
// to pick up watermarks it wrote earlier in the same cycle (§4.9 step 5).
func (a *Adapter) GetByHashes(ctx context.Context, hashes []string) ([]*workflow.Document, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	rows, err := a.client.DB().QueryContext(ctx, `
		SELECT content_hash, meta, runs, is_cancelled, next_simulation_time,
		       block_tracking, last_simulation, validation_details, valid_after, valid_until
		FROM workflows
		WHERE content_hash = ANY($1)`, pqStringArray(hashes))
	if err != nil {
		return nil, fmt.Errorf("store: get_by_hashes: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// Find returns a single document by content hash, or ErrNotFound.
func (a *Adapter) Find(ctx context.Context, hash string) (*workflow.Document, error) {
	row := a.client.DB().QueryRowContext(ctx, `
		SELECT content_hash, meta, runs, is_cancelled, next_simulation_time,
		       block_tracking, last_simulation, validation_details, valid_after, valid_until
		FROM workflows WHERE content_hash = $1`, hash)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find: %w", err)
	}
	return doc, nil
}

// Insert creates a new document (I1: content_hash is unique).
func (a *Adapter) Insert(ctx context.Context, doc *workflow.Document) error {
	metaJSON, err := marshalNullable(doc.Meta)
	if err != nil {
		return fmt.Errorf("store: insert: marshal meta: %w", err)
	}
	blockJSON, err := json.Marshal(doc.BlockTracking)
	if err != nil {
		return fmt.Errorf("store: insert: marshal block_tracking: %w", err)
	}
	_, err = a.client.DB().ExecContext(ctx, `
		INSERT INTO workflows (content_hash, meta, runs, is_cancelled, next_simulation_time,
		                        block_tracking, valid_after, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (content_hash) DO NOTHING`,
		doc.ContentHash, metaJSON, doc.Runs, doc.IsCancelled, doc.NextSimulationTime,
		blockJSON, doc.ValidAfter, doc.ValidUntil)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

// Update applies a partial mutation to a document. Once is_cancelled is
// true the document is terminal (I5): any update that does not itself set
// IsCancelled returns ErrCancelled.
func (a *Adapter) Update(ctx context.Context, hash string, upd Update) error {
	return a.withTx(ctx, func(tx *sql.Tx) error {
		var isCancelled bool
		if err := tx.QueryRowContext(ctx, `SELECT is_cancelled FROM workflows WHERE content_hash = $1 FOR UPDATE`, hash).Scan(&isCancelled); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		if isCancelled && upd.IsCancelled == nil {
			return ErrCancelled
		}

		sets := []string{}
		args := []any{}
		arg := func(v any) string {
			args = append(args, v)
			return fmt.Sprintf("$%d", len(args))
		}

		if upd.Meta != nil {
			metaJSON, err := json.Marshal(upd.Meta)
			if err != nil {
				return fmt.Errorf("marshal meta: %w", err)
			}
			sets = append(sets, "meta = "+arg(metaJSON))
		}
		if upd.Runs != nil {
			sets = append(sets, "runs = "+arg(*upd.Runs))
		}
		if upd.IsCancelled != nil {
			sets = append(sets, "is_cancelled = "+arg(*upd.IsCancelled))
		}
		if upd.NextSimulationTime != nil {
			sets = append(sets, "next_simulation_time = "+arg(*upd.NextSimulationTime))
		}
		if upd.BlockTracking != nil {
			blockJSON, err := json.Marshal(upd.BlockTracking)
			if err != nil {
				return fmt.Errorf("marshal block_tracking: %w", err)
			}
			sets = append(sets, "block_tracking = "+arg(blockJSON))
		}
		if upd.LastSimulation != nil {
			simJSON, err := json.Marshal(upd.LastSimulation)
			if err != nil {
				return fmt.Errorf("marshal last_simulation: %w", err)
			}
			sets = append(sets, "last_simulation = "+arg(simJSON))
		}
		if upd.ValidationDetails != nil {
			detJSON, err := json.Marshal(upd.ValidationDetails)
			if err != nil {
				return fmt.Errorf("marshal validation_details: %w", err)
			}
			sets = append(sets, "validation_details = "+arg(detJSON))
		}

		if len(sets) == 0 {
			return nil
		}

		query := "UPDATE workflows SET "
		for i, s := range sets {
			if i > 0 {
				query += ", "
			}
			query += s
		}
		query += " WHERE content_hash = " + arg(hash)

		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
}

// UnsyncedChainsCount returns how many chains are currently flagged
// unsynced; the scheduler gates all processing while this is nonzero
// (§4.9 step 1).
func (a *Adapter) UnsyncedChainsCount(ctx context.Context) (int, error) {
	var count int
	err := a.client.DB().QueryRowContext(ctx, `SELECT count(*) FROM chains WHERE unsynced = true`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: unsynced_chains_count: %w", err)
	}
	return count, nil
}

// HasWasm reports whether bytes for hash are already stored.
func (a *Adapter) HasWasm(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := a.client.DB().QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM wasm_modules WHERE wasm_hash = $1)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: has_wasm: %w", err)
	}
	return exists, nil
}

// StoreWasm writes bytes under their content hash. The write is
// idempotent: storing the same hash twice is a no-op on the second call.
func (a *Adapter) StoreWasm(ctx context.Context, bytes []byte) (string, error) {
	sum := sha256.Sum256(bytes)
	hash := hex.EncodeToString(sum[:])
	_, err := a.client.DB().ExecContext(ctx, `
		INSERT INTO wasm_modules (wasm_hash, wasm_code, wasm_code_size)
		VALUES ($1, $2, $3)
		ON CONFLICT (wasm_hash) DO NOTHING`, hash, bytes, len(bytes))
	if err != nil {
		return "", fmt.Errorf("store: store_wasm: %w", err)
	}
	return hash, nil
}

// LoadWasm reads the bytes stored under hash.
func (a *Adapter) LoadWasm(ctx context.Context, hash string) (*workflow.WasmBlob, error) {
	var blob workflow.WasmBlob
	err := a.client.DB().QueryRowContext(ctx, `
		SELECT wasm_hash, wasm_code, wasm_code_size, stored_at
		FROM wasm_modules WHERE wasm_hash = $1`, hash).
		Scan(&blob.Hash, &blob.Bytes, &blob.Size, &blob.StoredAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoWasmBlob
	}
	if err != nil {
		return nil, fmt.Errorf("store: load_wasm: %w", err)
	}
	return &blob, nil
}

// WithTransaction runs fn inside a transaction when the backend supports
// it. On a standalone (non-replica-set) backend where BeginTx still
// succeeds, this is equivalent to a normal transaction; the spec's
// fallback language describes MongoDB's session requirement, which does
// not apply to the Postgres backing chosen here (see DESIGN.md) — the
// method signature is kept so callers do not need to know which backend
// is in use.
func (a *Adapter) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return a.withTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx)
	})
}

func (a *Adapter) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := a.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func scanDocuments(rows *sql.Rows) ([]*workflow.Document, error) {
	var docs []*workflow.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*workflow.Document, error) {
	var doc workflow.Document
	var metaRaw, blockRaw, simRaw, detailsRaw []byte

	err := row.Scan(&doc.ContentHash, &metaRaw, &doc.Runs, &doc.IsCancelled, &doc.NextSimulationTime,
		&blockRaw, &simRaw, &detailsRaw, &doc.ValidAfter, &doc.ValidUntil)
	if err != nil {
		return nil, err
	}

	if len(metaRaw) > 0 {
		doc.Meta = &workflow.Meta{}
		if err := json.Unmarshal(metaRaw, doc.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta: %w", err)
		}
	}
	if len(blockRaw) > 0 {
		if err := json.Unmarshal(blockRaw, &doc.BlockTracking); err != nil {
			return nil, fmt.Errorf("unmarshal block_tracking: %w", err)
		}
	}
	if len(simRaw) > 0 {
		doc.LastSimulation = &workflow.SimulationResult{}
		if err := json.Unmarshal(simRaw, doc.LastSimulation); err != nil {
			return nil, fmt.Errorf("unmarshal last_simulation: %w", err)
		}
	}
	if len(detailsRaw) > 0 {
		doc.ValidationDetails = &workflow.ValidationDetails{}
		if err := json.Unmarshal(detailsRaw, doc.ValidationDetails); err != nil {
			return nil, fmt.Errorf("unmarshal validation_details: %w", err)
		}
	}
	return &doc, nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// pqStringArray renders a Go string slice as a Postgres text[] literal
// usable with ANY($1) without pulling in the lib/pq array helper type.
func pqStringArray(values []string) string {
	out := "{"
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += `"` + escapePQ(v) + `"`
	}
	return out + "}"
}

func escapePQ(v string) string {
	out := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if v[i] == '"' || v[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, v[i])
	}
	return string(out)
}
