// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Registers the pure-Go "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/flowstate-dev/flowstate/pkg/storage"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// Store implements storage.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (or creates) a SQLite database at path and applies pending
// migrations. Use ":memory:" for an ephemeral database.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// modernc.org/sqlite serializes access through one connection; more
	// connections only add lock contention.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// instanceColumns is the SELECT column list shared by Load and
// FindInstances.
const instanceColumns = `id, state, json(definition), json(data), current_step_id,
	json(completed_steps), json(failed_steps), error_message, revision, created_at, updated_at`

// Save implements storage.Store. The stored revision is compared against
// the caller's inside one transaction, so concurrent writers cannot both
// win.
func (s *Store) Save(ctx context.Context, instance *workflow.Instance) error {
	if instance == nil || instance.ID == "" {
		return fmt.Errorf("instance must have an ID")
	}

	defJSON, err := json.Marshal(instance.Definition)
	if err != nil {
		return fmt.Errorf("encoding definition: %w", err)
	}
	dataJSON, err := json.Marshal(orEmptyMap(instance.Data))
	if err != nil {
		return fmt.Errorf("encoding data: %w", err)
	}
	completedJSON, err := json.Marshal(orEmptySlice(instance.CompletedSteps))
	if err != nil {
		return fmt.Errorf("encoding completed steps: %w", err)
	}
	failedJSON, err := json.Marshal(orEmptyFailures(instance.FailedSteps))
	if err != nil {
		return fmt.Errorf("encoding failed steps: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	var storedRevision int64
	err = tx.QueryRowContext(ctx,
		`SELECT revision FROM instances WHERE id = ?`, instance.ID,
	).Scan(&storedRevision)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO instances (
				id, name, version, state, definition, data, current_step_id,
				completed_steps, failed_steps, error_message, revision,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, jsonb(?), jsonb(?), ?, jsonb(?), jsonb(?), ?, ?, ?, ?)`,
			instance.ID,
			instance.Definition.Name(),
			instance.Definition.Version(),
			string(instance.State),
			string(defJSON),
			string(dataJSON),
			instance.CurrentStepID,
			string(completedJSON),
			string(failedJSON),
			instance.ErrorMessage,
			instance.Revision+1,
			formatTime(instance.CreatedAt),
			formatTime(instance.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting instance: %w", err)
		}

	case err != nil:
		return fmt.Errorf("looking up instance revision: %w", err)

	case storedRevision != instance.Revision:
		return fmt.Errorf("%w: %s has revision %d, caller has %d",
			storage.ErrRevisionConflict, instance.ID, storedRevision, instance.Revision)

	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE instances SET
				state = ?, data = jsonb(?), current_step_id = ?,
				completed_steps = jsonb(?), failed_steps = jsonb(?),
				error_message = ?, revision = ?, updated_at = ?
			WHERE id = ? AND revision = ?`,
			string(instance.State),
			string(dataJSON),
			instance.CurrentStepID,
			string(completedJSON),
			string(failedJSON),
			instance.ErrorMessage,
			instance.Revision+1,
			formatTime(instance.UpdatedAt),
			instance.ID,
			instance.Revision,
		)
		if err != nil {
			return fmt.Errorf("updating instance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	instance.Revision++
	return nil
}

// Load implements storage.Store.
func (s *Store) Load(ctx context.Context, id string) (*workflow.Instance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id)

	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return instance, err
}

// Exists implements storage.Store.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM instances WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking instance existence: %w", err)
	}
	return true, nil
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return nil
}

// FindInstances implements storage.Store. Results are sorted newest
// first, with the instance ID breaking creation-time ties.
func (s *Store) FindInstances(ctx context.Context, filter storage.Filter) ([]*workflow.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.Name != "" {
		query += ` AND name = ?`
		args = append(args, filter.Name)
	}

	query += ` ORDER BY created_at DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying instances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	instances := make([]*workflow.Instance, 0)
	for rows.Next() {
		instance, scanErr := scanInstance(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		instances = append(instances, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating instance rows: %w", err)
	}
	return instances, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface{ Scan(dest ...any) error }

// scanInstance scans one instance row.
func scanInstance(sc scanner) (*workflow.Instance, error) {
	var (
		instance      workflow.Instance
		state         string
		defBlob       []byte
		dataBlob      []byte
		completedBlob []byte
		failedBlob    []byte
		createdAtStr  string
		updatedAtStr  string
	)

	err := sc.Scan(
		&instance.ID, &state, &defBlob, &dataBlob, &instance.CurrentStepID,
		&completedBlob, &failedBlob, &instance.ErrorMessage,
		&instance.Revision, &createdAtStr, &updatedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning instance row: %w", err)
	}

	instance.State = workflow.State(state)

	var def workflow.Definition
	if err := json.Unmarshal(defBlob, &def); err != nil {
		return nil, fmt.Errorf("decoding definition: %w", err)
	}
	instance.Definition = &def

	if err := json.Unmarshal(dataBlob, &instance.Data); err != nil {
		return nil, fmt.Errorf("decoding data: %w", err)
	}
	if err := json.Unmarshal(completedBlob, &instance.CompletedSteps); err != nil {
		return nil, fmt.Errorf("decoding completed steps: %w", err)
	}
	if err := json.Unmarshal(failedBlob, &instance.FailedSteps); err != nil {
		return nil, fmt.Errorf("decoding failed steps: %w", err)
	}

	if instance.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if instance.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &instance, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyFailures(s []workflow.FailedStep) []workflow.FailedStep {
	if s == nil {
		return []workflow.FailedStep{}
	}
	return s
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }
