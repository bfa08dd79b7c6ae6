package store

import (
	"context"
	"database/sql"
	"time"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/model"
)

// StartRun stores a new pipeline run.
func (s *Store) StartRun(ctx context.Context, run model.RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, begin_stage, final_stage, test, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Scenario, run.BeginStage, run.FinalStage, run.Test, run.Status, run.CreatedAt, run.CreatedAt)
	return errors.Wrapf(err, "save run %s", run.ID)
}

// FinishRun records the final status of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status string, runErr error) error {
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, msg, time.Now().UTC(), runID)
	return errors.Wrapf(err, "update run %s", runID)
}

// RecordOperator stores the outcome of one operator.
func (s *Store) RecordOperator(ctx context.Context, rec model.OperatorRecord) error {
	var msg sql.NullString
	if rec.Error != "" {
		msg = sql.NullString{String: rec.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_operators (run_id, operator, target_stage, status, start_time, end_time, duration_ms, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Operator, rec.TargetStage, rec.Status, rec.StartTime, rec.EndTime,
		rec.Duration.Milliseconds(), msg)
	return errors.Wrapf(err, "save operator %s of run %s", rec.Operator, rec.RunID)
}

// ListRuns returns the runs of a scenario, newest first, with their
// operator outcomes.
func (s *Store) ListRuns(ctx context.Context, scenario string) ([]model.RunDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scenario, begin_stage, final_stage, test, status, error_message, created_at, updated_at
		FROM runs WHERE scenario = ? ORDER BY created_at DESC`, scenario)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	var runs []model.RunDetail
	for rows.Next() {
		var r model.RunDetail
		var msg sql.NullString
		if err := rows.Scan(&r.ID, &r.Scenario, &r.BeginStage, &r.FinalStage, &r.Test, &r.Status,
			&msg, &r.CreatedAt, &r.UpdatedAt); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan run")
		}
		r.Error = msg.String
		runs = append(runs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate runs")
	}

	// operators are read once the runs cursor is released: the pool holds
	// a single connection
	for i := range runs {
		ops, err := s.operators(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Operators = ops
	}
	return runs, nil
}

// GetRun returns one run with its operators.
func (s *Store) GetRun(ctx context.Context, runID string) (model.RunDetail, error) {
	var r model.RunDetail
	var msg sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, scenario, begin_stage, final_stage, test, status, error_message, created_at, updated_at
		FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.Scenario, &r.BeginStage, &r.FinalStage, &r.Test, &r.Status, &msg, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, errors.Wrapf(errors.ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return r, errors.Wrapf(err, "get run %s", runID)
	}
	r.Error = msg.String
	if r.Operators, err = s.operators(ctx, runID); err != nil {
		return r, err
	}
	return r, nil
}

func (s *Store) operators(ctx context.Context, runID string) ([]model.OperatorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, operator, target_stage, status, start_time, end_time, duration_ms, error_message
		FROM run_operators WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "list operators of run %s", runID)
	}
	defer rows.Close()

	var out []model.OperatorRecord
	for rows.Next() {
		var rec model.OperatorRecord
		var ms int64
		var msg sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Operator, &rec.TargetStage, &rec.Status,
			&rec.StartTime, &rec.EndTime, &ms, &msg); err != nil {
			return nil, errors.Wrap(err, "scan operator")
		}
		rec.Duration = time.Duration(ms) * time.Millisecond
		rec.Error = msg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
