package store

import (
	"context"
	"time"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/table"
	"go-forecast-pipeline/pkg/utils"
)

// ExportPredictions replaces the exported predictions of a scenario with
// the rows of t. Index columns absent from t are stored as NULL.
func (s *Store) ExportPredictions(ctx context.Context, scenario, runID string, t *table.Table, prediction string) error {
	if !t.HasColumn(prediction) {
		return errors.Newf("export: column %q not in %s", prediction, t)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin export")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM demand_predictions WHERE scenario = ?`, scenario); err != nil {
		return errors.Wrap(err, "clear exported predictions")
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO demand_predictions (scenario, run_id, product_id, store_id, week_id, prediction, exported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare export")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range t.Rows() {
		if _, err := stmt.ExecContext(ctx, scenario, runID,
			r["product_id"], r["store_id"], r["week_id"], utils.Numeric(r[prediction]), now); err != nil {
			return errors.Wrap(err, "insert prediction")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit export")
	}
	s.log.Infow("Predictions exported", logger.FieldScenario, scenario, logger.FieldRows, t.Len())
	return nil
}
