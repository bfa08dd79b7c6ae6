package store

import (
	"context"
	"time"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/internal/table"
)

// Query runs a read query and returns its result as a table. Dates come
// back as YYYY-MM-DD strings and integers as int64.
func (s *Store) Query(ctx context.Context, query string) (*table.Table, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.WithDetailf(errors.Wrap(err, "query origin store"), "query: %s", query)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns")
	}
	out := table.New(cols)
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		rec := make(model.GenericRecord, len(cols))
		for i, c := range cols {
			rec[c] = normalize(values[i])
		}
		out.Append(rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}
	s.log.Debugw("Query executed", logger.FieldRows, out.Len(), logger.FieldDurationMS, time.Since(start).Milliseconds())
	return out, nil
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(config.DateLayout)
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	}
	return v
}
