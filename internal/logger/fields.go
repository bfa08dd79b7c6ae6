package logger

// Standard field names for structured logging.
const (
	FieldScenario   = "scenario"
	FieldStage      = "stage"
	FieldOperator   = "operator"
	FieldRunID      = "run_id"
	FieldScope      = "scope"
	FieldSource     = "source"
	FieldFeature    = "feature"
	FieldFile       = "file"
	FieldRows       = "rows"
	FieldColumns    = "columns"
	FieldDurationMS = "duration_ms"
	FieldStatus     = "status"
	FieldModel      = "model"
	FieldError      = "error"
	FieldPath       = "path"
	FieldMethod     = "method"
	FieldAddress    = "address"
)
