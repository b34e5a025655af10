package model

// FactRow is the scorer's input. Rows read from the fact table only carry
// TotalRON; SumaClean and VariabilaClean are set when the source exposes them
// (the CSV-driven flow always does).
type FactRow struct {
	RecordPK       string   `json:"record_pk"`
	Year           *int     `json:"year"`
	CompanyID      string   `json:"company_id"`
	PersonID       string   `json:"person_id"`
	TotalRON       *float64 `json:"total_ron"`
	SumaClean      *float64 `json:"suma_clean,omitempty"`
	VariabilaClean *float64 `json:"variabila_clean,omitempty"`
}

// ScoredRecord is a FactRow with its anomaly score and the ordered reason
// tags that contributed to it.
type ScoredRecord struct {
	FactRow
	AnomalyScore   float64  `json:"anomaly_score"`
	AnomalyReasons []string `json:"anomaly_reasons"`
}
