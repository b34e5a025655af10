// Package model defines the domain types shared by the normalization, scoring
// and review stages.
package model

// Pattern names the compound-value rule that produced a NormalizedCompensation.
type Pattern string

const (
	PatternNone      Pattern = "none"
	PatternSlash     Pattern = "slash"      // x/y alternatives, left wins
	PatternDashSplit Pattern = "dash_split" // x - y, right is a variable component
	PatternDashRange Pattern = "dash_range" // x - y, y > x
	PatternPlus      Pattern = "plus"       // x + y [+ z...]
	PatternSingle    Pattern = "single"     // one numeric run
)

// SequenceSource records where an EntityRow's nr_crt came from.
type SequenceSource string

const (
	SequenceFromSource SequenceSource = "source"
	SequenceBackfilled SequenceSource = "backfilled"
	SequenceMissing    SequenceSource = ""
)

// NormalizedCompensation is the (base, extra, total) triple derived from one
// raw compensation field. Total is not guaranteed to equal Base+Extra: the
// resolver may infer it from a different clause.
type NormalizedCompensation struct {
	Base  *int64 `json:"base"`
	Extra int64  `json:"extra"`
	Total *int64 `json:"total"`
}

// IsEmpty reports whether nothing could be resolved.
func (c NormalizedCompensation) IsEmpty() bool {
	return c.Base == nil && c.Extra == 0 && c.Total == nil
}

// EntityRow is one disclosed compensation record after normalization. Raw
// text is kept next to every derived value so a reviewer can audit it.
type EntityRow struct {
	NrCrt              string         `json:"nr_crt"`
	NrCrtSource        SequenceSource `json:"nr_crt_source"`
	AutoritateTutelara string         `json:"autoritate_tutelara"`
	Intreprindere      string         `json:"intreprindere"`
	CUI                string         `json:"cui"`
	Personal           string         `json:"personal"`
	CalitateMembru     string         `json:"calitate_membru"`
	Year               *int           `json:"year"`

	// Raw source text, never mutated.
	Suma                  string `json:"suma"`
	IndemnizatieVariabila string `json:"indemnizatie_variabila"`

	// Storage-facing columns: absence coerced to 0.
	SumaNum                  int64 `json:"suma_num"`
	IndemnizatieVariabilaNum int64 `json:"indemnizatie_variabila_num"`

	Compensation NormalizedCompensation `json:"compensation"`
	Variable     *int64                 `json:"variable"`
	Pattern      Pattern                `json:"pattern"`
	Ambiguous    bool                   `json:"ambiguous"`

	// TotalPlata is the consuming-layer total used for scoring.
	TotalPlata *int64 `json:"total_plata"`
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }
