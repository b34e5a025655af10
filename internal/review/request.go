// Package review classifies flagged anomaly records as likely errors, records
// needing review, or legitimate values.
package review

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"

	"github.com/sells-group/indemnizatii/internal/model"
)

// Request is the canonical classification request for one flagged record.
// Field order is fixed, so its JSON form is stable across runs.
type Request struct {
	RecordPK       string   `json:"record_pk"`
	Year           *int     `json:"year"`
	CompanyID      *string  `json:"company_id"`
	PersonID       *string  `json:"person_id"`
	TotalPlata     *float64 `json:"total_plata"`
	SumaClean      *float64 `json:"suma_clean"`
	VariabilaClean *float64 `json:"variabila_clean"`
	AnomalyScore   float64  `json:"anomaly_score"`
	AnomalyReasons []string `json:"anomaly_reasons"`
}

// NewRequest builds the request for a scored record. Blank identifiers are
// sent as null.
func NewRequest(r model.ScoredRecord) Request {
	reasons := r.AnomalyReasons
	if reasons == nil {
		reasons = []string{}
	}
	return Request{
		RecordPK:       r.RecordPK,
		Year:           r.Year,
		CompanyID:      nullable(r.CompanyID),
		PersonID:       nullable(r.PersonID),
		TotalPlata:     finite(r.TotalRON),
		SumaClean:      finite(r.SumaClean),
		VariabilaClean: finite(r.VariabilaClean),
		AnomalyScore:   r.AnomalyScore,
		AnomalyReasons: reasons,
	}
}

// finite drops NaN and infinities, which have no JSON form.
func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

func nullable(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// canonicalJSON encodes req without HTML escaping so names and symbols stay
// readable in the prompt. A score that cannot be encoded is sent as 0.
func canonicalJSON(req Request) string {
	if math.IsNaN(req.AnomalyScore) || math.IsInf(req.AnomalyScore, 0) {
		req.AnomalyScore = 0
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(req)
	return strings.TrimRight(buf.String(), "\n")
}

const promptTemplate = `You are a data quality reviewer for public compensation data.

Classify this flagged record into one label:
- LIKELY_ERROR
- NEEDS_REVIEW
- OK

Return STRICT JSON with exactly these keys and nothing else:
label (string), confidence (number 0..1), rationale (string)

Record:
{{record}}

Consider:
- negative/zero/implausible totals
- missing identifiers
- unusually high compared to peers (z-score reason may exist)`

// BuildPrompt renders the classification prompt for req.
func BuildPrompt(req Request) string {
	return strings.Replace(promptTemplate, "{{record}}", canonicalJSON(req), 1)
}

// Fingerprint is the hex SHA-256 of the prompt built from req. It depends
// only on the request content.
func Fingerprint(req Request) string {
	sum := sha256.Sum256([]byte(BuildPrompt(req)))
	return hex.EncodeToString(sum[:])
}
