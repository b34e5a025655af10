package normalize

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/indemnizatii/internal/model"
)

// BackfillStats reports how many blank sequence identifiers were filled and
// how many stayed blank.
type BackfillStats struct {
	Filled  int
	Missing int
}

// cleanSequence drops spreadsheet artefacts from an nr_crt value: a trailing
// ".0" from float coercion and the textual nulls "nan" and "None".
func cleanSequence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")
	switch s {
	case "nan", "None":
		return ""
	}
	return strings.TrimSpace(s)
}

// Backfill fills blank nr_crt values from the first non-blank nr_crt seen for
// the same cui. The map is built over the full row set before any row is
// filled, so a later row can fill an earlier one. Rows with a blank cui never
// join. The input slice is not modified.
func Backfill(rows []model.EntityRow) ([]model.EntityRow, BackfillStats) {
	byCUI := make(map[string]string)
	for _, r := range rows {
		cui := strings.TrimSpace(r.CUI)
		nr := cleanSequence(r.NrCrt)
		if cui == "" || nr == "" {
			continue
		}
		if _, ok := byCUI[cui]; !ok {
			byCUI[cui] = nr
		}
	}

	var stats BackfillStats
	out := make([]model.EntityRow, len(rows))
	for i, r := range rows {
		r.NrCrt = cleanSequence(r.NrCrt)
		if r.NrCrt != "" {
			if r.NrCrtSource == model.SequenceMissing {
				r.NrCrtSource = model.SequenceFromSource
			}
			out[i] = r
			continue
		}
		if nr, ok := byCUI[strings.TrimSpace(r.CUI)]; ok {
			r.NrCrt = nr
			r.NrCrtSource = model.SequenceBackfilled
			stats.Filled++
		} else {
			r.NrCrtSource = model.SequenceMissing
			stats.Missing++
		}
		out[i] = r
	}

	zap.L().Info("normalize: nr_crt backfill",
		zap.Int("filled", stats.Filled),
		zap.Int("missing", stats.Missing),
	)
	return out, stats
}
