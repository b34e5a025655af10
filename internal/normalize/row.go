package normalize

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/indemnizatii/internal/model"
)

// RawRow maps canonical column names to cell text. A missing key means the
// source had no such column (null), an empty value means a blank cell.
type RawRow map[string]string

// BuildStats counts what BuildRows discarded.
type BuildStats struct {
	Read       int
	Malformed  int
	Empty      int
	Duplicates int
}

// placeholders are cell values that stand for an empty identifier field.
var placeholders = map[string]bool{
	"-":    true,
	"N/A":  true,
	"n/a":  true,
	"null": true,
	"NULL": true,
}

// BuildRows maps export records onto the canonical header. Records with more
// fields than the header are skipped as malformed, short records are padded,
// embedded line breaks are flattened, and fully empty rows and exact
// duplicates are dropped. Output keeps input order.
func BuildRows(header []string, records [][]string) ([]RawRow, BuildStats) {
	cols := CanonicalHeader(header)
	var stats BuildStats
	seen := make(map[string]struct{}, len(records))
	rows := make([]RawRow, 0, len(records))

	for _, rec := range records {
		stats.Read++
		if len(rec) > len(cols) {
			stats.Malformed++
			continue
		}

		row := make(RawRow, len(cols))
		empty := true
		var key strings.Builder
		for i, col := range cols {
			var v string
			if i < len(rec) {
				v = flattenCell(rec[i])
			}
			if v != "" {
				empty = false
			}
			row[col] = v
			key.WriteString(v)
			key.WriteByte(0x1f)
		}
		if empty {
			stats.Empty++
			continue
		}
		if _, dup := seen[key.String()]; dup {
			stats.Duplicates++
			continue
		}
		seen[key.String()] = struct{}{}
		rows = append(rows, row)
	}
	return rows, stats
}

func flattenCell(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	return strings.TrimSpace(s)
}

// cleanText trims a descriptive field and blanks placeholder values.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if placeholders[s] {
		return ""
	}
	return s
}

// NormalizeRow derives the numeric facts of one raw row. It never fails:
// ambiguous text leaves the derived fields empty and sets Ambiguous.
func NormalizeRow(raw RawRow, year *int) model.EntityRow {
	row := model.EntityRow{
		NrCrt:                 cleanSequence(raw[ColNrCrt]),
		AutoritateTutelara:    cleanText(raw[ColAutoritateTutelara]),
		Intreprindere:         cleanText(raw[ColIntreprindere]),
		CUI:                   cleanText(raw[ColCUI]),
		Personal:              cleanText(raw[ColPersonal]),
		CalitateMembru:        cleanText(raw[ColCalitateMembru]),
		Suma:                  raw[ColSuma],
		IndemnizatieVariabila: raw[ColIndemnizatieVariabila],
	}
	if year != nil {
		row.Year = model.IntPtr(*year)
	}
	if row.NrCrt != "" {
		row.NrCrtSource = model.SequenceFromSource
	}

	row.SumaNum = StorageAmount(row.Suma)
	row.IndemnizatieVariabilaNum = StorageAmount(row.IndemnizatieVariabila)

	res := Resolve(row.Suma)
	row.Compensation = res.NormalizedCompensation
	row.Variable = res.Variable
	row.Pattern = res.Pattern
	row.Ambiguous = res.Ambiguous

	row.TotalPlata = totalPlata(res, row.IndemnizatieVariabila)
	return row
}

// totalPlata is the consuming-layer total: the resolved total, else the base,
// plus the annual variable amount when it resolves to a positive value.
func totalPlata(res Resolution, variabila string) *int64 {
	var total *int64
	switch {
	case res.Total != nil:
		total = model.Int64Ptr(*res.Total)
	case res.Base != nil:
		total = model.Int64Ptr(*res.Base)
	}

	v := Resolve(variabila)
	if v.Base == nil || *v.Base <= 0 {
		return total
	}
	if total == nil {
		return model.Int64Ptr(*v.Base)
	}
	*total += *v.Base
	return total
}

// NormalizeAll normalizes rows concurrently in contiguous chunks and returns
// the results in input order once every chunk is done.
func NormalizeAll(ctx context.Context, rows []RawRow, year *int, workers int) ([]model.EntityRow, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]model.EntityRow, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	chunk := (len(rows) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(rows); start += chunk {
		lo, hi := start, min(start+chunk, len(rows))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				out[i] = NormalizeRow(rows[i], year)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "normalize: rows")
	}

	var ambiguous int
	for i := range out {
		if out[i].Ambiguous {
			ambiguous++
		}
	}
	zap.L().Info("normalize: rows normalized",
		zap.Int("rows", len(out)),
		zap.Int("ambiguous", ambiguous),
		zap.Int("workers", workers),
	)
	return out, nil
}

// MissingKeyFields lists the identifying columns that are blank on row.
func MissingKeyFields(row model.EntityRow) []string {
	var missing []string
	check := []struct {
		col string
		val string
	}{
		{ColAutoritateTutelara, row.AutoritateTutelara},
		{ColIntreprindere, row.Intreprindere},
		{ColCUI, row.CUI},
		{ColPersonal, row.Personal},
		{ColCalitateMembru, row.CalitateMembru},
	}
	for _, c := range check {
		if strings.TrimSpace(c.val) == "" {
			missing = append(missing, c.col)
		}
	}
	return missing
}
