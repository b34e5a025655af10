package normalize

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/indemnizatii/internal/model"
)

// Derived columns of the enriched export.
const (
	ColNrCrtSource              = "nr_crt_source"
	ColAnRaportare              = "an_raportare"
	ColSumaNum                  = "suma_num"
	ColIndemnizatieVariabilaNum = "indemnizatie_variabila_num"
	ColSumaBaseNum              = "suma_base_num"
	ColSumaExtraNum             = "suma_extra_num"
	ColSumaTotalNum             = "suma_total_num"
	ColVariabilaNum             = "suma_variabila_num"
	ColPattern                  = "pattern"
	ColAmbiguous                = "ambiguous"
	ColTotalPlata               = "total_plata"
)

// EnrichedHeader is the column order of the enriched CSV.
var EnrichedHeader = []string{
	ColNrCrt,
	ColNrCrtSource,
	ColAutoritateTutelara,
	ColIntreprindere,
	ColCUI,
	ColPersonal,
	ColCalitateMembru,
	ColAnRaportare,
	ColSuma,
	ColIndemnizatieVariabila,
	ColSumaNum,
	ColIndemnizatieVariabilaNum,
	ColSumaBaseNum,
	ColSumaExtraNum,
	ColSumaTotalNum,
	ColVariabilaNum,
	ColPattern,
	ColAmbiguous,
	ColTotalPlata,
}

// WriteEnriched writes rows as an enriched CSV. Absent values are written as
// empty cells, never as 0.
func WriteEnriched(w io.Writer, rows []model.EntityRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EnrichedHeader); err != nil {
		return eris.Wrap(err, "normalize: write enriched header")
	}
	for i, r := range rows {
		rec := []string{
			r.NrCrt,
			string(r.NrCrtSource),
			r.AutoritateTutelara,
			r.Intreprindere,
			r.CUI,
			r.Personal,
			r.CalitateMembru,
			formatIntPtr(r.Year),
			r.Suma,
			r.IndemnizatieVariabila,
			strconv.FormatInt(r.SumaNum, 10),
			strconv.FormatInt(r.IndemnizatieVariabilaNum, 10),
			formatInt64Ptr(r.Compensation.Base),
			strconv.FormatInt(r.Compensation.Extra, 10),
			formatInt64Ptr(r.Compensation.Total),
			formatInt64Ptr(r.Variable),
			string(r.Pattern),
			strconv.FormatBool(r.Ambiguous),
			formatInt64Ptr(r.TotalPlata),
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrapf(err, "normalize: write enriched row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "normalize: flush enriched csv")
}

// ParseEnriched reads rows back from an enriched CSV table. Columns are
// located by name; a missing required column or an unparseable number is an
// error.
func ParseEnriched(header []string, records [][]string) ([]model.EntityRow, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range []string{ColCUI, ColNrCrt, ColTotalPlata} {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("normalize: enriched csv has no %s column", col)
		}
	}

	rows := make([]model.EntityRow, 0, len(records))
	for n, rec := range records {
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		r := model.EntityRow{
			NrCrt:                 get(ColNrCrt),
			NrCrtSource:           model.SequenceSource(get(ColNrCrtSource)),
			AutoritateTutelara:    get(ColAutoritateTutelara),
			Intreprindere:         get(ColIntreprindere),
			CUI:                   get(ColCUI),
			Personal:              get(ColPersonal),
			CalitateMembru:        get(ColCalitateMembru),
			Suma:                  get(ColSuma),
			IndemnizatieVariabila: get(ColIndemnizatieVariabila),
			Pattern:               model.Pattern(get(ColPattern)),
			Ambiguous:             get(ColAmbiguous) == "true",
		}

		var err error
		if r.Year, err = parseIntPtr(get(ColAnRaportare)); err != nil {
			return nil, eris.Wrapf(err, "normalize: row %d: %s", n+1, ColAnRaportare)
		}
		nums := []struct {
			col string
			dst **int64
		}{
			{ColSumaBaseNum, &r.Compensation.Base},
			{ColSumaTotalNum, &r.Compensation.Total},
			{ColVariabilaNum, &r.Variable},
			{ColTotalPlata, &r.TotalPlata},
		}
		for _, f := range nums {
			if *f.dst, err = parseInt64Ptr(get(f.col)); err != nil {
				return nil, eris.Wrapf(err, "normalize: row %d: %s", n+1, f.col)
			}
		}
		plain := []struct {
			col string
			dst *int64
		}{
			{ColSumaNum, &r.SumaNum},
			{ColIndemnizatieVariabilaNum, &r.IndemnizatieVariabilaNum},
			{ColSumaExtraNum, &r.Compensation.Extra},
		}
		for _, f := range plain {
			v, err := parseInt64Ptr(get(f.col))
			if err != nil {
				return nil, eris.Wrapf(err, "normalize: row %d: %s", n+1, f.col)
			}
			if v != nil {
				*f.dst = *v
			}
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func formatInt64Ptr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func parseInt64Ptr(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "parse %q", s)
	}
	return &v, nil
}

func parseIntPtr(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, eris.Wrapf(err, "parse %q", s)
	}
	return &v, nil
}
