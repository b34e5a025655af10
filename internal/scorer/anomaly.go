package scorer

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/indemnizatii/internal/config"
	"github.com/sells-group/indemnizatii/internal/model"
)

// Rule weights.
const (
	weightSumaNegative      = 2.5
	weightVariabilaNegative = 2.0
	weightTotalMissing      = 3.0
	weightTotalNegative     = 5.0
	weightTotalZero         = 1.5
	weightTotalImplausible  = 4.0
	weightPersonMissing     = 1.0
	weightCompanyMissing    = 1.0

	weightCompanyYearHigh     = 3.5
	weightCompanyYearModerate = 2.0
	weightYearHigh            = 2.5
	weightYearModerate        = 1.5
)

// Reason tags. Z-score tags carry the z value as a suffix.
const (
	ReasonSumaNegative     = "suma_negative"
	ReasonVariabilaNeg     = "variabila_negative"
	ReasonTotalMissing     = "total_missing"
	ReasonTotalNegative    = "total_negative"
	ReasonTotalZero        = "total_zero"
	ReasonTotalImplausible = "total_implausibly_high"
	ReasonPersonMissing    = "person_id_missing"
	ReasonCompanyMissing   = "company_id_missing"

	reasonZCompanyYear = "zscore_company_year_"
	reasonZYear        = "zscore_year_"
)

// relStdEpsilon is the relative std below which a group counts as constant.
const relStdEpsilon = 1e-9

// groupStats is a running count, mean and sum of squared deviations.
type groupStats struct {
	n    int
	mean float64
	m2   float64
}

func (g *groupStats) add(x float64) {
	g.n++
	d := x - g.mean
	g.mean += d / float64(g.n)
	g.m2 += d * (x - g.mean)
}

// baseline returns the mean and sample standard deviation record x is
// measured against. The group qualifies when it holds at least two members
// and is not constant. The record itself is left out when two or more
// non-constant peers remain, otherwise the full-group statistics are used.
func (g groupStats) baseline(x float64) (mean, std float64, ok bool) {
	if g.n < 2 {
		return 0, 0, false
	}
	std = math.Sqrt(g.m2 / float64(g.n-1))
	if constant(g.mean, std) {
		return g.mean, 0, false
	}
	if m, s, ok := g.without(x); ok {
		return m, s, true
	}
	return g.mean, std, true
}

// without returns the mean and sample standard deviation of the group with
// one member x removed. ok is false when fewer than two members remain or the
// remaining members are constant.
func (g groupStats) without(x float64) (mean, std float64, ok bool) {
	n := g.n - 1
	if n < 2 {
		return 0, 0, false
	}
	mean = (float64(g.n)*g.mean - x) / float64(n)
	m2 := g.m2 - (x-g.mean)*(x-mean)
	if m2 < 0 {
		m2 = 0
	}
	std = math.Sqrt(m2 / float64(n-1))
	if constant(mean, std) {
		return mean, 0, false
	}
	return mean, std, true
}

func constant(mean, std float64) bool {
	return std <= relStdEpsilon*math.Max(1, math.Abs(mean))
}

type companyYearKey struct {
	year    int
	company string
}

// PeerTable holds the per-(year, company) and per-year statistics of one
// batch. It is built once and only read afterwards.
type PeerTable struct {
	companyYear map[companyYearKey]groupStats
	year        map[int]groupStats
}

// BuildPeerTable aggregates the present totals of rows by (year, company_id)
// and by year. Rows without a total or a year contribute to no group, and
// rows with a blank company_id contribute only to their year.
func BuildPeerTable(rows []model.FactRow) *PeerTable {
	p := &PeerTable{
		companyYear: make(map[companyYearKey]groupStats),
		year:        make(map[int]groupStats),
	}
	for _, r := range rows {
		if r.TotalRON == nil || r.Year == nil || math.IsNaN(*r.TotalRON) {
			continue
		}
		x := *r.TotalRON

		ys := p.year[*r.Year]
		ys.add(x)
		p.year[*r.Year] = ys

		company := strings.TrimSpace(r.CompanyID)
		if company == "" {
			continue
		}
		k := companyYearKey{year: *r.Year, company: company}
		cs := p.companyYear[k]
		cs.add(x)
		p.companyYear[k] = cs
	}
	return p
}

// ScoreRecord scores one row of the batch p was built from. Each row is
// measured against its peers with itself left out where enough peers remain.
func (p *PeerTable) ScoreRecord(row model.FactRow, cfg config.ScorerConfig) model.ScoredRecord {
	s := model.ScoredRecord{FactRow: row, AnomalyReasons: []string{}}
	add := func(w float64, reason string) {
		s.AnomalyScore += w
		s.AnomalyReasons = append(s.AnomalyReasons, reason)
	}

	if row.SumaClean != nil && *row.SumaClean < 0 {
		add(weightSumaNegative, ReasonSumaNegative)
	}
	if row.VariabilaClean != nil && *row.VariabilaClean < 0 {
		add(weightVariabilaNegative, ReasonVariabilaNeg)
	}

	total, hasTotal := presentTotal(row)
	if !hasTotal {
		add(weightTotalMissing, ReasonTotalMissing)
	} else {
		switch {
		case total < 0:
			add(weightTotalNegative, ReasonTotalNegative)
		case total == 0:
			add(weightTotalZero, ReasonTotalZero)
		case total > cfg.ImplausibleTotal:
			add(weightTotalImplausible, ReasonTotalImplausible)
		}
	}

	if strings.TrimSpace(row.PersonID) == "" {
		add(weightPersonMissing, ReasonPersonMissing)
	}
	if strings.TrimSpace(row.CompanyID) == "" {
		add(weightCompanyMissing, ReasonCompanyMissing)
	}

	if hasTotal && row.Year != nil {
		p.scoreDeviation(row, total, cfg, add)
	}
	return s
}

// scoreDeviation adds at most one z-score reason: company-year when that
// baseline is defined, else year.
func (p *PeerTable) scoreDeviation(row model.FactRow, total float64, cfg config.ScorerConfig, add func(float64, string)) {
	company := strings.TrimSpace(row.CompanyID)
	if company != "" {
		if g, ok := p.companyYear[companyYearKey{year: *row.Year, company: company}]; ok {
			if mean, std, ok := g.baseline(total); ok {
				z := math.Abs(total-mean) / std
				switch {
				case z >= cfg.ZScoreHigh:
					add(weightCompanyYearHigh, zTag(reasonZCompanyYear, z))
				case z >= cfg.ZScoreModerate:
					add(weightCompanyYearModerate, zTag(reasonZCompanyYear, z))
				}
				return
			}
		}
	}

	g, ok := p.year[*row.Year]
	if !ok {
		return
	}
	mean, std, ok := g.baseline(total)
	if !ok {
		return
	}
	z := math.Abs(total-mean) / std
	switch {
	case z >= cfg.ZScoreHigh:
		add(weightYearHigh, zTag(reasonZYear, z))
	case z >= cfg.ZScoreModerate:
		add(weightYearModerate, zTag(reasonZYear, z))
	}
}

func zTag(prefix string, z float64) string {
	return prefix + strconv.FormatFloat(z, 'f', 1, 64)
}

func presentTotal(row model.FactRow) (float64, bool) {
	if row.TotalRON == nil || math.IsNaN(*row.TotalRON) {
		return 0, false
	}
	return *row.TotalRON, true
}

// Score aggregates peer statistics over the whole batch, then scores every
// row against that fixed table. Output is in input order.
func Score(rows []model.FactRow, cfg config.ScorerConfig) []model.ScoredRecord {
	table := BuildPeerTable(rows)
	out := make([]model.ScoredRecord, len(rows))
	for i, r := range rows {
		out[i] = table.ScoreRecord(r, cfg)
	}
	zap.L().Debug("scorer: batch scored",
		zap.Int("rows", len(rows)),
		zap.Int("company_year_groups", len(table.companyYear)),
		zap.Int("year_groups", len(table.year)),
	)
	return out
}

// Filter keeps records scoring at least minScore, sorted by score descending
// with ties in input order. A positive limit caps the result.
func Filter(scored []model.ScoredRecord, minScore float64, limit int) []model.ScoredRecord {
	var out []model.ScoredRecord
	for _, s := range scored {
		if s.AnomalyScore >= minScore {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AnomalyScore > out[j].AnomalyScore
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FromEntityRows adapts normalized rows to the scorer input. The CSV-driven
// shape carries the storage amounts, so the negative-amount rules can fire.
func FromEntityRows(rows []model.EntityRow) []model.FactRow {
	out := make([]model.FactRow, len(rows))
	for i, r := range rows {
		f := model.FactRow{
			RecordPK:       fmt.Sprintf("%s:%s:%d", strings.TrimSpace(r.CUI), r.NrCrt, i),
			CompanyID:      strings.TrimSpace(r.CUI),
			PersonID:       strings.TrimSpace(r.Personal),
			SumaClean:      model.Float64Ptr(float64(r.SumaNum)),
			VariabilaClean: model.Float64Ptr(float64(r.IndemnizatieVariabilaNum)),
		}
		if r.Year != nil {
			f.Year = model.IntPtr(*r.Year)
		}
		if r.TotalPlata != nil {
			f.TotalRON = model.Float64Ptr(float64(*r.TotalPlata))
		}
		out[i] = f
	}
	return out
}
