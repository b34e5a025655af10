package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/indemnizatii/internal/model"
)

func ptr(v int64) *int64 { return &v }

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		base      *int64
		extra     int64
		total     *int64
		variable  *int64
		pattern   model.Pattern
		ambiguous bool
	}{
		{name: "slash keeps left alternative", raw: "23316/46632", base: ptr(23316), pattern: model.PatternSlash},
		{name: "slash beats plus", raw: "2000 / 3000 + 500", base: ptr(2000), pattern: model.PatternSlash},
		{name: "plus sums addends", raw: "4500 + 1500", base: ptr(4500), extra: 1500, total: ptr(6000), pattern: model.PatternPlus},
		{name: "plus with three addends", raw: "4500 + 1000 + 500", base: ptr(4500), extra: 1500, total: ptr(6000), pattern: model.PatternPlus},
		{name: "plus ignores percent addend", raw: "4500 + 10%", base: ptr(4500), pattern: model.PatternPlus},
		{name: "plus skips leading percent", raw: "10% + 2000", base: ptr(2000), pattern: model.PatternPlus},
		{name: "dash split on bare digits", raw: "5000 - 7000", base: ptr(5000), variable: ptr(7000), pattern: model.PatternDashSplit},
		{name: "dash split with grouped sides", raw: "12 500 - 3 000", base: ptr(12500), variable: ptr(3000), pattern: model.PatternDashSplit},
		{name: "dash range with unit", raw: "5000 - 7000 lei", base: ptr(5000), extra: 2000, total: ptr(7000), pattern: model.PatternDashRange},
		{name: "dash range with units on both sides", raw: "5000 lei - 7000 lei", base: ptr(5000), extra: 2000, total: ptr(7000), pattern: model.PatternDashRange},
		{name: "descending dash falls through to single", raw: "7000 - 5000 lei", base: ptr(7000), pattern: model.PatternSingle},
		{name: "grouped single", raw: "31 530", base: ptr(31530), pattern: model.PatternSingle},
		{name: "single with text", raw: "brut 8.250 lei lunar", base: ptr(8250), pattern: model.PatternSingle},
		{name: "absent phrase", raw: "nu a fost stabilită", pattern: model.PatternNone},
		{name: "empty", raw: "", pattern: model.PatternNone},
		{name: "no digits", raw: "conform contract", pattern: model.PatternNone},
		{name: "percent only is ambiguous", raw: "25%", pattern: model.PatternNone, ambiguous: true},
		{name: "negative only is ambiguous", raw: "-500", pattern: model.PatternNone, ambiguous: true},
		{name: "overflowing run is ambiguous", raw: "99999999999999999999 + 5", pattern: model.PatternNone, ambiguous: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resolve(tt.raw)
			assert.Equal(t, tt.base, r.Base, "base")
			assert.Equal(t, tt.extra, r.Extra, "extra")
			assert.Equal(t, tt.total, r.Total, "total")
			assert.Equal(t, tt.variable, r.Variable, "variable")
			assert.Equal(t, tt.pattern, r.Pattern)
			assert.Equal(t, tt.ambiguous, r.Ambiguous)
		})
	}
}

func TestResolve_SlashNeverSetsTotal(t *testing.T) {
	for _, raw := range []string{"1/2", "23316/46632", "100 / 200 / 300", "4500/4500 + 100"} {
		r := Resolve(raw)
		assert.Nil(t, r.Total, raw)
		assert.Zero(t, r.Extra, raw)
	}
}

func TestResolve_PlusTotalIsBasePlusExtra(t *testing.T) {
	for _, raw := range []string{"1 + 1", "4500 + 1500", "100 + 250", "31 530 + 2 000"} {
		r := Resolve(raw)
		if assert.NotNil(t, r.Base, raw) && assert.NotNil(t, r.Total, raw) {
			assert.Equal(t, *r.Base+r.Extra, *r.Total, raw)
		}
	}
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	raw := "4500 + 1500"
	_ = Resolve(raw)
	assert.Equal(t, "4500 + 1500", raw)
}

func TestStorageAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{"31 530", 31530},
		{"1.500", 1500},
		{"4500 lei", 4500},
		{"-200", -200},
		{"4500 + 1500", 45001500},
		{"n/a", 0},
		{"", 0},
		{"conform contract", 0},
		{"12-34", 0},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, StorageAmount(tt.raw))
		})
	}
}
