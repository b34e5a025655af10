package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/sells-group/indemnizatii/internal/model"
)

// Resolution is the outcome of resolving one raw compensation field.
type Resolution struct {
	model.NormalizedCompensation

	// Variable is the right-hand side of a dash split ("x - y" with pure
	// digit sides). It is a separate component, not part of Extra.
	Variable *int64
	Pattern  model.Pattern
	// Ambiguous is set when numeric content was present but no rule could
	// resolve a usable amount from it.
	Ambiguous bool
}

// Resolve interprets raw as a (base, extra, total) triple. Rules are tried in
// order: slash, dash split, dash range, plus, single run. It never fails; text
// that matches nothing, or holds a run too large for an int64, degrades to
// (nil, 0, nil) and is marked ambiguous.
func Resolve(raw string) Resolution {
	toks := Tokenize(raw)
	if len(toks) == 0 {
		return Resolution{Pattern: model.PatternNone}
	}
	for _, t := range toks {
		if t.Overflow {
			return Resolution{Pattern: model.PatternNone, Ambiguous: true}
		}
	}

	if r, ok := resolveSlash(raw, toks); ok {
		return r
	}

	hasPlus := strings.Contains(raw, "+")
	if !hasPlus {
		if idx, pos, ok := rangeDash(raw, toks); ok {
			if r, ok := resolveDashSplit(raw, pos, toks[idx-1], toks[idx]); ok {
				return r
			}
			if r, ok := resolveDashRange(toks, toks[idx-1], toks[idx]); ok {
				return r
			}
		}
	}

	if hasPlus {
		if r, ok := resolvePlus(toks); ok {
			return r
		}
	}

	if r, ok := resolveSingle(toks); ok {
		return r
	}

	return Resolution{Pattern: model.PatternNone, Ambiguous: true}
}

// resolveSlash takes the first usable amount left of the first slash.
// Alternatives are not additive, so extra and total stay unset.
func resolveSlash(raw string, toks []Token) (Resolution, bool) {
	slash := strings.Index(raw, "/")
	if slash < 0 {
		return Resolution{}, false
	}
	for _, t := range toks {
		if t.End > slash {
			break
		}
		if t.Usable() {
			return Resolution{
				NormalizedCompensation: model.NormalizedCompensation{Base: model.Int64Ptr(t.Value)},
				Pattern:                model.PatternSlash,
			}, true
		}
	}
	return Resolution{}, false
}

// resolveDashSplit commits "x - y" as base x plus variable component y when
// both sides are bare digit runs once separators are stripped.
func resolveDashSplit(raw string, dash int, left, right Token) (Resolution, bool) {
	if !pureDigits(raw[:dash]) || !pureDigits(raw[dash+1:]) {
		return Resolution{}, false
	}
	if !left.Usable() || right.Percent {
		return Resolution{}, false
	}
	return Resolution{
		NormalizedCompensation: model.NormalizedCompensation{Base: model.Int64Ptr(left.Value)},
		Variable:               model.Int64Ptr(right.Value),
		Pattern:                model.PatternDashSplit,
	}, true
}

// resolveDashRange reads "x - y" with y > x as a range whose upper bound is
// the total and whose width is the extra.
func resolveDashRange(toks []Token, left, right Token) (Resolution, bool) {
	var amounts int
	for _, t := range toks {
		if !t.Percent {
			amounts++
		}
	}
	if amounts != 2 || !left.Usable() || !right.Usable() || right.Value <= left.Value {
		return Resolution{}, false
	}
	return Resolution{
		NormalizedCompensation: model.NormalizedCompensation{
			Base:  model.Int64Ptr(left.Value),
			Extra: right.Value - left.Value,
			Total: model.Int64Ptr(right.Value),
		},
		Pattern: model.PatternDashRange,
	}, true
}

// resolvePlus takes the first usable token as base and sums the summable
// tokens after it. Percent and range tokens never count toward extra.
func resolvePlus(toks []Token) (Resolution, bool) {
	baseIdx := -1
	for i, t := range toks {
		if t.Usable() {
			baseIdx = i
			break
		}
	}
	if baseIdx < 0 {
		return Resolution{}, false
	}

	base := toks[baseIdx].Value
	var extra int64
	for _, t := range toks[baseIdx+1:] {
		if t.Summable() {
			extra += t.Value
		}
	}

	r := Resolution{
		NormalizedCompensation: model.NormalizedCompensation{Base: model.Int64Ptr(base), Extra: extra},
		Pattern:                model.PatternPlus,
	}
	if extra > 0 {
		r.Total = model.Int64Ptr(base + extra)
	}
	return r, true
}

func resolveSingle(toks []Token) (Resolution, bool) {
	for _, t := range toks {
		if t.Usable() {
			return Resolution{
				NormalizedCompensation: model.NormalizedCompensation{Base: model.Int64Ptr(t.Value)},
				Pattern:                model.PatternSingle,
			}, true
		}
	}
	return Resolution{}, false
}

// pureDigits reports whether s is a non-empty digit run once whitespace and
// thousands separators are removed.
func pureDigits(s string) bool {
	var n int
	for _, r := range s {
		switch {
		case unicode.IsSpace(r), r == '.', r == ',':
		case r >= '0' && r <= '9':
			n++
		default:
			return false
		}
	}
	return n > 0
}

// StorageAmount is the value stored in the non-nullable *_num columns:
// whitespace and separators are dropped, anything but digits and '-' is
// removed and the remainder is parsed as a signed integer. Absent or
// unparseable text is stored as 0.
func StorageAmount(raw string) int64 {
	if IsAbsent(raw) {
		return 0
	}
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, raw)
	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
