// Package normalize turns free-text compensation fields from the registry
// export into numeric facts and backfills missing row identifiers.
package normalize

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is one numeric run found in a raw compensation string. Start and End
// are byte offsets into the original text.
type Token struct {
	Value int64
	Start int
	End   int
	Text  string

	// Percent is set when a % sign follows (or directly precedes) the run.
	Percent bool
	// RangeMarker is set when a dash separates this run from a neighbouring run.
	RangeMarker bool
	// Negative is set for a dash glued to the run with no run on its left.
	Negative bool
	// Overflow is set when the run does not fit in an int64. Value is 0.
	Overflow bool
}

// Usable reports whether the token can stand as an amount.
func (t Token) Usable() bool {
	return !t.Percent && !t.Negative && !t.Overflow
}

// Summable reports whether the token may contribute to an additive extra.
func (t Token) Summable() bool {
	return t.Usable() && !t.RangeMarker
}

// absentPhrases are compared after folding (lowercase, no diacritics,
// collapsed whitespace).
var absentPhrases = map[string]bool{
	"":                    true,
	"-":                   true,
	"n/a":                 true,
	"null":                true,
	"nu a fost stabilita": true,
}

// IsAbsent reports whether raw means "value not set". Absence is not zero.
func IsAbsent(raw string) bool {
	return absentPhrases[strings.Join(strings.Fields(foldText(raw)), " ")]
}

// Tokenize extracts the numeric runs of raw in order of appearance.
// Thousands-grouped numbers ("31 530", "1.500.000") form one token and a
// trailing one- or two-digit decimal fraction is truncated.
func Tokenize(raw string) []Token {
	if IsAbsent(raw) {
		return nil
	}

	var toks []Token
	i := 0
	for i < len(raw) {
		if !isDigit(raw[i]) {
			i++
			continue
		}

		start := i
		intEnd := scanDigits(raw, i)

		// Only a short leading group can open a thousands-grouped number.
		if intEnd-start <= 3 {
			for {
				n := groupSepLen(raw, intEnd)
				if n == 0 {
					break
				}
				k := scanDigits(raw, intEnd+n)
				if k-(intEnd+n) != 3 {
					break
				}
				intEnd = k
			}
		}

		end := intEnd
		if end < len(raw) && (raw[end] == '.' || raw[end] == ',') {
			k := scanDigits(raw, end+1)
			if n := k - (end + 1); n >= 1 && n <= 2 {
				end = k
			}
		}
		i = end

		tok := Token{Start: start, End: end, Text: raw[start:end]}
		v, err := strconv.ParseInt(digitsOnly(raw[start:intEnd]), 10, 64)
		if err != nil {
			tok.Overflow = true
		} else {
			tok.Value = v
		}
		toks = append(toks, tok)
	}

	markContext(raw, toks)
	return toks
}

// markContext sets the percent, range and sign flags from neighbouring text.
func markContext(raw string, toks []Token) {
	for idx := range toks {
		t := &toks[idx]

		if after := skipSpaceFwd(raw, t.End); after < len(raw) && raw[after] == '%' {
			t.Percent = true
		}
		if t.Start > 0 && raw[t.Start-1] == '%' {
			t.Percent = true
		}

		before := skipSpaceBack(raw, t.Start)
		if before == 0 || raw[before-1] != '-' {
			continue
		}
		dash := before - 1
		if idx > 0 && skipSpaceBack(raw, dash) == toks[idx-1].End {
			t.RangeMarker = true
			toks[idx-1].RangeMarker = true
			continue
		}
		if dash == t.Start-1 {
			t.Negative = true
		}
	}
}

// rangeDash returns the index of the token right of the only range dash in
// raw, and the dash offset. ok is false unless raw holds exactly one dash and
// it sits between two tokens, separated from them by at most unit or word
// text ("5000 lei - 7000 lei").
func rangeDash(raw string, toks []Token) (idx, pos int, ok bool) {
	if strings.Count(raw, "-") != 1 {
		return 0, 0, false
	}
	for i := 1; i < len(toks); i++ {
		between := raw[toks[i-1].End:toks[i].Start]
		dash := strings.IndexByte(between, '-')
		if dash < 0 || !wordText(between[:dash]) || !wordText(between[dash+1:]) {
			continue
		}
		return i, toks[i-1].End + dash, true
	}
	return 0, 0, false
}

// wordText reports whether s holds only letters, spaces and dots.
func wordText(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) && r != '.' {
			return false
		}
	}
	return true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func scanDigits(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return i
}

// groupSepLen returns the byte length of a thousands separator at s[i], or 0.
func groupSepLen(s string, i int) int {
	if i >= len(s) {
		return 0
	}
	r, size := utf8.DecodeRuneInString(s[i:])
	switch r {
	case ' ', '.', ',', '\u00a0', '\u202f':
		return size
	}
	return 0
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func skipSpaceFwd(s string, i int) int {
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

func skipSpaceBack(s string, i int) int {
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:i])
		if !unicode.IsSpace(r) {
			break
		}
		i -= size
	}
	return i
}
