package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical column names of the cleaned registry table.
const (
	ColNrCrt                 = "nr_crt"
	ColAutoritateTutelara    = "autoritate_tutelara"
	ColIntreprindere         = "intreprindere"
	ColCUI                   = "cui"
	ColPersonal              = "personal"
	ColCalitateMembru        = "calitate_membru"
	ColSuma                  = "suma"
	ColIndemnizatieVariabila = "indemnizatie_variabila"
)

// columnAliases maps cleaned export headers to canonical names. Both the
// transliterated form and the form with diacritics dropped outright (as older
// cleaned exports have them) are accepted.
var columnAliases = map[string]string{
	"unnamed_0": ColNrCrt,
	"nr_crt":    ColNrCrt,
	"nr._crt.":  ColNrCrt,
	"nr_crt.":   ColNrCrt,

	"autoritate_publica_tutelara_(apt)": ColAutoritateTutelara,
	"autoritate_public_tutelar_(apt)":   ColAutoritateTutelara,
	"autoritate_tutelara":               ColAutoritateTutelara,
	"autoritate_tutelar":                ColAutoritateTutelara,

	"nume_intreprindere_publica": ColIntreprindere,
	"nume_ntreprindere_public":   ColIntreprindere,
	"intreprindere":              ColIntreprindere,

	"cui": ColCUI,

	"nume_personal_conducere": ColPersonal,
	"personal":                ColPersonal,

	"calitate_(membru_ca/cs_director/membru_directorat)": ColCalitateMembru,
	"calitate_membru": ColCalitateMembru,
	"calitate":        ColCalitateMembru,

	"valoare_indemnizatie_fix_lunar_conform_contract_(brut-lei)*": ColSuma,
	"valoare_indemnizaie_fix_lunar_conform_contract_(brut-lei)*":  ColSuma,
	"suma": ColSuma,

	"valoare_indemnizatie_variabila_anual_conform_contract_(brut-lei)*": ColIndemnizatieVariabila,
	"valoare_indemnizaie_variabila_anual_conform_contract_(brut-lei)*":  ColIndemnizatieVariabila,
	"indemnizatie_variabila": ColIndemnizatieVariabila,
}

var multiUnderscore = regexp.MustCompile(`_+`)

// foldText lowercases s and strips diacritics ("Stabilită" → "stabilita").
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// CleanHeader folds a raw export header into snake_case ASCII. An empty
// header becomes unnamed_<index>.
func CleanHeader(h string, index int) string {
	h = foldText(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "\n", "_", "\r", "_", "\t", "_").Replace(h)
	h = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, h)
	h = multiUnderscore.ReplaceAllString(h, "_")
	h = strings.Trim(h, "_")
	if h == "" {
		return "unnamed_" + strconv.Itoa(index)
	}
	return h
}

// CanonicalColumn returns the canonical name for a cleaned header. Unknown
// headers are returned unchanged.
func CanonicalColumn(cleaned string) string {
	if c, ok := columnAliases[cleaned]; ok {
		return c
	}
	return cleaned
}

// CanonicalHeader cleans and renames a whole header row.
func CanonicalHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = CanonicalColumn(CleanHeader(h, i))
	}
	return out
}
