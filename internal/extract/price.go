package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/user/catalog-crawler/internal/domain"
)

// Price is the parsed form of a raw price string.
type Price struct {
	Value    *float64
	Currency string
	Raw      string
}

type currencyMarker struct {
	code    string
	pattern string
}

// Longer tokens come first so alternation prefers them.
var currencyMarkers = []currencyMarker{
	{"EGP", `EGP|L\.E\.?|E£|£E|ج\.م\.?|جنيه(?:\s*مصري)?|\bLE\b`},
	{"SAR", `SAR|ر\.س\.?|ريال`},
	{"AED", `AED|د\.إ\.?|درهم`},
	{"USD", `US\$|USD|\$`},
	{"EUR", `EUR|€`},
	{"GBP", `GBP|£`},
}

const numberRun = `\d{1,3}(?:[.,\x{00A0}\x{202F}'’]\d{3})+(?:[.,]\d+)?|\d+(?:[.,]\d+)?`

var (
	currencyToken = func() string {
		parts := make([]string, 0, len(currencyMarkers))
		for _, m := range currencyMarkers {
			parts = append(parts, m.pattern)
		}
		return `(?:` + strings.Join(parts, "|") + `)`
	}()

	// PricePattern matches a number adjacent to a currency token, in either
	// order. It is the price-number pattern shared by the parser and the
	// name normalizer. "LE" glued to the number ("300LE") has no word
	// boundary before it and gets its own suffix branch.
	PricePattern = regexp.MustCompile(`(?i)` + currencyToken + `\s*(` + numberRun + `)|(` + numberRun + `)(?:\s*` + currencyToken + `|LE\b)`)

	numberPattern = regexp.MustCompile(numberRun)

	currencyPatterns = func() []*regexp.Regexp {
		out := make([]*regexp.Regexp, len(currencyMarkers))
		for i, m := range currencyMarkers {
			out[i] = regexp.MustCompile(`(?i)` + m.pattern)
		}
		return out
	}()
)

var digitFolder = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٫", ".", "٬", ",", "،", ",",
	"\u200f", "", "\u200e", "", "\u061c", "",
)

// NormalizeDigits maps Arabic-Indic digits and separators to ASCII and drops
// bidi control marks.
func NormalizeDigits(s string) string {
	return digitFolder.Replace(s)
}

// ParsePrice extracts a numeric price and a currency code from raw text. A
// currency-adjacent number is preferred over the first bare number. When no
// number is present Value is nil, which is a normal outcome.
func ParsePrice(raw string) Price {
	p := Price{Raw: strings.TrimSpace(raw), Currency: domain.DefaultCurrency}
	if p.Raw == "" {
		return p
	}
	text := NormalizeDigits(p.Raw)
	if code := DetectCurrency(text); code != "" {
		p.Currency = code
	}

	var run string
	if m := PricePattern.FindStringSubmatch(text); m != nil {
		run = m[1]
		if run == "" {
			run = m[2]
		}
	} else {
		run = numberPattern.FindString(text)
	}
	if run == "" {
		return p
	}
	if v, ok := parseNumber(run); ok {
		p.Value = &v
	}
	return p
}

// DetectCurrency returns the ISO code of the first currency marker found, or "".
func DetectCurrency(text string) string {
	best, bestAt := "", -1
	for i, re := range currencyPatterns {
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if bestAt < 0 || loc[0] < bestAt {
			best, bestAt = currencyMarkers[i].code, loc[0]
		}
	}
	return best
}

// parseNumber resolves thousands and decimal separators. With both '.' and ','
// present the last one is the decimal mark. A separator repeated more than once
// is a thousands separator. A single ',' followed by exactly three digits is a
// thousands separator, otherwise decimal. A single '.' is always decimal.
func parseNumber(run string) (float64, bool) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '\u00a0', '\u202f', '\'', '’':
			return -1
		}
		return r
	}, run)

	dots, commas := strings.Count(s, "."), strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	case commas == 1:
		idx := strings.Index(s, ",")
		if len(s)-idx-1 == 3 {
			s = strings.Replace(s, ",", "", 1)
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
