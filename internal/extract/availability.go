package extract

import (
	"strings"
	"unicode"

	"github.com/user/catalog-crawler/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultOutOfStockPhrases are the explicit cues that mark a card unavailable.
var DefaultOutOfStockPhrases = []string{
	"out of stock",
	"out-of-stock",
	"sold out",
	"unavailable",
	"currently unavailable",
	"غير متوفر",
	"غير متاح",
	"نفدت الكمية",
	"نفذت الكمية",
}

// Classifier maps free text to an availability status.
type Classifier struct {
	phrases []string
}

// NewClassifier builds a classifier over the given phrases, or the defaults
// when none are given.
func NewClassifier(phrases ...string) *Classifier {
	if len(phrases) == 0 {
		phrases = DefaultOutOfStockPhrases
	}
	c := &Classifier{phrases: make([]string, 0, len(phrases))}
	for _, p := range phrases {
		if f := Fold(p); f != "" {
			c.phrases = append(c.phrases, f)
		}
	}
	return c
}

// Classify returns Unknown for empty text, OutOfStock when a cue phrase is
// present and Available otherwise.
func (c *Classifier) Classify(text string) domain.Status {
	folded := Fold(text)
	if folded == "" {
		return domain.StatusUnknown
	}
	for _, p := range c.phrases {
		if strings.Contains(folded, p) {
			return domain.StatusOutOfStock
		}
	}
	return domain.StatusAvailable
}

var foldArabic = strings.NewReplacer("ى", "ي", "ـ", "")

// Fold lowercases s, strips combining marks (Latin accents and Arabic
// harakat), drops tatweel and collapses whitespace.
func Fold(s string) string {
	// transform chains keep internal state, so one is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	out, _, err := transform.String(t, s)
	if err != nil {
		out = strings.ToLower(s)
	}
	out = foldArabic.Replace(out)
	return strings.Join(strings.Fields(out), " ")
}
