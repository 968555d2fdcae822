package extract

import (
	"regexp"
	"strings"
)

var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:regular|sale|unit|original|special|old|new)\s+price\b:?`),
	regexp.MustCompile(`(?i)\b(?:add\s+to\s+(?:cart|bag|basket)|quick\s+view|sold\s+out|out\s+of\s+stock|in\s+stock)\b`),
	regexp.MustCompile(`(?i)\b(?:price|from|now|was)\s*:`),
	regexp.MustCompile(`السعر\s+الأصلي|السعر\s+العادي|سعر\s+البيع|سعر\s+العرض|السعر|أضف\s+إلى\s+السلة|اضف\s+الى\s+السلة|نفدت\s+الكمية`),
}

const nameTrimSet = " \t\n-\u2013\u2014|:/,·•"

// NormalizeName removes price text, currency and number pairs and storefront
// boilerplate from a product heading. The result never contains a match of
// PricePattern unless the cleaned name would be empty, in which case the
// whitespace-collapsed heading is returned as is.
func NormalizeName(rawName, rawPrice string) string {
	original := collapseSpaces(rawName)
	if original == "" {
		return ""
	}
	name := NormalizeDigits(original)

	if price := collapseSpaces(NormalizeDigits(rawPrice)); price != "" {
		name = removePriceText(name, price)
	}

	// Stripping one token can join its neighbours into a new one. Every
	// pass that changes name shortens it, so the loop ends.
	for {
		next := PricePattern.ReplaceAllString(name, " ")
		for _, re := range boilerplatePatterns {
			next = re.ReplaceAllString(next, " ")
		}
		next = collapseSpaces(next)
		if next == name {
			break
		}
		name = next
	}

	name = strings.Trim(collapseSpaces(name), nameTrimSet)
	if name == "" {
		return original
	}
	return name
}

// removePriceText drops the literal price text and, when it is distinctive
// enough, its bare numeric core. A currency token glued to either side goes
// with it.
func removePriceText(name, price string) string {
	literal := regexp.MustCompile(`(?i)` + withCurrency(flexibleSpaces(price)))
	name = literal.ReplaceAllString(name, " ")

	core := numberPattern.FindString(price)
	if core == "" || (!strings.ContainsAny(core, ".,") && len(core) < 4) {
		return name
	}
	bounded := regexp.MustCompile(`(?i)(^|[^\d.,])` + withCurrency(regexp.QuoteMeta(core)) + `($|[^\d.,])`)
	return bounded.ReplaceAllString(name, "$1 $2")
}

func withCurrency(expr string) string {
	return `(?:` + currencyToken + `\s*)?` + expr + `(?:\s*(?:` + currencyToken + `|LE\b))?`
}

func flexibleSpaces(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(fields, `\s*`)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
