package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/pkg/utils"
	"golang.org/x/net/html"
)

// RawFields are the unnormalized values read from one card. Every field may
// be empty.
type RawFields struct {
	Name             string
	PriceText        string
	AvailabilityText string
	SKU              string
	ProductURL       string
	CardText         string
	Provenance       Provenance
}

var (
	nameSelectors = []string{
		"[itemprop='name']",
		".card__heading a", ".card__heading",
		".product-title a", ".product-title",
		".product-name a", ".product-name",
		".woocommerce-loop-product__title",
		"h3 a", "h2 a", "h4 a", "h3", "h2", "h4",
		"a[title]", "a",
	}

	// Sale prices come before regular ones so discounted cards report what
	// the shopper pays.
	priceSelectors = []string{
		".price ins", ".special-price", ".price-item--sale", ".sale-price",
		".price .amount", ".price .money", ".price",
		".current-price", ".Price .money", ".money",
		".woocommerce-Price-amount bdi", ".woocommerce-Price-amount",
		".product-price",
	}

	availabilitySelectors = []string{
		".availability", ".stock", ".product-availability",
		".badge--sold-out", ".sold-out", ".out-of-stock", ".price__badge-sold-out",
	}

	skuSelectors = []string{".sku", "[data-sku]", "[data-product-sku]"}

	// Nodes removed from a heading before its text is read as a name.
	priceNodeSelectors = ".price, .money, .woocommerce-Price-amount, .current-price, .Price, .special-price, [aria-hidden='true']"
)

// Extract reads the raw fields of a card. Per field the site override
// selectors win, then structured data, then generic selectors.
func Extract(card CardCandidate, sel domain.Selectors) RawFields {
	if card.Structured != nil {
		return structuredFields(card)
	}
	if card.Node == nil {
		return RawFields{Provenance: card.Provenance}
	}
	n := card.Node
	f := RawFields{Provenance: card.Provenance, CardText: spacedText(n)}

	f.ProductURL = cardURL(n, sel.URL, card.BaseURL)
	f.Name = cardName(n, sel.Name, card.NameFor(f.ProductURL))
	f.PriceText = cardPrice(n, sel.Price, f.CardText)
	f.AvailabilityText = cardAvailability(n, sel.Availability)
	f.SKU = cardSKU(n, sel.SKU)
	return f
}

func structuredFields(card CardCandidate) RawFields {
	p := card.Structured
	url := p.URL
	if url == "" {
		url = card.BaseURL
	}
	return RawFields{
		Name:             p.Name,
		PriceText:        p.PriceText(),
		AvailabilityText: p.Availability,
		SKU:              p.SKU,
		ProductURL:       url,
		CardText:         collapseSpaces(strings.Join([]string{p.Name, p.Description, p.Availability}, " ")),
		Provenance:       card.Provenance,
	}
}

// cardName prefers override selectors, then the page's structured-data name
// for the card URL, then generic headings and attributes.
func cardName(n *goquery.Selection, overrides []string, structured string) string {
	if t := nameFrom(n, overrides); t != "" {
		return t
	}
	if structured != "" {
		return structured
	}
	if t := nameFrom(n, nameSelectors); t != "" {
		return t
	}
	for _, attr := range []string{"data-product-title", "title", "aria-label"} {
		if v := strings.TrimSpace(n.AttrOr(attr, "")); v != "" {
			return v
		}
		if v := strings.TrimSpace(n.Find("[" + attr + "]").First().AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return strings.TrimSpace(n.Find("img[alt]").First().AttrOr("alt", ""))
}

func nameFrom(n *goquery.Selection, selectors []string) string {
	for _, css := range selectors {
		el := n.Find(css).First()
		if el.Length() == 0 {
			continue
		}
		clone := el.Clone()
		clone.Find(priceNodeSelectors).Remove()
		if t := spacedText(clone); t != "" {
			return t
		}
		if t := strings.TrimSpace(el.AttrOr("title", "")); t != "" {
			return t
		}
	}
	return ""
}

func cardPrice(n *goquery.Selection, overrides []string, cardText string) string {
	for _, css := range overrides {
		if t := spacedText(n.Find(css).First()); t != "" {
			return t
		}
	}
	if el := n.Find("[itemprop='price']").First(); el.Length() > 0 {
		amount := strings.TrimSpace(el.AttrOr("content", ""))
		if amount == "" {
			amount = spacedText(el)
		}
		if amount != "" {
			cur := n.Find("[itemprop='priceCurrency']").First()
			return collapseSpaces(amount + " " + cur.AttrOr("content", spacedText(cur)))
		}
	}
	for _, css := range priceSelectors {
		if t := spacedText(n.Find(css).First()); t != "" && numberPattern.MatchString(NormalizeDigits(t)) {
			return t
		}
	}
	if m := PricePattern.FindString(NormalizeDigits(cardText)); m != "" {
		return m
	}
	return ""
}

func cardAvailability(n *goquery.Selection, overrides []string) string {
	for _, css := range overrides {
		if t := spacedText(n.Find(css).First()); t != "" {
			return t
		}
	}
	if el := n.Find("[itemprop='availability']").First(); el.Length() > 0 {
		if iri := el.AttrOr("href", el.AttrOr("content", "")); iri != "" {
			return availabilityPhrase(iri)
		}
		if t := spacedText(el); t != "" {
			return t
		}
	}
	for _, css := range availabilitySelectors {
		if t := spacedText(n.Find(css).First()); t != "" {
			return t
		}
	}
	return ""
}

func cardSKU(n *goquery.Selection, overrides []string) string {
	for _, css := range overrides {
		if t := spacedText(n.Find(css).First()); t != "" {
			return t
		}
	}
	if el := n.Find("[itemprop='sku']").First(); el.Length() > 0 {
		if v := strings.TrimSpace(el.AttrOr("content", spacedText(el))); v != "" {
			return v
		}
	}
	for _, attr := range []string{"data-sku", "data-product-sku", "data-product-id"} {
		if v := strings.TrimSpace(n.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	for _, css := range skuSelectors {
		el := n.Find(css).First()
		if el.Length() == 0 {
			continue
		}
		for _, attr := range []string{"data-sku", "data-product-sku"} {
			if v := strings.TrimSpace(el.AttrOr(attr, "")); v != "" {
				return v
			}
		}
		if t := spacedText(el); t != "" {
			return strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(t, "SKU:"), "SKU"))
		}
	}
	return ""
}

func cardURL(n *goquery.Selection, overrides []string, baseURL string) string {
	candidates := append(append([]string{}, overrides...),
		"h2 a[href]", "h3 a[href]", "h4 a[href]",
		".product-title a[href]", ".product-name a[href]", ".card__heading a[href]",
		"a[href]",
	)
	for _, css := range candidates {
		var href string
		n.Find(css).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if v := a.AttrOr("href", ""); usableHref(v) {
				href = v
				return false
			}
			return true
		})
		if href != "" {
			return utils.ToAbsoluteURL(baseURL, href)
		}
	}
	if goquery.NodeName(n) == "a" {
		if v := n.AttrOr("href", ""); usableHref(v) {
			return utils.ToAbsoluteURL(baseURL, v)
		}
	}
	return baseURL
}

func usableHref(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	lower := strings.ToLower(href)
	return !strings.HasPrefix(lower, "javascript:") && !strings.HasPrefix(lower, "mailto:") && !strings.HasPrefix(lower, "tel:")
}

// spacedText joins the text nodes under s with single spaces. goquery's Text
// concatenates adjacent nodes without a separator.
func spacedText(s *goquery.Selection) string {
	if s == nil || s.Length() == 0 {
		return ""
	}
	var parts []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			if t := strings.TrimSpace(node.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" || node.Data == "noscript" {
				return
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, node := range s.Nodes {
		walk(node)
	}
	return collapseSpaces(strings.Join(parts, " "))
}
