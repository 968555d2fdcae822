package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/catalog-crawler/pkg/utils"
)

// StructuredProduct is a Product entry read from schema.org JSON-LD.
type StructuredProduct struct {
	Name         string
	URL          string
	SKU          string
	Price        string
	Currency     string
	Availability string
	Description  string
}

// PriceText renders the offer as a price string the parser understands.
func (p StructuredProduct) PriceText() string {
	return strings.TrimSpace(p.Price + " " + p.Currency)
}

type jsonLDIndex struct {
	products []StructuredProduct
	seen     map[string]struct{}
	// names maps canonical product URLs to names, including bare ListItems.
	names map[string]string
}

// parseJSONLD collects every Product entry of the page's JSON-LD blocks.
// Blocks that fail to decode are skipped.
func parseJSONLD(doc *goquery.Document, baseURL string) *jsonLDIndex {
	idx := &jsonLDIndex{seen: map[string]struct{}{}, names: map[string]string{}}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var data any
		if err := dec.Decode(&data); err != nil {
			return
		}
		idx.walk(data, baseURL, 0)
	})
	return idx
}

const maxJSONLDDepth = 12

func (idx *jsonLDIndex) walk(v any, baseURL string, depth int) {
	if depth > maxJSONLDDepth {
		return
	}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			idx.walk(item, baseURL, depth+1)
		}
	case map[string]any:
		switch {
		case hasType(t, "Product"):
			idx.addProduct(t, baseURL)
		case hasType(t, "ListItem"):
			idx.addListItem(t, baseURL, depth)
		}
		for _, key := range []string{"@graph", "itemListElement", "mainEntity", "hasPart"} {
			if child, ok := t[key]; ok {
				idx.walk(child, baseURL, depth+1)
			}
		}
	}
}

func (idx *jsonLDIndex) addListItem(item map[string]any, baseURL string, depth int) {
	if inner, ok := item["item"].(map[string]any); ok {
		if hasType(inner, "Product") {
			idx.addProduct(inner, baseURL)
			return
		}
		idx.remember(firstString(inner, "url", "@id"), firstString(inner, "name"), baseURL)
		idx.walk(inner, baseURL, depth+1)
		return
	}
	url := firstString(item, "url")
	if url == "" {
		url, _ = item["item"].(string)
	}
	idx.remember(url, firstString(item, "name"), baseURL)
}

func (idx *jsonLDIndex) addProduct(m map[string]any, baseURL string) {
	p := StructuredProduct{
		Name:        strings.TrimSpace(firstString(m, "name")),
		SKU:         firstString(m, "sku", "mpn", "productID"),
		Description: firstString(m, "description"),
	}
	if p.Name == "" {
		return
	}
	if u := firstString(m, "url", "@id"); u != "" {
		p.URL = utils.ToAbsoluteURL(baseURL, u)
	}
	readOffer(&p, m["offers"])

	key := utils.CanonURL(p.URL) + "\x00" + p.Name
	if _, dup := idx.seen[key]; dup {
		return
	}
	idx.seen[key] = struct{}{}
	idx.products = append(idx.products, p)
	idx.remember(p.URL, p.Name, baseURL)
}

func (idx *jsonLDIndex) remember(url, name, baseURL string) {
	name = strings.TrimSpace(name)
	if url == "" || name == "" {
		return
	}
	key := utils.CanonURL(utils.ToAbsoluteURL(baseURL, url))
	if _, ok := idx.names[key]; !ok {
		idx.names[key] = name
	}
}

func readOffer(p *StructuredProduct, v any) {
	switch o := v.(type) {
	case []any:
		for _, item := range o {
			readOffer(p, item)
			if p.Price != "" {
				return
			}
		}
	case map[string]any:
		if p.Price == "" {
			p.Price = firstString(o, "price", "lowPrice")
		}
		if p.Currency == "" {
			p.Currency = firstString(o, "priceCurrency")
		}
		if p.Availability == "" {
			p.Availability = availabilityPhrase(firstString(o, "availability"))
		}
		if p.Price == "" {
			if spec, ok := o["priceSpecification"]; ok {
				readOffer(p, spec)
			}
		}
	}
}

// availabilityPhrase turns a schema.org ItemAvailability IRI into text the
// classifier understands.
func availabilityPhrase(iri string) string {
	if iri == "" {
		return ""
	}
	term := iri[strings.LastIndexAny(iri, "/#")+1:]
	switch strings.ToLower(term) {
	case "outofstock", "soldout", "discontinued":
		return "out of stock"
	case "preorder", "presale":
		return "pre-order"
	case "backorder":
		return "backorder"
	default:
		return "in stock"
	}
}

func hasType(m map[string]any, want string) bool {
	for _, key := range []string{"@type", "type"} {
		switch t := m[key].(type) {
		case string:
			if typeMatches(t, want) {
				return true
			}
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok && typeMatches(s, want) {
					return true
				}
			}
		}
	}
	return false
}

func typeMatches(t, want string) bool {
	t = t[strings.LastIndexAny(t, "/:")+1:]
	return strings.EqualFold(t, want)
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64, int, int64:
			return fmt.Sprint(v)
		case map[string]any:
			if s := firstString(v, "@value", "value", "name"); s != "" {
				return s
			}
		}
	}
	return ""
}
