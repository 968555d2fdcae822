package extract

import (
	"iter"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/pkg/utils"
	"golang.org/x/net/html"
)

// Provenance records which locator strategy produced a card.
type Provenance string

const (
	ProvenanceStructured Provenance = "structured"
	ProvenanceOverride   Provenance = "override"
	ProvenanceHeuristic  Provenance = "heuristic"
)

// MaxCardsPerPage bounds the number of candidates yielded for one page.
const MaxCardsPerPage = 1000

// DefaultCardSelectors are tried in order when a site has no override or its
// overrides match nothing.
var DefaultCardSelectors = []string{
	"li.product",
	".product-item",
	".product-card",
	".product-miniature",
	".grid-product",
	".grid__item .card-wrapper",
	".card-product",
	"article.product",
	".product-grid-item",
	"[data-product-id]",
	"[itemtype*='schema.org/Product']",
	".product",
}

// CardCandidate is one product card found on a page: either a DOM subtree or
// a structured entry. It is only valid while the page is being extracted.
type CardCandidate struct {
	Provenance Provenance
	Index      int
	BaseURL    string
	Node       *goquery.Selection
	Structured *StructuredProduct

	names map[string]string
}

// NameFor returns the structured-data name recorded for a product URL, if any.
func (c CardCandidate) NameFor(productURL string) string {
	if productURL == "" || c.names == nil {
		return ""
	}
	return c.names[utils.CanonURL(productURL)]
}

// Locate yields the product cards of a page. JSON-LD products win when
// present; otherwise override selectors, then the default selectors, then a
// repeated-sibling heuristic are tried. The sequence reparses html on every
// iteration so it can be ranged over more than once with the same result.
func Locate(htmlText, baseURL string, sel domain.Selectors) iter.Seq[CardCandidate] {
	return func(yield func(CardCandidate) bool) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
		if err != nil {
			return
		}
		idx := parseJSONLD(doc, baseURL)

		if len(idx.products) > 0 {
			for i, p := range idx.products {
				if i >= MaxCardsPerPage {
					return
				}
				card := CardCandidate{
					Provenance: ProvenanceStructured,
					Index:      i,
					BaseURL:    baseURL,
					Structured: &p,
					names:      idx.names,
				}
				if !yield(card) {
					return
				}
			}
			return
		}

		nodes, prov := locateNodes(doc, sel)
		for i, n := range nodes {
			if i >= MaxCardsPerPage {
				return
			}
			card := CardCandidate{
				Provenance: prov,
				Index:      i,
				BaseURL:    baseURL,
				Node:       n,
				names:      idx.names,
			}
			if !yield(card) {
				return
			}
		}
	}
}

func locateNodes(doc *goquery.Document, sel domain.Selectors) ([]*goquery.Selection, Provenance) {
	for _, css := range sel.Card {
		if nodes := outermost(doc.Find(css)); len(nodes) > 0 {
			return nodes, ProvenanceOverride
		}
	}
	for _, css := range DefaultCardSelectors {
		nodes := outermost(doc.Find(css))
		nodes = slices.DeleteFunc(nodes, func(s *goquery.Selection) bool { return !hasLink(s) })
		// A lone match must also look priced; a single linked ".product" is
		// often page chrome.
		if len(nodes) > 1 || (len(nodes) == 1 && hasPrice(nodes[0])) {
			return nodes, ProvenanceHeuristic
		}
	}
	return siblingGroups(doc), ProvenanceHeuristic
}

// outermost drops every node nested inside another node of the same selection.
func outermost(sel *goquery.Selection) []*goquery.Selection {
	if sel.Length() == 0 {
		return nil
	}
	set := make(map[*html.Node]struct{}, sel.Length())
	for _, n := range sel.Nodes {
		set[n] = struct{}{}
	}
	out := make([]*goquery.Selection, 0, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		for p := sel.Nodes[i].Parent; p != nil; p = p.Parent {
			if _, nested := set[p]; nested {
				return
			}
		}
		out = append(out, s)
	})
	return out
}

func hasLink(s *goquery.Selection) bool {
	if goquery.NodeName(s) == "a" {
		_, ok := s.Attr("href")
		return ok
	}
	return s.Find("a[href]").Length() > 0
}

func hasPrice(s *goquery.Selection) bool {
	return PricePattern.MatchString(NormalizeDigits(s.Text()))
}

// minSiblingGroup applies only to the signature fallback, where a repeated
// shape is the sole evidence of a listing.
const minSiblingGroup = 3

// siblingGroups finds the largest run of same-signature siblings that each
// hold a link and a price-like token. Ties go to the group seen first.
func siblingGroups(doc *goquery.Document) []*goquery.Selection {
	var best []*goquery.Selection
	doc.Find("body *").Each(func(_ int, parent *goquery.Selection) {
		groups := map[string][]*goquery.Selection{}
		var order []string
		parent.Children().Each(func(_ int, child *goquery.Selection) {
			sig := signature(child)
			if _, ok := groups[sig]; !ok {
				order = append(order, sig)
			}
			groups[sig] = append(groups[sig], child)
		})
		for _, sig := range order {
			members := groups[sig]
			if len(members) < minSiblingGroup || len(members) <= len(best) {
				continue
			}
			qualified := true
			for _, m := range members {
				if !hasLink(m) || !hasPrice(m) {
					qualified = false
					break
				}
			}
			if qualified {
				best = members
			}
		}
	})
	return best
}

func signature(s *goquery.Selection) string {
	classes := strings.Fields(s.AttrOr("class", ""))
	slices.Sort(classes)
	return goquery.NodeName(s) + "." + strings.Join(classes, ".")
}
