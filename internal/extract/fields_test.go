package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/catalog-crawler/internal/domain"
)

func firstCard(t *testing.T, html string, sel domain.Selectors) CardCandidate {
	t.Helper()
	for c := range Locate(html, base, sel) {
		return c
	}
	t.Fatal("no card located")
	return CardCandidate{}
}

func TestExtract_GenericSelectors(t *testing.T) {
	page := `<div class="tile" data-sku="SKU-1">
  <h3><a href="/p/widget">Widget Pro <span class="price">EGP 300</span></a></h3>
  <div class="price"><ins>EGP 250</ins> <del>EGP 300</del></div>
  <p class="stock">Sold out</p>
</div>`
	sel := domain.Selectors{Card: []string{"div.tile"}}

	f := Extract(firstCard(t, page, sel), sel)

	assert.Equal(t, "Widget Pro", f.Name)
	assert.Equal(t, "EGP 250", f.PriceText)
	assert.Equal(t, "Sold out", f.AvailabilityText)
	assert.Equal(t, "SKU-1", f.SKU)
	assert.Equal(t, "https://shop.example/p/widget", f.ProductURL)
	assert.Equal(t, ProvenanceOverride, f.Provenance)
	assert.Contains(t, f.CardText, "Widget Pro")
}

func TestExtract_OverrideSelectorsFirst(t *testing.T) {
	page := `<div class="tile">
  <h3><a href="/p/generic">Generic Heading</a></h3>
  <span class="brand-title">Override Name</span>
  <span class="price">EGP 10</span><span class="final">EGP 8</span>
  <a class="go" href="/p/override">go</a>
</div>`
	sel := domain.Selectors{
		Card:  []string{"div.tile"},
		Name:  []string{".brand-title"},
		Price: []string{".final"},
		URL:   []string{"a.go"},
	}

	f := Extract(firstCard(t, page, sel), sel)

	assert.Equal(t, "Override Name", f.Name)
	assert.Equal(t, "EGP 8", f.PriceText)
	assert.Equal(t, "https://shop.example/p/override", f.ProductURL)
}

func TestExtract_Microdata(t *testing.T) {
	page := `<div class="tile" itemscope itemtype="https://schema.org/Product">
  <a href="/p/m"><span itemprop="name">Micro Kettle</span></a>
  <span itemprop="offers" itemscope><meta itemprop="price" content="799.50"><meta itemprop="priceCurrency" content="EGP">
  <link itemprop="availability" href="https://schema.org/OutOfStock"></span>
  <meta itemprop="sku" content="MK-9">
</div>`
	sel := domain.Selectors{Card: []string{"div.tile"}}

	f := Extract(firstCard(t, page, sel), sel)

	assert.Equal(t, "Micro Kettle", f.Name)
	assert.Equal(t, "799.50 EGP", f.PriceText)
	assert.Equal(t, "out of stock", f.AvailabilityText)
	assert.Equal(t, "MK-9", f.SKU)
}

func TestExtract_NameFromJSONLDMap(t *testing.T) {
	page := `<script type="application/ld+json">
{"@type":"ItemList","itemListElement":[{"@type":"ListItem","position":1,"url":"https://shop.example/p/gamma","name":"Gamma Lamp"}]}
</script>
<div class="tile"><a href="/p/gamma"><img src="g.jpg"></a><span class="price">EGP 10</span></div>`
	sel := domain.Selectors{Card: []string{"div.tile"}}

	card := firstCard(t, page, sel)
	require.Nil(t, card.Structured)

	f := Extract(card, sel)
	assert.Equal(t, "Gamma Lamp", f.Name)
	assert.Equal(t, "EGP 10", f.PriceText)
}

func TestExtract_StructuredNameBeforeGenericHeading(t *testing.T) {
	page := `<script type="application/ld+json">
{"@type":"ItemList","itemListElement":[{"@type":"ListItem","url":"https://shop.example/p/gamma","name":"Gamma Desk Lamp 40W"}]}
</script>
<div class="tile"><a href="/p/gamma"><h3>Gamma…</h3></a><span class="price">EGP 10</span></div>`

	generic := domain.Selectors{Card: []string{"div.tile"}}
	assert.Equal(t, "Gamma Desk Lamp 40W", Extract(firstCard(t, page, generic), generic).Name)

	override := domain.Selectors{Card: []string{"div.tile"}, Name: []string{"h3"}}
	assert.Equal(t, "Gamma…", Extract(firstCard(t, page, override), override).Name)
}

func TestExtract_PriceFromCardText(t *testing.T) {
	page := `<div class="tile"><a href="/p/z">Zed Mug</a> only 65 EGP today</div>`
	sel := domain.Selectors{Card: []string{"div.tile"}}

	f := Extract(firstCard(t, page, sel), sel)
	assert.Equal(t, "65 EGP", f.PriceText)
	assert.Equal(t, "", f.AvailabilityText)
	assert.Equal(t, "", f.SKU)
}

func TestExtract_StructuredWithoutURL(t *testing.T) {
	page := `<script type="application/ld+json">{"@type":"Product","name":"Solo","description":"Currently unavailable"}</script>`

	f := Extract(firstCard(t, page, domain.Selectors{}), domain.Selectors{})
	assert.Equal(t, base, f.ProductURL)
	assert.Equal(t, "Solo Currently unavailable", f.CardText)
}
