package crawler

import (
	"strings"
	"time"

	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/internal/extract"
	"github.com/user/catalog-crawler/pkg/utils"
)

// Assembler turns raw card fields into output records.
type Assembler struct {
	classifier *extract.Classifier
	now        func() time.Time
}

func NewAssembler(classifier *extract.Classifier) *Assembler {
	if classifier == nil {
		classifier = extract.NewClassifier()
	}
	return &Assembler{classifier: classifier, now: time.Now}
}

// Assemble normalizes raw fields into a record. The second return value is
// false for cards carrying nothing but a link back to the page itself.
func (a *Assembler) Assemble(raw extract.RawFields, site domain.SiteConfig, page domain.FetchResult) (domain.ProductRecord, bool) {
	price := extract.ParsePrice(raw.PriceText)
	name := extract.NormalizeName(raw.Name, raw.PriceText)

	productURL := raw.ProductURL
	if productURL == "" {
		productURL = page.URL
	}
	if name == "" && price.Value == nil && utils.CanonURL(productURL) == utils.CanonURL(page.URL) {
		return domain.ProductRecord{}, false
	}

	availability := raw.AvailabilityText
	if strings.TrimSpace(availability) == "" {
		availability = raw.CardText
	}

	notes := []string{string(raw.Provenance), "via " + string(page.Method)}
	notes = append(notes, page.Notes...)
	if name == "" {
		notes = append(notes, "no name")
	}
	if price.Value == nil {
		notes = append(notes, "no price")
	}

	return domain.ProductRecord{
		Timestamp:    a.now().UTC(),
		SiteName:     site.Label(),
		ProductName:  name,
		SKU:          strings.TrimSpace(raw.SKU),
		ProductURL:   productURL,
		Status:       a.classifier.Classify(availability),
		PriceValue:   price.Value,
		Currency:     price.Currency,
		RawPriceText: price.Raw,
		SourceURL:    page.URL,
		Notes:        strings.Join(notes, "; "),
	}, true
}
