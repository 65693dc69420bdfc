package collyfetcher

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/tidwall/gjson"

	"github.com/roshanis/shopagent/internal/evaluation"
)

const maxReviewExcerpts = 3

// pageFields holds product details read from one page. Structured data
// (schema.org JSON-LD) wins over meta tags when both are present.
type pageFields struct {
	name        string
	brand       string
	price       float64
	category    string
	description string
	reviews     string
	rating      *float64
	structured  bool
}

func (p pageFields) product() evaluation.Product {
	return evaluation.Product{
		Name:        p.name,
		Brand:       p.brand,
		Price:       p.price,
		Category:    p.category,
		Description: p.description,
		Reviews:     p.reviews,
		Rating:      p.rating,
	}
}

func extractFields(e *colly.HTMLElement) pageFields {
	fields := metaFields(e)
	for _, raw := range e.ChildTexts(`script[type="application/ld+json"]`) {
		ld, ok := productFromLD(raw)
		if !ok {
			continue
		}
		fields = merge(ld, fields)
		fields.structured = true
		break
	}
	return fields
}

// extractDocument reads fields from HTML obtained outside the collector,
// such as a headless render.
func extractDocument(html []byte) (pageFields, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return pageFields{}, fmt.Errorf("parse rendered page: %w", err)
	}
	root := doc.Find("html")
	if root.Length() == 0 {
		return pageFields{}, ErrNoProduct
	}
	e := colly.NewHTMLElementFromSelectionNode(&colly.Response{}, root, root.Nodes[0], 0)
	return extractFields(e), nil
}

func metaFields(e *colly.HTMLElement) pageFields {
	fields := pageFields{
		name: firstNonEmpty(
			e.ChildAttr(`meta[property="og:title"]`, "content"),
			e.ChildText("h1"),
			e.ChildText("title"),
		),
		brand: firstNonEmpty(
			e.ChildAttr(`meta[property="product:brand"]`, "content"),
			e.ChildAttr(`meta[property="og:brand"]`, "content"),
			e.ChildAttr(`meta[itemprop="brand"]`, "content"),
		),
		category: e.ChildAttr(`meta[property="product:category"]`, "content"),
		description: firstNonEmpty(
			e.ChildAttr(`meta[property="og:description"]`, "content"),
			e.ChildAttr(`meta[name="description"]`, "content"),
		),
	}
	fields.price = parsePrice(firstNonEmpty(
		e.ChildAttr(`meta[property="product:price:amount"]`, "content"),
		e.ChildAttr(`meta[property="og:price:amount"]`, "content"),
		e.ChildAttr(`meta[itemprop="price"]`, "content"),
	))
	fields.rating = parseRating(e.ChildAttr(`meta[itemprop="ratingValue"]`, "content"))
	return fields
}

// merge overlays the non-empty fields of primary onto fallback.
func merge(primary, fallback pageFields) pageFields {
	out := fallback
	if primary.name != "" {
		out.name = primary.name
	}
	if primary.brand != "" {
		out.brand = primary.brand
	}
	if primary.price > 0 {
		out.price = primary.price
	}
	if primary.category != "" {
		out.category = primary.category
	}
	if primary.description != "" {
		out.description = primary.description
	}
	if primary.reviews != "" {
		out.reviews = primary.reviews
	}
	if primary.rating != nil {
		out.rating = primary.rating
	}
	return out
}

// productFromLD finds the first schema.org Product in a JSON-LD document.
// Top-level arrays and @graph containers are searched.
func productFromLD(raw string) (pageFields, bool) {
	if !gjson.Valid(raw) {
		return pageFields{}, false
	}
	node, ok := findProduct(gjson.Parse(raw))
	if !ok {
		return pageFields{}, false
	}

	fields := pageFields{
		name:        strings.TrimSpace(node.Get("name").String()),
		brand:       brandName(node.Get("brand")),
		category:    strings.TrimSpace(node.Get("category").String()),
		description: strings.TrimSpace(node.Get("description").String()),
		reviews:     reviewExcerpts(node.Get("review")),
		rating:      parseRating(node.Get("aggregateRating.ratingValue").String()),
	}
	offers := node.Get("offers")
	if offers.IsArray() {
		offers = offers.Get("0")
	}
	fields.price = parsePrice(firstNonEmpty(
		offers.Get("price").String(),
		offers.Get("lowPrice").String(),
	))
	return fields, true
}

func findProduct(node gjson.Result) (gjson.Result, bool) {
	switch {
	case node.IsArray():
		for _, item := range node.Array() {
			if found, ok := findProduct(item); ok {
				return found, true
			}
		}
	case node.IsObject():
		if isProductType(node.Get("@type")) {
			return node, true
		}
		if graph := node.Get("@graph"); graph.Exists() {
			return findProduct(graph)
		}
	}
	return gjson.Result{}, false
}

func isProductType(t gjson.Result) bool {
	if t.IsArray() {
		for _, item := range t.Array() {
			if isProductType(item) {
				return true
			}
		}
		return false
	}
	name := t.String()
	if i := strings.LastIndexAny(name, "/#"); i >= 0 {
		name = name[i+1:]
	}
	return strings.EqualFold(name, "Product")
}

func brandName(brand gjson.Result) string {
	switch {
	case brand.IsArray():
		return brandName(brand.Get("0"))
	case brand.IsObject():
		return strings.TrimSpace(brand.Get("name").String())
	default:
		return strings.TrimSpace(brand.String())
	}
}

func reviewExcerpts(review gjson.Result) string {
	var bodies []gjson.Result
	switch {
	case review.IsArray():
		bodies = review.Get("#.reviewBody").Array()
	case review.IsObject():
		bodies = []gjson.Result{review.Get("reviewBody")}
	}
	excerpts := make([]string, 0, maxReviewExcerpts)
	for _, b := range bodies {
		if text := strings.TrimSpace(b.String()); text != "" {
			excerpts = append(excerpts, text)
		}
		if len(excerpts) == maxReviewExcerpts {
			break
		}
	}
	return strings.Join(excerpts, " | ")
}

// parsePrice reads amounts such as "12.99", "$1,299.00" or "12,50".
// Unparseable input yields zero.
func parsePrice(raw string) float64 {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	switch {
	case strings.Contains(s, ".") && strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Contains(s, ","):
		if i := strings.LastIndex(s, ","); len(s)-i-1 == 2 {
			s = s[:i] + "." + s[i+1:]
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseRating(raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v <= 0 || v > 5 {
		return nil
	}
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
