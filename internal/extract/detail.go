package extract

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// TitleMissing is the sentinel emitted when no title can be extracted.
// Absence of a title is data, not an error.
const TitleMissing = "N/A"

// VariationAxis is the only variation dimension the crawl follows.
const VariationAxis = "Color"

// Detail is the result of parsing a product detail page.
type Detail struct {
	Title        string
	MainImageURL string
	Variants     []Variant
}

// Variant is one color variation of a base product.
type Variant struct {
	ASIN     string
	Value    string // display value, e.g. "Midnight Blue"
	ImageURL string
}

// variantScriptXPath locates the inline script that embeds the
// variation data blob.
const variantScriptXPath = `//script[contains(text(), 'dimensionValuesDisplayData')]`

// variantPatterns are tried in order against the script body. Each has
// exactly one capture group holding the JSON-ish fragment.
var variantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)"dimensionValuesDisplayData"\s*:\s*(\{.*?\}),\s*"variationValues"`),
	regexp.MustCompile(`(?is)jQuery\.parseJSON\('(.*?)'\);`),
	regexp.MustCompile(`(?is)var dataToReturn = (\{.*?\});`),
}

// imageExtensions accepted when stripping the CDN size infix.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// ParseDetail extracts the title, main image, and color variants from a
// product detail page. doc and rawHTML describe the same rendered page;
// the raw form is needed for script-body regex matching. Extraction
// failures degrade the result (sentinel title, empty image, zero
// variants) rather than aborting it.
func ParseDetail(doc *goquery.Document, rawHTML, baseASIN string, logger *slog.Logger) *Detail {
	d := &Detail{
		Title:        Title(doc),
		MainImageURL: MainImage(doc, logger),
	}
	d.Variants = variants(doc, rawHTML, baseASIN, d.MainImageURL, logger)
	return d
}

// Title returns the product title, or TitleMissing when absent.
func Title(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("#productTitle").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1#title span#productTitle").First().Text())
	}
	if title == "" {
		return TitleMissing
	}
	return title
}

// MainImage resolves the main product image URL. The dynamic image map
// is preferred (largest rendition wins); plain src attributes are the
// fallback chain. Returns "" when nothing resolves.
func MainImage(doc *goquery.Document, logger *slog.Logger) string {
	raw, ok := doc.Find("#imgTagWrapperId img").First().Attr("data-a-dynamic-image")
	if !ok {
		raw, ok = doc.Find("#landingImage").First().Attr("data-a-dynamic-image")
	}
	if ok && raw != "" {
		best, err := bestDynamicImage(raw)
		if err != nil {
			logger.Warn("dynamic image map unparsable", "error", err)
		} else if best != "" {
			return NormalizeImageURL(best)
		}
	}

	if src, ok := doc.Find("#landingImage").First().Attr("src"); ok && src != "" {
		return NormalizeImageURL(src)
	}
	if src, ok := doc.Find("#imgTagWrapperId img").First().Attr("src"); ok && src != "" {
		return NormalizeImageURL(src)
	}
	return ""
}

// bestDynamicImage picks the URL with the largest width*height from a
// data-a-dynamic-image JSON map. Entries are walked in document order so
// ties resolve to the first encountered.
func bestDynamicImage(raw string) (string, error) {
	entries, err := decodeOrderedObject(raw)
	if err != nil {
		return "", err
	}

	var best string
	var bestArea float64 = -1
	for _, e := range entries {
		if !strings.HasPrefix(e.key, "http") {
			continue
		}
		var size []float64
		if err := json.Unmarshal(e.val, &size); err != nil || len(size) != 2 {
			continue
		}
		if area := size[0] * size[1]; area > bestArea {
			bestArea = area
			best = e.key
		}
	}
	return best, nil
}

// NormalizeImageURL strips the "._<size-markers>" infix CDN image URLs
// carry, yielding the full-resolution rendition. URLs without the infix
// or with an unexpected extension pass through unchanged. Idempotent.
func NormalizeImageURL(rawURL string) string {
	slash := strings.LastIndex(rawURL, "/")
	segment := rawURL[slash+1:]

	i := strings.Index(segment, "._")
	if i < 0 {
		return rawURL
	}
	ext := path.Ext(segment)
	if !imageExtensions[strings.ToLower(ext)] {
		return rawURL
	}
	return rawURL[:slash+1] + segment[:i] + ext
}

// variants extracts color variants, preferring the embedded script data
// and falling back to HTML swatches when the script yields nothing.
func variants(doc *goquery.Document, rawHTML, baseASIN, mainImageURL string, logger *slog.Logger) []Variant {
	values, images := scriptVariants(rawHTML, baseASIN, logger)
	if len(values) == 0 {
		values, images = swatchVariants(doc, baseASIN)
	}

	var out []Variant
	for _, v := range values {
		imageURL := images[v.key]
		if imageURL == "" {
			imageURL = mainImageURL
		}
		if imageURL == "" {
			logger.Warn("variant has no image, skipping", "variant_asin", v.key)
			continue
		}
		out = append(out, Variant{
			ASIN:     v.key,
			Value:    v.display,
			ImageURL: imageURL,
		})
	}
	return out
}

type variantValue struct {
	key     string
	display string
}

// scriptVariants parses the variation blob out of the inline script.
// Any failure along the way is logged and yields zero variants.
func scriptVariants(rawHTML, baseASIN string, logger *slog.Logger) ([]variantValue, map[string]string) {
	script := findVariantScript(rawHTML)
	if script == "" {
		return nil, nil
	}

	var fragment string
	for _, pat := range variantPatterns {
		if m := pat.FindStringSubmatch(script); m != nil {
			fragment = m[1]
			break
		}
	}
	if fragment == "" {
		logger.Warn("variant script present but no pattern matched", "asin", baseASIN)
		return nil, nil
	}

	cleaned := CleanJSON(fragment)

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &top); err != nil {
		logger.Warn("variant JSON unparsable after cleanup",
			"asin", baseASIN,
			"error", err,
			"fragment", truncate(cleaned, 200),
		)
		return nil, nil
	}

	displayRaw, ok := top["dimensionValuesDisplayData"]
	if !ok {
		// Pattern 1 captures the display-data map itself rather than
		// the enclosing object. Detect that shape and use it directly.
		if looksLikeDisplayData(top) {
			displayRaw = json.RawMessage(cleaned)
		} else {
			return nil, nil
		}
	}

	values := displayValues(displayRaw, baseASIN)
	images := variantImages(top["colorImages"], baseASIN)
	return values, images
}

// displayValues decodes the ASIN -> [display values...] map in document
// order, keeping the first display value per variant.
func displayValues(raw json.RawMessage, baseASIN string) []variantValue {
	entries, err := decodeOrderedObject(string(raw))
	if err != nil {
		return nil
	}

	var out []variantValue
	for _, e := range entries {
		if e.key == baseASIN {
			continue
		}
		var details []string
		if err := json.Unmarshal(e.val, &details); err != nil || len(details) == 0 {
			continue
		}
		out = append(out, variantValue{key: e.key, display: details[0]})
	}
	return out
}

// variantImages picks one image per variant from the colorImages map.
// Preference: MAIN+hiRes, then MAIN+large, then the first entry's large.
func variantImages(raw json.RawMessage, baseASIN string) map[string]string {
	if raw == nil {
		return nil
	}

	var byASIN map[string][]struct {
		Variant string `json:"variant"`
		HiRes   string `json:"hiRes"`
		Large   string `json:"large"`
	}
	if err := json.Unmarshal(raw, &byASIN); err != nil {
		return nil
	}

	images := make(map[string]string)
	for asin, imgs := range byASIN {
		if asin == baseASIN || len(imgs) == 0 {
			continue
		}
		var picked string
		for _, img := range imgs {
			if img.Variant != "MAIN" {
				continue
			}
			if img.HiRes != "" {
				picked = img.HiRes
				break
			}
			if img.Large != "" {
				picked = img.Large
			}
		}
		if picked == "" {
			picked = imgs[0].Large
		}
		if picked != "" {
			images[asin] = picked
		}
	}
	return images
}

// swatchVariants reads color swatch elements from the rendered HTML.
// Lower fidelity than the script data: values come from image alt text.
func swatchVariants(doc *goquery.Document, baseASIN string) ([]variantValue, map[string]string) {
	swatches := doc.Find(`ul[aria-labelledby="color_name-label"] li[data-asin]`)
	if swatches.Length() == 0 {
		swatches = doc.Find("#variation_color_name ul li")
	}

	var values []variantValue
	images := make(map[string]string)

	swatches.Each(func(i int, sel *goquery.Selection) {
		asin, _ := sel.Attr("data-asin")
		if asin == "" || asin == baseASIN {
			return
		}

		img := sel.Find("img").First()
		display, _ := img.Attr("alt")
		if display == "" {
			display, _ = sel.Attr("title")
		}
		if display == "" {
			return
		}

		values = append(values, variantValue{key: asin, display: strings.TrimSpace(display)})
		if src, ok := img.Attr("src"); ok && src != "" {
			images[asin] = NormalizeImageURL(src)
		}
	})

	return values, images
}

// findVariantScript returns the body of the script tag holding the
// variation blob, or "".
func findVariantScript(rawHTML string) string {
	root, err := htmlquery.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	return scriptText(htmlquery.FindOne(root, variantScriptXPath))
}

func scriptText(node *html.Node) string {
	if node == nil {
		return ""
	}
	return htmlquery.InnerText(node)
}

// looksLikeDisplayData reports whether every value in the object is a
// JSON array, the shape of an ASIN -> display values map.
func looksLikeDisplayData(obj map[string]json.RawMessage) bool {
	if len(obj) == 0 {
		return false
	}
	for _, v := range obj {
		trimmed := strings.TrimSpace(string(v))
		if !strings.HasPrefix(trimmed, "[") {
			return false
		}
	}
	return true
}

type objEntry struct {
	key string
	val json.RawMessage
}

// decodeOrderedObject decodes a JSON object preserving key order, which
// map-based unmarshaling discards.
func decodeOrderedObject(raw string) ([]objEntry, error) {
	dec := json.NewDecoder(strings.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var entries []objEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("non-string object key %v", keyTok)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		entries = append(entries, objEntry{key: key, val: val})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return entries, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
