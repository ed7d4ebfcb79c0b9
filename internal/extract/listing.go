package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// Organic product links on a search results page. Sponsored tiles
	// use the same anchor class but route through /sspa/click redirects.
	productLinkSelector = `a.a-link-normal.s-no-outline[href*="/dp/"]`

	nextPageSelector = `a.s-pagination-item.s-pagination-next`
)

// asinRe matches the 10-character product id in canonical product paths.
var asinRe = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`)

// Link is one deduplicated candidate from a listing page.
type Link struct {
	URL  string
	ASIN string
}

// Links extracts product links from a listing page document. Redirect
// wrappers are resolved to their real destination, tracking parameters
// are stripped, and links are deduplicated by ASIN preserving in-page
// order. Links whose URL yields no ASIN are discarded. An empty result
// is valid (the caller decides whether it signals a problem).
func Links(doc *goquery.Document, base *url.URL) []Link {
	seen := make(map[string]bool)
	var links []Link

	doc.Find(productLinkSelector).Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}

		resolved := resolveProductURL(href, base)
		if resolved == "" {
			return
		}

		asin := ASIN(resolved)
		if asin == "" {
			return
		}
		if seen[asin] {
			return
		}
		seen[asin] = true
		links = append(links, Link{URL: resolved, ASIN: asin})
	})

	return links
}

// NextPageURL returns the absolute URL of the next listing page, or ""
// when the current page is the last one.
func NextPageURL(doc *goquery.Document, base *url.URL) string {
	href, ok := doc.Find(nextPageSelector).First().Attr("href")
	if !ok || href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// ASIN extracts the product id from a product URL, or "" if absent.
func ASIN(rawURL string) string {
	m := asinRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// resolveProductURL turns a listing href into a canonical absolute
// product URL with the query string dropped. Sponsored /sspa/click
// redirects carry the real destination in their "url" query parameter.
func resolveProductURL(href string, base *url.URL) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)

	if strings.Contains(u.Path, "/sspa/click") {
		inner := u.Query().Get("url")
		if inner == "" {
			return ""
		}
		innerRef, err := url.Parse(inner)
		if err != nil {
			return ""
		}
		u = base.ResolveReference(innerRef)
	}

	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
