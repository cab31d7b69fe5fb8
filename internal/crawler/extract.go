package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/webseek/webseek/internal/store"
)

// maxTextRunes caps how much body text a single page contributes.
const maxTextRunes = 70000

// PageID derives a stable identifier from the page URL, so re-crawling the
// same URL updates the existing record in place.
func PageID(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:16])
}

// Extract pulls the stored page fields out of parsed HTML. Every string is
// sanitised to valid UTF-8 because real pages ship broken encodings.
func Extract(pageURL string, doc *goquery.Document) store.Page {
	base, _ := url.Parse(pageURL)

	title := strings.TrimSpace(doc.Find("title").First().Text())

	text := strings.TrimSpace(doc.Find("body").Text())
	if runes := []rune(text); len(runes) > maxTextRunes {
		text = string(runes[:maxTextRunes])
	}

	var links []string
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			links = append(links, sanitize(href))
		}
	})

	return store.Page{
		ID:        PageID(pageURL),
		URL:       sanitize(pageURL),
		Title:     sanitize(title),
		Snippet:   sanitize(extractSnippet(doc)),
		Favicon:   sanitize(extractFavicon(doc, base)),
		SiteName:  sanitize(extractSiteName(doc, base)),
		Image:     sanitize(extractImage(doc, base)),
		Text:      sanitize(text),
		Links:     links,
		CrawlTime: time.Now().UTC(),
	}
}

// extractSnippet picks the page summary by priority: meta description,
// og:description, the first substantial paragraph, then raw body text.
func extractSnippet(doc *goquery.Document) string {
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if s := strings.TrimSpace(desc); s != "" {
			return s
		}
	}
	if og, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		if s := strings.TrimSpace(og); s != "" {
			return s
		}
	}

	snippet := ""
	doc.Find("p").EachWithBreak(func(i int, s *goquery.Selection) bool {
		txt := strings.TrimSpace(s.Text())
		if len(txt) > 40 {
			snippet = txt
			return false
		}
		return true
	})
	if snippet != "" {
		return snippet
	}

	raw := strings.TrimSpace(doc.Find("body").Text())
	if runes := []rune(raw); len(runes) > 300 {
		return string(runes[:300])
	}
	return raw
}

func extractFavicon(doc *goquery.Document, base *url.URL) string {
	favicon := ""
	doc.Find("link").Each(func(i int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		href, _ := s.Attr("href")
		if href != "" && strings.Contains(strings.ToLower(rel), "icon") {
			favicon = href
		}
	})
	return resolveRef(base, favicon)
}

func extractSiteName(doc *goquery.Document, base *url.URL) string {
	if sn, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok {
		if s := strings.TrimSpace(sn); s != "" {
			return s
		}
	}
	if base != nil {
		return base.Hostname()
	}
	return ""
}

func extractImage(doc *goquery.Document, base *url.URL) string {
	img := ""
	if ogImg, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		img = ogImg
	}
	if img == "" {
		if twImg, ok := doc.Find(`meta[name="twitter:image"]`).Attr("content"); ok {
			img = twImg
		}
	}
	if img == "" {
		doc.Find("img").EachWithBreak(func(i int, s *goquery.Selection) bool {
			src, ok := s.Attr("src")
			if !ok || src == "" || strings.Contains(src, "logo") {
				return true
			}
			img = src
			return false
		})
	}
	return resolveRef(base, img)
}

// resolveRef makes a possibly-relative reference absolute against base.
// Unparseable references are returned as-is.
func resolveRef(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	return u.String()
}

func sanitize(s string) string {
	return strings.ToValidUTF8(s, "")
}
