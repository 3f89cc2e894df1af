package enrich

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// strip lists the non-content elements removed before extraction.
const strip = "script, style, nav, header, footer, aside, iframe, noscript, form"

// contentSelectors is the ordered list of structural hints used to locate the
// primary content region. The body is the fallback.
var contentSelectors = []string{
	"article",
	"main",
	"[role=\"main\"]",
	".article-content",
	".post-content",
	".entry-content",
	"#content",
}

// Config holds extractor configuration.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Extractor fetches article pages and produces a condensed textual
// representation of the main content region.
type Extractor struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Extractor {
	return &Extractor{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
		logger:    logger.With("component", "enrich"),
	}
}

// Fetch retrieves the page at url and extracts its content. Redirects are
// followed and non-UTF8 responses are decoded by declared charset.
func (e *Extractor) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", url, err)
	}

	return extract(body)
}

// extract parses HTML and renders the content region as condensed text: a
// title line, paragraphs, heading markers by level, list items, blockquotes
// and a trailing list of absolute external links.
func extract(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find(strip).Remove()

	content := findContent(doc)

	var parts []string

	if title := text(doc.Find("h1").First()); title != "" {
		parts = append(parts, "# "+title+"\n")
	}

	content.Find("p, h1, h2, h3, h4, h5, h6, ul, ol, blockquote").Each(func(_ int, sel *goquery.Selection) {
		body := text(sel)
		if body == "" {
			return
		}

		switch tag := goquery.NodeName(sel); tag {
		case "p":
			parts = append(parts, body)
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(tag[1] - '0')
			parts = append(parts, "\n"+strings.Repeat("#", level)+" "+body+"\n")
		case "ul", "ol":
			sel.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
				if item := text(li); item != "" {
					parts = append(parts, "- "+item)
				}
			})
		case "blockquote":
			parts = append(parts, "> "+body)
		}

		parts = append(parts, "")
	})

	out := strings.TrimSpace(strings.Join(parts, "\n"))

	// Relative and same-site links are dropped; only absolute external
	// links make the list.
	var links []string
	content.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		label := text(a)
		if strings.HasPrefix(href, "http") && label != "" {
			links = append(links, fmt.Sprintf("[%s](%s)", label, href))
		}
	})
	if len(links) > 0 {
		out += "\n\n## External Links\n" + strings.Join(links, "\n")
	}

	if out == "" {
		return "", fmt.Errorf("no content extracted")
	}
	return out, nil
}

func findContent(doc *goquery.Document) *goquery.Selection {
	for _, selector := range contentSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return sel
		}
	}
	return doc.Find("body")
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
