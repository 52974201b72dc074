package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/RadhiFadlillah/whatlanggo"
)

// noiseTags are removed wholesale before content extraction.
var noiseTags = []string{"script", "style", "nav", "footer", "aside", "header"}

// noiseClassSubstrings mark chrome elements by class or id.
var noiseClassSubstrings = []string{
	"nav", "navigation", "menu", "sidebar", "footer", "header", "breadcrumb",
}

// mainSelectors are tried in order; the first match wins, falling back
// to body.
var mainSelectors = []string{
	"main", "[role=main]", "article",
	".main-content", ".content", ".documentation",
	"#main", "#content", "#documentation",
}

// minDetectionChars is the minimum text length before statistical
// language detection is trusted. Short navigation stubs misdetect.
const minDetectionChars = 200

var markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)

// Extracted is the cleaned content of one page.
type Extracted struct {
	Title    string
	Text     string
	Markdown string
	Links    []string
}

// Extractor turns raw HTML into cleaned text and Markdown, filtering
// pages whose language does not match the configured prefix.
type Extractor struct {
	conv     *htmltomarkdown.Converter
	language string
}

// NewExtractor builds an extractor. language is a BCP-47 prefix such as
// "en"; empty disables the language gate.
func NewExtractor(language string) *Extractor {
	conv := htmltomarkdown.NewConverter(
		htmltomarkdown.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	return &Extractor{conv: conv, language: strings.ToLower(language)}
}

// Extract parses the page, strips chrome, selects the main content
// region and converts it to Markdown. Returns ErrWrongLanguage when the
// page's declared or detected language does not match the filter.
func (e *Extractor) Extract(pageURL string, html []byte, contentLanguage string) (*Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	links := e.collectLinks(doc, pageURL)

	e.denoise(doc)

	main := e.selectMain(doc)
	text := normalizeWhitespace(main.Text())

	if err := e.checkLanguage(doc, contentLanguage, text); err != nil {
		return nil, err
	}

	markdown := ""
	if html, err := goquery.OuterHtml(main); err == nil {
		if md, err := e.conv.ConvertString(html); err == nil {
			markdown = cleanMarkdown(md)
		}
	}

	return &Extracted{
		Title:    title,
		Text:     text,
		Markdown: markdown,
		Links:    links,
	}, nil
}

// collectLinks gathers absolute anchor targets before denoising removes
// the navigation they often live in.
func (e *Extractor) collectLinks(doc *goquery.Document, pageURL string) []string {
	pageBase, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		resolved, err := pageBase.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""
		abs := resolved.String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links
}

func (e *Extractor) denoise(doc *goquery.Document) {
	for _, tag := range noiseTags {
		doc.Find(tag).Remove()
	}
	doc.Find("img").Remove()
	doc.Find("[class],[id]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		haystack := strings.ToLower(class + " " + id)
		for _, sub := range noiseClassSubstrings {
			if strings.Contains(haystack, sub) {
				s.Remove()
				return
			}
		}
	})
}

func (e *Extractor) selectMain(doc *goquery.Document) *goquery.Selection {
	for _, selector := range mainSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return sel
		}
	}
	return doc.Find("body").First()
}

// checkLanguage applies the language gate: <html lang> wins, then the
// Content-Language header, then statistical detection on the body text.
// Pages that declare nothing and are too short to detect pass through.
func (e *Extractor) checkLanguage(doc *goquery.Document, contentLanguage, text string) error {
	if e.language == "" {
		return nil
	}

	if lang, ok := doc.Find("html").First().Attr("lang"); ok && lang != "" {
		return e.matchLanguage(lang)
	}
	if contentLanguage != "" {
		// Content-Language may list several tags; the first decides.
		first := strings.Split(contentLanguage, ",")[0]
		return e.matchLanguage(first)
	}

	if len(text) >= minDetectionChars {
		info := whatlanggo.Detect(text)
		if info.IsReliable() {
			return e.matchLanguage(info.Lang.Iso6391())
		}
	}
	return nil
}

func (e *Extractor) matchLanguage(tag string) error {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" || strings.HasPrefix(tag, e.language) {
		return nil
	}
	return fmt.Errorf("%w: got %q, want %q", ErrWrongLanguage, tag, e.language)
}

// cleanMarkdown strips image references and collapses excess blank
// lines left behind by element removal.
func cleanMarkdown(md string) string {
	md = markdownImageRe.ReplaceAllString(md, "")
	lines := strings.Split(md, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	md = strings.Join(lines, "\n")
	for strings.Contains(md, "\n\n\n") {
		md = strings.ReplaceAll(md, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(md)
}

var whitespaceRe = regexp.MustCompile(`[ \t]+`)

// normalizeWhitespace collapses runs of spaces and drops blank lines,
// keeping one line per text block.
func normalizeWhitespace(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
