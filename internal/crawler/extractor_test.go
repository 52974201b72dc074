package crawler

import (
	"errors"
	"strings"
	"testing"
)

const fixturePage = `<!DOCTYPE html>
<html lang="en">
<head><title>Install Guide</title></head>
<body>
<nav><a href="/pricing">Pricing</a></nav>
<div class="sidebar"><a href="/blog">Blog</a></div>
<main>
  <h1>Installation</h1>
  <p>Run the installer and follow the prompts.</p>
  <img src="/diagram.png" alt="diagram">
  <a href="/docs/config">Configuration</a>
  <a href="#anchor">Skip</a>
  <a href="mailto:hi@example.com">Mail</a>
</main>
<footer>Copyright</footer>
</body>
</html>`

func TestExtractorSelectsMainAndDenoises(t *testing.T) {
	e := NewExtractor("en")
	got, err := e.Extract("https://example.com/docs/install", []byte(fixturePage), "")
	if err != nil {
		t.Fatal(err)
	}

	if got.Title != "Install Guide" {
		t.Errorf("Title = %q", got.Title)
	}
	if !strings.Contains(got.Text, "Run the installer") {
		t.Error("main content missing from text")
	}
	for _, noise := range []string{"Pricing", "Blog", "Copyright"} {
		if strings.Contains(got.Text, noise) {
			t.Errorf("chrome text %q leaked into content", noise)
		}
	}
	if strings.Contains(got.Markdown, "![") || strings.Contains(got.Markdown, "diagram.png") {
		t.Error("images must be dropped from markdown")
	}
	if !strings.Contains(got.Markdown, "# Installation") {
		t.Errorf("markdown missing heading: %q", got.Markdown)
	}
}

func TestExtractorCollectsAbsoluteLinks(t *testing.T) {
	e := NewExtractor("")
	got, err := e.Extract("https://example.com/docs/install", []byte(fixturePage), "")
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{
		"https://example.com/pricing":     true,
		"https://example.com/blog":        true,
		"https://example.com/docs/config": true,
	}
	if len(got.Links) != len(want) {
		t.Fatalf("Links = %v, want %d entries", got.Links, len(want))
	}
	for _, l := range got.Links {
		if !want[l] {
			t.Errorf("unexpected link %q", l)
		}
	}
}

func TestExtractorLanguageGate(t *testing.T) {
	tests := []struct {
		name            string
		html            string
		contentLanguage string
		wantErr         bool
	}{
		{
			name:    "matching html lang",
			html:    `<html lang="en-US"><body><main><p>hello</p></main></body></html>`,
			wantErr: false,
		},
		{
			name:    "mismatched html lang",
			html:    `<html lang="fr"><body><main><p>bonjour</p></main></body></html>`,
			wantErr: true,
		},
		{
			name:            "mismatched content-language header",
			html:            `<html><body><main><p>hallo</p></main></body></html>`,
			contentLanguage: "de-DE, de",
			wantErr:         true,
		},
		{
			name:    "no declaration short body passes",
			html:    `<html><body><main><p>ok</p></main></body></html>`,
			wantErr: false,
		},
	}

	e := NewExtractor("en")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract("https://example.com/", []byte(tt.html), tt.contentLanguage)
			if tt.wantErr {
				if !errors.Is(err, ErrWrongLanguage) {
					t.Errorf("error = %v, want ErrWrongLanguage", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestExtractorPrefersRoleMainOverArticle(t *testing.T) {
	e := NewExtractor("")
	html := `<html><body>
		<article><p>related article teaser</p></article>
		<div role="main"><p>the actual documentation body</p></div>
	</body></html>`
	got, err := e.Extract("https://example.com/docs", []byte(html), "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got.Text, "the actual documentation body") {
		t.Errorf("Text = %q, want the role=main content", got.Text)
	}
	if strings.Contains(got.Text, "related article teaser") {
		t.Errorf("Text = %q, article content should lose to role=main", got.Text)
	}
}

func TestExtractorFallsBackToBody(t *testing.T) {
	e := NewExtractor("")
	html := `<html><body><p>plain page with no landmarks</p></body></html>`
	got, err := e.Extract("https://example.com/", []byte(html), "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got.Text, "plain page with no landmarks") {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestCleanMarkdownCollapsesBlankLines(t *testing.T) {
	in := "# Title\n\n\n\nBody   \n\n\n![alt](img.png)\n\nEnd"
	got := cleanMarkdown(in)
	if strings.Contains(got, "\n\n\n") {
		t.Error("blank line runs not collapsed")
	}
	if strings.Contains(got, "![") {
		t.Error("image reference not stripped")
	}
}
