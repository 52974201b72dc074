package composer

import (
	"strings"
	"testing"

	"github.com/jmylchreest/llmtxt-api/internal/models"
)

func page(url, title, content string, depth int) models.PageRecord {
	return models.PageRecord{
		URL:     url,
		Title:   title,
		Content: content,
		Depth:   depth,
	}
}

func TestScoreKeywordTiers(t *testing.T) {
	body := "Some reasonable documentation content for the page body."

	install := page("https://ex.com/docs/install", "Installation", body, 1)
	api := page("https://ex.com/docs/reference", "Reference", body, 1)
	tutorial := page("https://ex.com/docs/tutorial", "Tutorial", body, 1)
	changelog := page("https://ex.com/changelog", "Changelog", body, 1)

	if Score(&install) <= Score(&api) {
		t.Error("setup content must outrank API reference")
	}
	if Score(&api) <= Score(&tutorial) {
		t.Error("API reference must outrank tutorials")
	}
	if Score(&changelog) >= Score(&tutorial) {
		t.Error("changelog must rank below real documentation")
	}
}

func TestScoreDatedURLPenalty(t *testing.T) {
	plain := page("https://ex.com/guide", "Guide", "body", 1)
	dated := page("https://ex.com/2024/01/15/guide", "Guide", "body", 1)
	if Score(&dated) >= Score(&plain) {
		t.Error("dated URL must be penalized")
	}
}

func TestScoreCodeDensityBonusCapped(t *testing.T) {
	prose := strings.Repeat("plain prose only. ", 100)
	noCode := page("https://ex.com/a", "Page", prose, 1)
	noCode.Markdown = prose

	withCode := noCode
	withCode.Markdown = prose + "```go\ncode\n```\n```go\nmore\n```"

	lotsOfCode := noCode
	lotsOfCode.Markdown = prose + strings.Repeat("```\nx\n```\n", 50)

	if Score(&withCode) <= Score(&noCode) {
		t.Error("code-bearing page must outrank prose-only page")
	}
	// Cap: piles of fences cannot run the bonus up indefinitely. The
	// remaining difference is the length bonus band.
	if Score(&lotsOfCode)-Score(&withCode) > lengthBonus {
		t.Errorf("code bonus not capped: %d vs %d", Score(&lotsOfCode), Score(&withCode))
	}
}

func TestScoreDepth(t *testing.T) {
	shallow := page("https://ex.com/a", "Page", "body", 1)
	mid := page("https://ex.com/a", "Page", "body", 3)
	deep := page("https://ex.com/a", "Page", "body", 6)

	if Score(&shallow) <= Score(&mid) {
		t.Error("shallow page must get a depth bonus")
	}
	if Score(&deep) >= Score(&mid) {
		t.Error("deep page must get a depth penalty")
	}
}

func TestRankDeterministicTieBreak(t *testing.T) {
	pages := []models.PageRecord{
		page("https://ex.com/b", "Same", "identical score b", 2),
		page("https://ex.com/a", "Same", "identical score a", 2),
		page("https://ex.com/c", "Same", "identical score c", 1),
	}

	ranked := Rank(pages)
	if ranked[0].URL != "https://ex.com/c" {
		t.Errorf("lower depth should win ties, got %s first", ranked[0].URL)
	}
	if ranked[1].URL != "https://ex.com/a" || ranked[2].URL != "https://ex.com/b" {
		t.Errorf("equal depth ties must order by URL: %s, %s", ranked[1].URL, ranked[2].URL)
	}

	again := Rank(pages)
	for i := range ranked {
		if ranked[i].URL != again[i].URL {
			t.Fatal("ranking is not deterministic")
		}
	}
}

func TestRankDeduplicatesByContent(t *testing.T) {
	pages := []models.PageRecord{
		page("https://ex.com/docs/intro", "Intro", "Shared   Content Here", 1),
		page("https://ex.com/docs/intro/print", "Intro (print)", "shared content\nhere", 2),
		page("https://ex.com/docs/other", "Other", "Different content", 1),
	}

	ranked := Rank(pages)
	if len(ranked) != 2 {
		t.Fatalf("got %d pages after dedup, want 2", len(ranked))
	}
	for _, p := range ranked {
		if p.URL == "https://ex.com/docs/intro/print" {
			t.Error("duplicate page survived dedup; first occurrence should win")
		}
	}
}
