// Package composer ranks crawled pages and assembles them into llm.txt
// digests under a byte budget.
package composer

import (
	"regexp"
	"sort"
	"strings"

	"lukechampine.com/blake3"

	"github.com/jmylchreest/llmtxt-api/internal/models"
)

// Keyword tiers for scoring a page by its title and URL. Setup content
// outranks API reference, which outranks worked examples.
var (
	setupKeywords = []string{
		"install", "setup", "quickstart", "getting-started",
		"requirements", "dependencies",
	}
	referenceKeywords = []string{
		"api", "reference", "methods", "endpoints", "parameters",
	}
	exampleKeywords = []string{
		"example", "tutorial", "guide", "how-to", "usage", "cookbook",
	}
	configKeywords = []string{
		"configuration", "settings", "options",
	}
	lowValueKeywords = []string{
		"changelog", "release", "announcement", "blog", "news",
		"about", "careers", "team", "press", "legal", "privacy",
		"terms", "cookie", "pricing", "plans", "enterprise",
		"contact", "support",
	}
)

// datedURLRe flags URLs carrying a date, a strong changelog/news signal.
var datedURLRe = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}`)

// codeMarkers indicate code-bearing content worth keeping.
var codeMarkers = []string{"```", "<code>", "import ", "from ", "def ", "class "}

const (
	setupWeight     = 12
	referenceWeight = 8
	exampleWeight   = 6
	configWeight    = 4
	lowValuePenalty = 10
	datedURLPenalty = 6
	codeBonusCap    = 10

	shallowDepth = 2
	deepDepth    = 4
	depthBonus   = 5

	minUsefulBytes = 256
	optimalMin     = 1 << 10  // 1 KiB
	optimalMax     = 30 << 10 // 30 KiB
	lengthBonus    = 5
)

// Score computes a page's priority for inclusion in the digest.
func Score(p *models.PageRecord) int {
	haystack := strings.ToLower(p.Title + " " + p.URL)
	score := 0

	score += countMatches(haystack, setupKeywords) * setupWeight
	score += countMatches(haystack, referenceKeywords) * referenceWeight
	score += countMatches(haystack, exampleKeywords) * exampleWeight
	score += countMatches(haystack, configKeywords) * configWeight
	score -= countMatches(haystack, lowValueKeywords) * lowValuePenalty

	if datedURLRe.MatchString(p.URL) {
		score -= datedURLPenalty
	}

	body := p.Markdown
	if body == "" {
		body = p.Content
	}
	codeHits := 0
	for _, marker := range codeMarkers {
		codeHits += strings.Count(body, marker)
	}
	if bonus := codeHits * 2; bonus > codeBonusCap {
		score += codeBonusCap
	} else {
		score += bonus
	}

	if p.Depth <= shallowDepth {
		score += depthBonus
	} else if p.Depth > deepDepth {
		score -= depthBonus
	}

	switch size := len(body); {
	case size < minUsefulBytes:
		score -= lengthBonus
	case size >= optimalMin && size <= optimalMax:
		score += lengthBonus
	}

	return score
}

// Rank deduplicates pages by content and orders them best-first. Order
// is deterministic: score descending, then depth ascending, then URL.
func Rank(pages []models.PageRecord) []models.PageRecord {
	deduped := dedupe(pages)

	sort.SliceStable(deduped, func(i, j int) bool {
		si, sj := Score(&deduped[i]), Score(&deduped[j])
		if si != sj {
			return si > sj
		}
		if deduped[i].Depth != deduped[j].Depth {
			return deduped[i].Depth < deduped[j].Depth
		}
		return deduped[i].URL < deduped[j].URL
	})
	return deduped
}

// dedupe drops pages whose normalized text matches an earlier page.
// Mirror URLs and print views collapse to one entry; the first
// occurrence in crawl order survives.
func dedupe(pages []models.PageRecord) []models.PageRecord {
	seen := make(map[[32]byte]bool, len(pages))
	out := make([]models.PageRecord, 0, len(pages))
	for _, p := range pages {
		sum := blake3.Sum256([]byte(normalizeForHash(p.Content)))
		if seen[sum] {
			continue
		}
		seen[sum] = true
		out = append(out, p)
	}
	return out
}

var hashSpaceRe = regexp.MustCompile(`\s+`)

func normalizeForHash(s string) string {
	return hashSpaceRe.ReplaceAllString(strings.ToLower(s), " ")
}

func countMatches(haystack string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			n++
		}
	}
	return n
}
