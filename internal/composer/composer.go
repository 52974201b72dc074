package composer

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jmylchreest/llmtxt-api/internal/models"
)

// TruncationSentinel marks where content was cut to fit the budget.
const TruncationSentinel = "[... content truncated due to size limits ...]"

// sentinelReserve is headroom kept when cutting a section at a line
// boundary so the sentinel itself fits.
const sentinelReserve = 100

// minTruncatedBytes is the smallest truncated section worth keeping. A
// sliver under this is dropped instead.
const minTruncatedBytes = 1000

// Options controls digest assembly.
type Options struct {
	Title       string // falls back to a title inferred from the seed URL
	SourceURL   string
	MaxBytes    int  // hard budget for the assembled document
	FullVersion bool // include per-page URL/depth metadata and looser ranking
}

// Composer assembles ranked pages into a single Markdown digest.
type Composer struct{}

// New creates a composer.
func New() *Composer {
	return &Composer{}
}

// Compose ranks the crawled pages and assembles the digest, keeping the
// result within opts.MaxBytes. Pages that do not fit are omitted; the
// page that straddles the boundary is truncated at a line break when
// enough of it survives to be useful.
func (c *Composer) Compose(pages []models.PageRecord, opts Options) string {
	ranked := Rank(pages)

	title := opts.Title
	if title == "" {
		title = inferTitle(opts.SourceURL, ranked)
	}

	totalSize := 0
	for _, p := range ranked {
		totalSize += len(pageBody(&p))
	}

	var b strings.Builder
	b.WriteString(header(title, opts, len(ranked), totalSize))

	for i := range ranked {
		section := renderSection(&ranked[i], opts.FullVersion)
		if opts.MaxBytes <= 0 || b.Len()+len(section) <= opts.MaxBytes {
			b.WriteString(section)
			continue
		}

		remaining := opts.MaxBytes - b.Len() - sentinelReserve
		if remaining < minTruncatedBytes {
			break
		}
		b.WriteString(truncateSection(section, remaining))
		break
	}

	return collapseBlankRuns(strings.TrimRight(b.String(), "\n")) + "\n"
}

// Validate checks a finished digest for structural problems. It returns
// ok plus a list of human-readable issues.
func (c *Composer) Validate(digest string, maxBytes int) (bool, []string) {
	var issues []string
	if strings.TrimSpace(digest) == "" {
		issues = append(issues, "digest is empty")
	}
	if strings.Count(digest, "```")%2 != 0 {
		issues = append(issues, "unbalanced code fences")
	}
	if maxBytes > 0 && len(digest) > 2*maxBytes {
		issues = append(issues, fmt.Sprintf("digest is %d bytes, more than twice the %d byte budget", len(digest), maxBytes))
	}
	return len(issues) == 0, issues
}

func header(title string, opts Options, pageCount, totalSize int) string {
	suffix := ""
	if opts.FullVersion {
		suffix = " (Full Version)"
	}
	return fmt.Sprintf(`# %s%s

This is an AI-generated summary of the documentation.

**Source**: %s
**Generated**: %d pages crawled
**Total Size**: %.1fKB

---

`, title, suffix, opts.SourceURL, pageCount, float64(totalSize)/1024)
}

func renderSection(p *models.PageRecord, fullVersion bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", p.Title)
	if fullVersion {
		fmt.Fprintf(&b, "**URL**: %s\n**Depth**: %d\n\n", p.URL, p.Depth)
	}
	b.WriteString(NormalizeContent(pageBody(p)))
	b.WriteString("\n\n")
	return b.String()
}

func pageBody(p *models.PageRecord) string {
	if p.Markdown != "" {
		return p.Markdown
	}
	return p.Content
}

// truncateSection cuts a section to fit maxBytes, breaking at the last
// full line and closing any code fence left open by the cut.
func truncateSection(section string, maxBytes int) string {
	if len(section) <= maxBytes {
		return section
	}

	cut := strings.LastIndexByte(section[:maxBytes], '\n')
	if cut <= 0 {
		cut = maxBytes
	}
	kept := section[:cut]

	if strings.Count(kept, "```")%2 != 0 {
		kept += "\n```"
	}
	return kept + "\n\n" + TruncationSentinel + "\n"
}

// inferTitle derives a document title when the caller supplies none:
// the best page's own title, else the seed host.
func inferTitle(sourceURL string, ranked []models.PageRecord) string {
	if len(ranked) > 0 && ranked[0].Title != "" && ranked[0].Title != ranked[0].URL {
		return ranked[0].Title
	}
	if u, err := url.Parse(sourceURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "Documentation"
}

// Boilerplate line patterns stripped during normalization.
var (
	boilerplateRe = regexp.MustCompile(`(?i)^(built with\b.*|get started)$`)
	arrowOnlyRe   = regexp.MustCompile(`^[\s>→\-]+$`)
	gutterRe      = regexp.MustCompile(`^\s*\d+\s*\|`)
	headerRe      = regexp.MustCompile(`^(#+)\s+(.*)$`)
)

// NormalizeContent cleans one page's Markdown: boilerplate lines out,
// line-number gutters stripped and re-fenced, header levels clamped to
// H1..H6 with no level skipped, blank runs collapsed.
func NormalizeContent(md string) string {
	lines := strings.Split(md, "\n")
	out := make([]string, 0, len(lines))

	inFence := false
	gutterRun := 0
	prevHeaderLevel := 0

	flushGutter := func() {
		if gutterRun > 0 {
			out = append(out, "```")
			gutterRun = 0
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			flushGutter()
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}

		// Code blocks pasted with "12 | code" gutters become real
		// fenced blocks with the gutters removed.
		if gutterRe.MatchString(line) {
			if gutterRun == 0 {
				out = append(out, "```")
			}
			gutterRun++
			out = append(out, gutterRe.ReplaceAllString(line, ""))
			continue
		}
		flushGutter()

		if trimmed == "" {
			out = append(out, "")
			continue
		}
		if boilerplateRe.MatchString(trimmed) || arrowOnlyRe.MatchString(trimmed) {
			continue
		}
		if isDegenerateTableRow(trimmed) {
			continue
		}

		if m := headerRe.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			if level > 6 {
				level = 6
			}
			// A jump from ## straight to ##### flattens to ###.
			if prevHeaderLevel > 0 && level > prevHeaderLevel+1 {
				level = prevHeaderLevel + 1
			}
			prevHeaderLevel = level
			out = append(out, strings.Repeat("#", level)+" "+m[2])
			continue
		}

		out = append(out, line)
	}
	flushGutter()

	return collapseBlankRuns(strings.TrimSpace(strings.Join(out, "\n")))
}

// isDegenerateTableRow matches table rows whose cells are all empty or
// single characters, a common artifact of icon grids.
func isDegenerateTableRow(line string) bool {
	if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") {
		return false
	}
	cells := strings.Split(strings.Trim(line, "|"), "|")
	for _, cell := range cells {
		if len(strings.TrimSpace(cell)) > 1 {
			return false
		}
	}
	return true
}

func collapseBlankRuns(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
