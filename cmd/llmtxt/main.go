// Package main is the llmtxt command line tool: crawl a documentation
// site and write an llm.txt digest locally, no server required.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/llmtxt-api/internal/composer"
	"github.com/jmylchreest/llmtxt-api/internal/crawler"
	"github.com/jmylchreest/llmtxt-api/internal/logging"
	"github.com/jmylchreest/llmtxt-api/internal/models"
	"github.com/jmylchreest/llmtxt-api/internal/version"
)

type generateFlags struct {
	url      string
	output   string
	full     bool
	maxPages int
	maxDepth int
	maxKB    int
	noRobots bool
	delay    time.Duration
	language string
	verbose  bool
}

func main() {
	root := &cobra.Command{
		Use:           "llmtxt",
		Short:         "Generate llm.txt digests of documentation sites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newGenerateCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newGenerateCmd() *cobra.Command {
	flags := generateFlags{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Crawl a site and write llm.txt",
		Long: `Crawl a documentation site, rank the pages, and compose them
into a single size-bounded llm.txt file. With --full an unabridged
llms-full.txt is written alongside it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.url, "url", "", "seed URL of the documentation site (required)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "llm.txt", "output file path")
	cmd.Flags().BoolVar(&flags.full, "full", false, "also write an unabridged llms-full.txt")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 100, "maximum pages to crawl")
	cmd.Flags().IntVar(&flags.maxDepth, "max-depth", 3, "maximum crawl depth from the seed")
	cmd.Flags().IntVar(&flags.maxKB, "max-kb", 500, "size budget for llm.txt in KB")
	cmd.Flags().BoolVar(&flags.noRobots, "no-robots", false, "ignore robots.txt rules")
	cmd.Flags().DurationVar(&flags.delay, "delay", 1*time.Second, "delay between requests to the same host")
	cmd.Flags().StringVar(&flags.language, "language", "en", "keep only pages in this language (empty disables the filter)")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "log crawl progress")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func runGenerate(ctx context.Context, flags generateFlags) error {
	logger := logging.SetDefault()
	if !flags.verbose {
		logger = logging.Discard()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	opts := models.DefaultCrawlConfig()
	opts.MaxPages = flags.maxPages
	opts.MaxDepth = flags.maxDepth
	opts.MaxKB = flags.maxKB
	opts.RequestDelay = flags.delay
	opts.RespectRobots = !flags.noRobots
	opts.Language = flags.language

	engine := crawler.NewEngine(opts, logger)

	fmt.Fprintf(os.Stderr, "Crawling %s (max %d pages, depth %d)...\n", flags.url, flags.maxPages, flags.maxDepth)

	result, err := engine.Crawl(ctx, flags.url, func(p crawler.Progress) {
		fmt.Fprintf(os.Stderr, "\r  %d/%d pages", p.PagesProcessed, p.PagesDiscovered)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil && (result == nil || len(result.Pages) == 0) {
		return fmt.Errorf("crawl failed: %w", err)
	}
	if len(result.Pages) == 0 {
		return fmt.Errorf("no pages could be crawled from %s", flags.url)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Crawl interrupted, composing %d pages collected so far\n", len(result.Pages))
	}

	comp := composer.New()
	digest := comp.Compose(result.Pages, composer.Options{
		SourceURL: flags.url,
		MaxBytes:  flags.maxKB * 1024,
	})

	if ok, issues := comp.Validate(digest, flags.maxKB*1024); !ok {
		for _, issue := range issues {
			fmt.Fprintln(os.Stderr, "Warning:", issue)
		}
	}

	if err := os.WriteFile(flags.output, []byte(digest), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", flags.output, err)
	}
	fmt.Fprintf(os.Stderr, "Crawled %d pages in %s (%.0f%% success, %d failed, %d blocked)\n",
		len(result.Pages), result.Duration.Round(time.Millisecond), result.SuccessRate()*100,
		len(result.FailedURLs), len(result.BlockedURLs))
	fmt.Fprintf(os.Stderr, "Wrote %s (%.1fKB)\n", flags.output, float64(len(digest))/1024)

	if flags.full {
		fullPath := flags.output + ".full.txt"
		// Unabridged: no byte budget on the full version.
		fullDigest := comp.Compose(result.Pages, composer.Options{
			SourceURL:   flags.url,
			FullVersion: true,
		})
		if err := os.WriteFile(fullPath, []byte(fullDigest), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", fullPath, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s (%.1fKB)\n", fullPath, float64(len(fullDigest))/1024)
	}

	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			v := version.Get()
			fmt.Printf("llmtxt %s\n", v.String())
			fmt.Printf("  go:       %s\n", v.GoVersion)
			fmt.Printf("  platform: %s\n", v.Platform)
		},
	}
}
