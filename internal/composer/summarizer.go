package composer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// summarizeInputCap bounds how much of an oversized digest is sent to
// the model. Anything beyond it is already low-ranked content.
const summarizeInputCap = 50_000

const summarizePromptTemplate = `You are condensing technical documentation into an llm.txt digest.
Rewrite the following documentation so it fits in roughly %dKB while keeping:
- installation and setup instructions verbatim
- API signatures, parameters and return values
- code examples (trim repetitive ones, keep one representative per concept)
Drop marketing copy, changelogs and navigation text. Output Markdown only.

Documentation:
%s`

// Summarizer compresses digests that exceed the byte budget using an
// LLM. When the call fails the caller falls back to plain truncation.
type Summarizer struct {
	client anthropic.Client
	model  string
	logger *slog.Logger
}

// NewSummarizer creates a summarizer. model is an Anthropic model id.
func NewSummarizer(apiKey, model string, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: logger.With("component", "summarizer"),
	}
}

// Summarize rewrites the digest to fit roughly within maxBytes. The
// input is capped at summarizeInputCap characters first.
func (s *Summarizer) Summarize(ctx context.Context, digest string, maxBytes int) (string, error) {
	input := digest
	if len(input) > summarizeInputCap {
		input = input[:summarizeInputCap]
	}

	prompt := fmt.Sprintf(summarizePromptTemplate, maxBytes/1024, input)

	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(s.model),
		MaxTokens:   8192,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarization request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("summarization returned no text")
	}

	s.logger.Info("digest summarized",
		"model", s.model, "input_bytes", len(input), "output_bytes", len(out))
	return out, nil
}
