// Package parser turns free-text merchant instructions into typed
// commands via a language model. Model selection is tier-based through
// the llm client; output is held to a strict JSON shape and the full
// per-field schema. Parse failures are terminal at this layer: retries
// belong to the execution router, since re-prompting a model on
// ambiguous input is not guaranteed to converge.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/llm"
	"github.com/storepilot/storepilot/model"
)

// parseTemperature keeps model output near-deterministic.
const parseTemperature = 0.1

// maxBatchConcurrency caps concurrent model calls for a batch parse.
const maxBatchConcurrency = 4

// Parser converts natural-language text into commands.
type Parser struct {
	client llm.Completer
	logger *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// New creates a parser backed by the given completion client.
func New(client llm.Completer, opts ...Option) *Parser {
	p := &Parser{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// commandShape is the JSON shape the model is instructed to produce.
type commandShape struct {
	Type       string         `json:"type"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

// Parse converts one instruction into a validated Command. Input text
// is sanitized before it reaches the model, and every string leaf of
// the decoded parameters is sanitized again afterwards so injection
// cannot round-trip through the model.
func (p *Parser) Parse(ctx context.Context, text string, tier model.Tier) (*command.Command, error) {
	clean := strings.TrimSpace(command.SanitizeText(text))
	if clean == "" {
		return nil, &ParseError{Reason: "empty instruction"}
	}

	temp := parseTemperature
	resp, err := p.client.Complete(ctx, llm.Request{
		Tier:        tier,
		Temperature: &temp,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt()},
			{Role: "user", Content: clean},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		p.logger.Warn("Model output contained no JSON", "model", resp.Model)
		return nil, &ParseError{Reason: "model output is not JSON", RawOutput: resp.Content}
	}

	var shape commandShape
	if err := json.Unmarshal([]byte(raw), &shape); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("malformed JSON: %v", err), RawOutput: resp.Content}
	}

	cmd := &command.Command{
		Type:       command.ParseType(shape.Type),
		Action:     shape.Action,
		Parameters: shape.Parameters,
		Tier:       int(tier),
	}
	cmd = command.Sanitize(cmd)

	if err := command.ValidateStrict(cmd); err != nil {
		return nil, &ParseError{Reason: err.Error(), RawOutput: resp.Content}
	}

	p.logger.Debug("Parsed command",
		"type", cmd.Type,
		"action", cmd.Action,
		"model", resp.Model)

	return cmd, nil
}

// BatchItem is the per-text outcome of a batch parse.
type BatchItem struct {
	Text    string
	Command *command.Command
	Err     error
}

// ParseBatch parses each text independently and concurrently, joining
// all results before returning. One failure does not abort the batch;
// it lands in that item's Err. Result order matches input order.
func (p *Parser) ParseBatch(ctx context.Context, texts []string, tier model.Tier) []BatchItem {
	items := make([]BatchItem, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBatchConcurrency)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			cmd, err := p.Parse(ctx, text, tier)
			items[i] = BatchItem{Text: text, Command: cmd, Err: err}
			return nil // per-item errors stay in the item
		})
	}

	g.Wait()
	return items
}

// systemPrompt describes the command schema to the model.
func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a Shopify store management assistant. Convert the user's instruction into a single JSON command.\n\n")
	b.WriteString("Respond with ONLY a JSON object of this shape:\n")
	b.WriteString(`{"type": "<type>", "action": "<action>", "parameters": {...}}`)
	b.WriteString("\n\nValid types and actions:\n")

	for _, t := range command.Types() {
		b.WriteString("- ")
		b.WriteString(t.String())
		b.WriteString(": ")
		b.WriteString(strings.Join(command.Actions(t), ", "))
		b.WriteString("\n")
	}

	b.WriteString("\nInclude every parameter the instruction specifies. ")
	b.WriteString("Use exact parameter names: productId, orderId, customerId, themeId. ")
	b.WriteString("Do not invent values the user did not provide. ")
	b.WriteString("Do not wrap the JSON in markdown or add commentary.")
	return b.String()
}
