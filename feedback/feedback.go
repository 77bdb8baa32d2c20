// Package feedback generates human-readable explanations, result
// summaries, and rollback plans for commands through the completion
// client. All outputs are advisory: a failure here never blocks or
// rolls back an executed command.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/llm"
	"github.com/storepilot/storepilot/model"
)

// feedbackTemperature allows a little variety in phrasing.
const feedbackTemperature = 0.4

// Explanation describes what a command will do before execution.
type Explanation struct {
	Explanation          string   `json:"explanation"`
	Impact               string   `json:"impact"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	ConfirmationMessage  string   `json:"confirmation_message,omitempty"`
	Alternatives         []string `json:"alternatives,omitempty"`
}

// Summary describes an execution outcome.
type Summary struct {
	Message              string   `json:"message"`
	NextSteps            []string `json:"next_steps,omitempty"`
	RollbackInstructions string   `json:"rollback_instructions,omitempty"`
}

// RollbackPlan describes how to undo a command.
type RollbackPlan struct {
	Steps         []string `json:"steps"`
	EstimatedTime string   `json:"estimated_time"`
	Risk          string   `json:"risk"`
}

// Generator produces feedback through the completion client.
type Generator struct {
	client llm.Completer
	logger *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// New creates a feedback generator.
func New(client llm.Completer, opts ...Option) *Generator {
	g := &Generator{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Explain describes the command's effect and impact, with alternative
// phrasings the merchant could have used.
func (g *Generator) Explain(ctx context.Context, cmd *command.Command) (*Explanation, error) {
	prompt := fmt.Sprintf(
		"Explain this Shopify store command to a merchant in plain language.\n\nCommand: %s\n\n"+
			`Respond with ONLY JSON: {"explanation": "...", "impact": "...", "requires_confirmation": bool, "confirmation_message": "...", "alternatives": ["..."]}`,
		describeCommand(cmd))

	var out Explanation
	if err := g.generate(ctx, cmd, prompt, &out); err != nil {
		return nil, err
	}
	if out.Explanation == "" {
		return nil, &GenerationError{Operation: "explain", Reason: "empty explanation"}
	}
	return &out, nil
}

// SummarizeResult turns an execution outcome into a merchant-facing
// message with optional next steps.
func (g *Generator) SummarizeResult(ctx context.Context, cmd *command.Command, success bool, details map[string]any) (*Summary, error) {
	outcome := "succeeded"
	if !success {
		outcome = "failed"
	}
	detailJSON, _ := json.Marshal(details)

	prompt := fmt.Sprintf(
		"A Shopify store command %s.\n\nCommand: %s\nDetails: %s\n\n"+
			"Summarize the outcome for the merchant. "+
			`Respond with ONLY JSON: {"message": "...", "next_steps": ["..."], "rollback_instructions": "..."}`,
		outcome, describeCommand(cmd), detailJSON)

	var out Summary
	if err := g.generate(ctx, cmd, prompt, &out); err != nil {
		return nil, err
	}
	if out.Message == "" {
		return nil, &GenerationError{Operation: "summarize", Reason: "empty message"}
	}
	return &out, nil
}

// PlanRollback describes how to undo the command's effect.
func (g *Generator) PlanRollback(ctx context.Context, cmd *command.Command) (*RollbackPlan, error) {
	prompt := fmt.Sprintf(
		"Describe how to undo this Shopify store command.\n\nCommand: %s\n\n"+
			`Respond with ONLY JSON: {"steps": ["..."], "estimated_time": "...", "risk": "low|medium|high"}`,
		describeCommand(cmd))

	var out RollbackPlan
	if err := g.generate(ctx, cmd, prompt, &out); err != nil {
		return nil, err
	}
	if len(out.Steps) == 0 {
		return nil, &GenerationError{Operation: "rollback", Reason: "no steps returned"}
	}
	return &out, nil
}

// Alternatives suggests other commands that achieve a similar goal.
func (g *Generator) Alternatives(ctx context.Context, cmd *command.Command) ([]string, error) {
	prompt := fmt.Sprintf(
		"Suggest up to three alternative Shopify store commands a merchant might want instead of this one.\n\nCommand: %s\n\n"+
			`Respond with ONLY a JSON array of strings.`,
		describeCommand(cmd))

	resp, err := g.complete(ctx, cmd, prompt)
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSONArray(resp.Content)
	if raw == "" {
		return nil, &GenerationError{Operation: "alternatives", Reason: "model output is not a JSON array"}
	}
	var alternatives []string
	if err := json.Unmarshal([]byte(raw), &alternatives); err != nil {
		return nil, &GenerationError{Operation: "alternatives", Reason: err.Error()}
	}
	return alternatives, nil
}

// generate runs one completion and decodes its JSON object into out.
func (g *Generator) generate(ctx context.Context, cmd *command.Command, prompt string, out any) error {
	resp, err := g.complete(ctx, cmd, prompt)
	if err != nil {
		return err
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		g.logger.Warn("Feedback output contained no JSON", "type", cmd.Type, "action", cmd.Action)
		return &GenerationError{Operation: "feedback", Reason: "model output is not JSON"}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &GenerationError{Operation: "feedback", Reason: err.Error()}
	}
	return nil
}

func (g *Generator) complete(ctx context.Context, cmd *command.Command, prompt string) (*llm.Response, error) {
	tier := model.Tier(cmd.Tier)
	if !tier.IsValid() {
		tier = model.TierLaunch
	}

	temp := feedbackTemperature
	resp, err := g.client.Complete(ctx, llm.Request{
		Tier:        tier,
		Temperature: &temp,
		Messages: []llm.Message{
			{Role: "system", Content: "You are a helpful Shopify store assistant. Always respond with the exact JSON shape requested, nothing else."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, &GenerationError{Operation: "feedback", Reason: err.Error()}
	}
	return resp, nil
}

func describeCommand(cmd *command.Command) string {
	params, _ := json.Marshal(cmd.Parameters)
	return fmt.Sprintf("%s.%s %s", cmd.Type, cmd.Action, params)
}
