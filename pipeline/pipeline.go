// Package pipeline is the entry point of the command system. It wires
// the tier gate, parser, policy engine, rate limiter, execution router,
// and feedback generator into the two calls the web layer makes:
// ProcessCommand (text to validated command) and Execute (command to
// result). Services are explicit structs constructed once at process
// start; nothing here is a global.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storepilot/storepilot/cache"
	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/feedback"
	"github.com/storepilot/storepilot/history"
	"github.com/storepilot/storepilot/metrics"
	"github.com/storepilot/storepilot/model"
	"github.com/storepilot/storepilot/parser"
	"github.com/storepilot/storepilot/policy"
	"github.com/storepilot/storepilot/ratelimit"
	"github.com/storepilot/storepilot/router"
)

// maxBatchConcurrency caps concurrent processing for batch input.
const maxBatchConcurrency = 4

// Deps are the collaborators a Pipeline is built from. Parser, Policy,
// Limiter, and Router are required; the rest are optional and skipped
// when nil.
type Deps struct {
	Parser  *parser.Parser
	Policy  *policy.Engine
	Limiter *ratelimit.Limiter
	Router  *router.Router

	History    *history.Tracker
	Feedback   *feedback.Generator
	Cache      *cache.Cache
	Tracker    *metrics.ExecutionTracker
	Collectors *metrics.Collectors
	Logger     *slog.Logger
}

// Pipeline coordinates one tenant request end to end.
type Pipeline struct {
	parser     *parser.Parser
	policy     *policy.Engine
	limiter    *ratelimit.Limiter
	router     *router.Router
	history    *history.Tracker
	feedback   *feedback.Generator
	cache      *cache.Cache
	tracker    *metrics.ExecutionTracker
	collectors *metrics.Collectors
	logger     *slog.Logger
}

// New creates a pipeline from its collaborators.
func New(deps Deps) (*Pipeline, error) {
	if deps.Parser == nil || deps.Policy == nil || deps.Limiter == nil || deps.Router == nil {
		return nil, fmt.Errorf("pipeline requires parser, policy, limiter, and router")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		parser:     deps.Parser,
		policy:     deps.Policy,
		limiter:    deps.Limiter,
		router:     deps.Router,
		history:    deps.History,
		feedback:   deps.Feedback,
		cache:      deps.Cache,
		tracker:    deps.Tracker,
		collectors: deps.Collectors,
		logger:     logger,
	}, nil
}

// Outcome pairs a parsed command with its validation state.
type Outcome struct {
	Command    *command.Command   `json:"command"`
	Validation command.Validation `json:"validation"`
}

// ProcessCommand turns one raw instruction into a validated command.
// The tier gate runs on the raw text before any model call, so gated
// requests cost nothing. Confirmation requirements from the policy
// engine land in the returned validation.
func (p *Pipeline) ProcessCommand(ctx context.Context, rawText string, tier int, tenantID string) (*Outcome, error) {
	if tenantID == "" {
		return nil, &Error{Kind: KindUnauthorized, Message: "tenant is required"}
	}
	parsedTier, err := model.ParseTier(tier)
	if err != nil {
		return nil, &Error{Kind: KindValidationFailed, Message: err.Error()}
	}

	if minTier := p.policy.RequiredTier(rawText); tier < minTier {
		p.logger.Info("Command gated by tier",
			"tenant", tenantID, "tier", tier, "min_tier", minTier)
		return nil, upgradeRequired(minTier)
	}

	cmd, err := p.parser.Parse(ctx, rawText, parsedTier)
	if err != nil {
		if parser.IsParseError(err) {
			return nil, &Error{Kind: KindParseError, Message: err.Error(), cause: err}
		}
		return nil, &Error{Kind: KindParseError, Message: fmt.Sprintf("could not parse instruction: %v", err), cause: err}
	}

	validation := command.Validation{Valid: true}
	var recent []history.Entry
	if p.history != nil {
		recent = p.history.Recent(ctx, tenantID)
	}
	if assessment := p.policy.AssessRisk(cmd, recent); assessment.RequiresConfirmation {
		validation.RequiresConfirmation = true
		validation.Message = assessment.Message
	}

	return &Outcome{Command: cmd, Validation: validation}, nil
}

// BatchOutcome is the per-text result of a batch process.
type BatchOutcome struct {
	Text    string   `json:"text"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Err     error    `json:"-"`
}

// ProcessBatch processes each instruction independently and
// concurrently. One failure does not abort the batch. Result order
// matches input order.
func (p *Pipeline) ProcessBatch(ctx context.Context, texts []string, tier int, tenantID string) []BatchOutcome {
	outcomes := make([]BatchOutcome, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBatchConcurrency)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			outcome, err := p.ProcessCommand(ctx, text, tier, tenantID)
			outcomes[i] = BatchOutcome{Text: text, Outcome: outcome, Err: err}
			return nil
		})
	}

	g.Wait()
	return outcomes
}

// Execute runs a validated command for a tenant: rate-limit admission,
// routed execution with retry, then history and metrics bookkeeping.
func (p *Pipeline) Execute(ctx context.Context, cmd *command.Command, tenantID string) (*command.Result, error) {
	if tenantID == "" {
		return nil, &Error{Kind: KindUnauthorized, Message: "tenant is required"}
	}

	decision := p.limiter.Check(ctx, cmd.Type, tenantID)
	if !decision.Allowed {
		if p.collectors != nil {
			p.collectors.RateLimitRejections.WithLabelValues(cmd.Type.String()).Inc()
		}
		return nil, rateLimited(decision.ResetTime)
	}

	start := time.Now()
	result := p.router.ExecuteCommand(ctx, cmd)
	duration := time.Since(start)

	p.observe(ctx, cmd, tenantID, result, duration)

	if !result.Success {
		return result, p.classifyFailure(result)
	}

	if p.history != nil {
		p.history.Record(ctx, tenantID, cmd)
	}
	return result, nil
}

// observe records metrics for one execution.
func (p *Pipeline) observe(ctx context.Context, cmd *command.Command, tenantID string, result *command.Result, duration time.Duration) {
	if p.collectors != nil {
		outcome := "success"
		if !result.Success {
			outcome = "failure"
		}
		p.collectors.CommandsProcessed.WithLabelValues(cmd.Type.String(), outcome).Inc()
		p.collectors.ExecutionAttempts.WithLabelValues(cmd.Type.String()).Add(float64(result.APICalls))
		p.collectors.ExecutionDuration.WithLabelValues(cmd.Type.String()).Observe(duration.Seconds())
	}
	if p.tracker != nil {
		p.tracker.Track(ctx, tenantID, cmd.Type, duration, result.Success)
	}
}

// classifyFailure maps a failed result to the error taxonomy.
func (p *Pipeline) classifyFailure(result *command.Result) error {
	msg := strings.ToLower(result.Error)
	switch {
	case strings.Contains(msg, "rate limit"):
		return &Error{Kind: KindRateLimited, Message: result.Error}
	case strings.Contains(msg, "validation") || strings.Contains(msg, "invalid command"):
		return &Error{Kind: KindValidationFailed, Message: result.Error}
	default:
		return executionFailed(result.APICalls, errors.New(result.Error))
	}
}

// Explain produces a pre-execution explanation for a command,
// consulting the cache first. Unusable model output surfaces as a
// FeedbackGenerationError kind.
func (p *Pipeline) Explain(ctx context.Context, cmd *command.Command) (*feedback.Explanation, error) {
	if p.feedback == nil {
		return nil, &Error{Kind: KindFeedbackGeneration, Message: "feedback generator not configured"}
	}

	cacheKey := explainCacheKey(cmd)
	if p.cache != nil {
		var cached feedback.Explanation
		if p.cache.Get(ctx, cacheKey, cmd.Type, &cached) {
			if p.collectors != nil {
				p.collectors.CacheHits.WithLabelValues(cmd.Type.String()).Inc()
			}
			return &cached, nil
		}
		if p.collectors != nil {
			p.collectors.CacheMisses.WithLabelValues(cmd.Type.String()).Inc()
		}
	}

	explanation, err := p.feedback.Explain(ctx, cmd)
	if err != nil {
		return nil, &Error{Kind: KindFeedbackGeneration, Message: err.Error(), cause: err}
	}

	if p.cache != nil {
		p.cache.Set(ctx, cacheKey, cmd.Type, explanation)
	}
	return explanation, nil
}

// SummarizeResult produces a post-execution summary. Failures here
// never affect the already-completed execution.
func (p *Pipeline) SummarizeResult(ctx context.Context, cmd *command.Command, result *command.Result) (*feedback.Summary, error) {
	if p.feedback == nil {
		return nil, &Error{Kind: KindFeedbackGeneration, Message: "feedback generator not configured"}
	}
	summary, err := p.feedback.SummarizeResult(ctx, cmd, result.Success, result.Details)
	if err != nil {
		return nil, &Error{Kind: KindFeedbackGeneration, Message: err.Error(), cause: err}
	}
	return summary, nil
}

// PlanRollback produces an undo plan for a command.
func (p *Pipeline) PlanRollback(ctx context.Context, cmd *command.Command) (*feedback.RollbackPlan, error) {
	if p.feedback == nil {
		return nil, &Error{Kind: KindFeedbackGeneration, Message: "feedback generator not configured"}
	}
	plan, err := p.feedback.PlanRollback(ctx, cmd)
	if err != nil {
		return nil, &Error{Kind: KindFeedbackGeneration, Message: err.Error(), cause: err}
	}
	return plan, nil
}

// explainCacheKey keys explanations by the full command shape, so
// commands differing only in parameters don't share entries.
func explainCacheKey(cmd *command.Command) string {
	h := fnv.New64a()
	params, _ := json.Marshal(cmd.Parameters)
	h.Write(params)
	return fmt.Sprintf("explain:%s.%s:%x", cmd.Type, cmd.Action, h.Sum64())
}
