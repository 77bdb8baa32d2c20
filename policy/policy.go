// Package policy implements the safety engine: ordered risk rules that
// decide whether a command needs human confirmation, and the tier gate
// applied to raw prompt text before any model call.
package policy

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/history"
)

// Confirmation messages, one per rule.
const (
	MsgDestructive = "This operation may be destructive. Please confirm."
	MsgBulk        = "This operation will affect multiple items. Please confirm."
	MsgDuplicate   = "Similar operation was performed recently. Please confirm."
	MsgCritical    = "This is a critical operation. Please confirm."
)

// DuplicateWindow is how far back the repeated-operation rule looks.
const DuplicateWindow = 5 * time.Minute

// Assessment is the outcome of risk evaluation for one command.
type Assessment struct {
	RequiresConfirmation bool   `json:"requires_confirmation"`
	Message              string `json:"message,omitempty"`
}

// Engine evaluates risk rules and tier gating. Keyword lists are
// product configuration, not invariants; the zero-config Engine uses
// the stock lists.
type Engine struct {
	destructiveVerbs []string
	bulkTerms        []string
	critical         map[string]struct{}
	tier2Phrases     []string
	tier3Phrases     []string
	duplicateWindow  time.Duration
	logger           *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithDestructiveVerbs replaces the destructive verb list.
func WithDestructiveVerbs(verbs []string) Option {
	return func(e *Engine) {
		e.destructiveVerbs = lower(verbs)
	}
}

// WithBulkTerms replaces the bulk-scope term list.
func WithBulkTerms(terms []string) Option {
	return func(e *Engine) {
		e.bulkTerms = lower(terms)
	}
}

// WithCriticalActions replaces the always-confirm action table. Keys
// are "type.action" pairs.
func WithCriticalActions(actions []string) Option {
	return func(e *Engine) {
		e.critical = make(map[string]struct{}, len(actions))
		for _, a := range actions {
			e.critical[strings.ToLower(a)] = struct{}{}
		}
	}
}

// WithTierPhrases replaces the tier trigger phrase lists.
func WithTierPhrases(tier2, tier3 []string) Option {
	return func(e *Engine) {
		e.tier2Phrases = lower(tier2)
		e.tier3Phrases = lower(tier3)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates a policy engine with the stock keyword lists, overridden
// by any options.
func New(opts ...Option) *Engine {
	e := &Engine{
		destructiveVerbs: []string{"delete", "remove", "clear", "drop"},
		bulkTerms:        []string{"all", "every", "each", "entire"},
		critical: map[string]struct{}{
			"product.delete":      {},
			"product.bulk_update": {},
			"order.cancel":        {},
			"customer.delete":     {},
			"theme.publish":       {},
			"store.build":         {},
		},
		tier2Phrases: []string{
			"build me a store",
			"create a store",
			"setup a store",
			"custom theme",
			"theme customization",
			"advanced automation",
		},
		tier3Phrases: []string{
			"custom integration",
			"integrate with",
			"connect to external",
			"api integration",
			"webhook setup",
		},
		duplicateWindow: DuplicateWindow,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AssessRisk evaluates the confirmation rules in order; the first
// matching rule wins and supplies the message.
//
//  1. Destructive verb in the action name.
//  2. Bulk-scope term anywhere in the serialized parameters.
//  3. Same (type, action) executed for this tenant within the window.
//  4. Action listed in the critical-action table.
func (e *Engine) AssessRisk(cmd *command.Command, tenantHistory []history.Entry) Assessment {
	action := strings.ToLower(cmd.Action)
	for _, verb := range e.destructiveVerbs {
		if strings.Contains(action, verb) {
			return Assessment{RequiresConfirmation: true, Message: MsgDestructive}
		}
	}

	serialized := strings.ToLower(serializeParams(cmd.Parameters))
	for _, term := range e.bulkTerms {
		if containsWord(serialized, term) {
			return Assessment{RequiresConfirmation: true, Message: MsgBulk}
		}
	}

	cutoff := time.Now().Add(-e.duplicateWindow)
	for _, entry := range tenantHistory {
		if entry.Type == cmd.Type && entry.Action == cmd.Action && entry.At.After(cutoff) {
			return Assessment{RequiresConfirmation: true, Message: MsgDuplicate}
		}
	}

	key := cmd.Type.String() + "." + action
	if _, ok := e.critical[key]; ok {
		return Assessment{RequiresConfirmation: true, Message: MsgCritical}
	}

	return Assessment{}
}

// RequiredTier returns the minimum subscription tier the raw prompt
// text demands. It is evaluated before parsing so gated requests never
// reach the model. Tier-3 phrases take precedence.
func (e *Engine) RequiredTier(rawText string) int {
	text := strings.ToLower(rawText)

	for _, phrase := range e.tier3Phrases {
		if strings.Contains(text, phrase) {
			return 3
		}
	}
	for _, phrase := range e.tier2Phrases {
		if strings.Contains(text, phrase) {
			return 2
		}
	}
	return 1
}

// serializeParams flattens the parameter map for keyword scanning.
func serializeParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	data, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(data)
}

// containsWord reports whether s contains term as a whole word, so the
// bulk term "all" does not fire on "small" or "wallpaper".
func containsWord(s, term string) bool {
	start := 0
	for {
		idx := strings.Index(s[start:], term)
		if idx < 0 {
			return false
		}
		idx += start

		before := idx == 0 || !isWordByte(s[idx-1])
		afterIdx := idx + len(term)
		after := afterIdx >= len(s) || !isWordByte(s[afterIdx])
		if before && after {
			return true
		}
		start = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}

func lower(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
