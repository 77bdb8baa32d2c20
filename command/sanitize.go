package command

import (
	"github.com/microcosm-cc/bluemonday"
)

// sanitizer strips all HTML tags and scripts. The strict policy keeps
// text content only, which is what we want for merchant instructions
// that round-trip through a language model.
var sanitizer = bluemonday.StrictPolicy()

// SanitizeText strips HTML tags and script content from a string.
// Applied to raw input before it is sent to the model.
func SanitizeText(s string) string {
	return sanitizer.Sanitize(s)
}

// Sanitize strips HTML from every string leaf of the command's
// parameters, including nested maps and slices. Applied again after
// parsing so injection cannot round-trip through the model output.
func Sanitize(cmd *Command) *Command {
	if cmd == nil {
		return nil
	}
	out := *cmd
	out.Parameters = sanitizeValue(cmd.Parameters).(map[string]any)
	return &out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return SanitizeText(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = sanitizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = SanitizeText(item)
		}
		return out
	default:
		return v
	}
}
