package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_MarkdownBlock(t *testing.T) {
	content := "Here is the command:\n```json\n{\"type\": \"product\", \"action\": \"create\"}\n```\nLet me know if you need anything else."

	result := ExtractJSON(content)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal([]byte(result), &parsed))
	assert.Equal(t, "product", parsed["type"])
	assert.Equal(t, "create", parsed["action"])
}

func TestExtractJSON_BareBlock(t *testing.T) {
	content := "```\n{\"type\": \"order\"}\n```"

	result := ExtractJSON(content)
	assert.JSONEq(t, `{"type": "order"}`, result)
}

func TestExtractJSON_RawObject(t *testing.T) {
	content := `The parsed command is {"type": "customer", "action": "update"} as requested.`

	result := ExtractJSON(content)
	assert.JSONEq(t, `{"type": "customer", "action": "update"}`, result)
}

func TestExtractJSON_TrailingCommas(t *testing.T) {
	content := `{"type": "theme", "parameters": {"name": "Dawn",},}`

	result := ExtractJSON(content)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(result), &parsed))
	assert.Equal(t, "theme", parsed["type"])
}

func TestExtractJSON_LineComments(t *testing.T) {
	content := "{\n  \"type\": \"product\", // the command type\n  \"url\": \"https://example.com/item\"\n}"

	result := ExtractJSON(content)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal([]byte(result), &parsed))
	assert.Equal(t, "product", parsed["type"])
	assert.Equal(t, "https://example.com/item", parsed["url"], "URLs inside strings must survive comment stripping")
}

func TestExtractJSON_NoJSON(t *testing.T) {
	assert.Empty(t, ExtractJSON("I'm sorry, I can't parse that request."))
	assert.Empty(t, ExtractJSON(""))
}

func TestExtractJSONArray(t *testing.T) {
	content := "```json\n[{\"type\": \"product\"}, {\"type\": \"order\"}]\n```"

	result := ExtractJSONArray(content)

	var parsed []map[string]string
	require.NoError(t, json.Unmarshal([]byte(result), &parsed))
	require.Len(t, parsed, 2)
	assert.Equal(t, "product", parsed[0]["type"])
}

func TestExtractJSONArray_Raw(t *testing.T) {
	result := ExtractJSONArray(`Results: [1, 2, 3,]`)
	assert.Equal(t, "[1, 2, 3]", result)
}

func TestStripLineComment(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no comment", `"key": "value",`, `"key": "value",`},
		{"trailing comment", `"key": "value", // note`, `"key": "value",`},
		{"url in string", `"url": "https://x.com/a//b"`, `"url": "https://x.com/a//b"`},
		{"escaped quote", `"key": "say \"hi\" // ok"`, `"key": "say \"hi\" // ok"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripLineComment(tt.in))
		})
	}
}
