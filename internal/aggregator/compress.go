package aggregator

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"toolgate.dev/cli/internal/core/domain"
)

// maxDescriptionLength caps a compressed description; backend servers
// routinely ship paragraph-length prose the model context does not need.
const maxDescriptionLength = 512

var whitespaceRun = regexp.MustCompile(`\s+`)

// descriptionLeadIns are boilerplate openers stripped from descriptions.
// Matching is case-insensitive and repeats until no opener remains, which
// keeps the transform idempotent.
var descriptionLeadIns = []string{
	"use this tool to ",
	"this tool allows you to ",
	"this tool ",
	"a tool that ",
	"a tool to ",
	"tool that ",
	"tool to ",
}

// Compress returns a descriptor with redundant description and schema text
// removed. It is a pure function: deterministic, idempotent, and the
// compressed description is never longer than the input.
func Compress(tool domain.ToolDescriptor) domain.ToolDescriptor {
	compressed := tool
	compressed.Description = compressText(tool.Description)
	compressed.InputSchema = compressSchema(tool.InputSchema)
	return compressed
}

// compressText collapses whitespace, strips boilerplate lead-ins, and
// truncates at a word boundary. Every step shrinks or keeps the input.
func compressText(text string) string {
	result := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))

	for {
		stripped := result
		lower := strings.ToLower(result)
		for _, leadIn := range descriptionLeadIns {
			if strings.HasPrefix(lower, leadIn) {
				stripped = strings.TrimSpace(result[len(leadIn):])
				break
			}
		}
		if stripped == result {
			break
		}
		result = stripped
	}

	if utf8.RuneCountInString(result) > maxDescriptionLength {
		runes := []rune(result)
		cut := string(runes[:maxDescriptionLength])
		if idx := strings.LastIndex(cut, " "); idx > 0 {
			cut = cut[:idx]
		}
		result = strings.TrimSpace(cut)
	}

	return result
}

// compressSchema compresses description strings inside the schema and
// drops the "$schema" annotation. A schema that does not parse is passed
// through untouched; the proxy never fails a listing over cosmetics.
func compressSchema(schema json.RawMessage) json.RawMessage {
	if len(schema) == 0 {
		return schema
	}

	var parsed interface{}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return schema
	}

	compressed := compressSchemaValue(parsed)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(compressed); err != nil {
		return schema
	}
	return json.RawMessage(bytes.TrimSpace(buf.Bytes()))
}

func compressSchemaValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, child := range v {
			if key == "$schema" {
				delete(v, key)
				continue
			}
			if key == "description" {
				if text, ok := child.(string); ok {
					v[key] = compressText(text)
					continue
				}
			}
			v[key] = compressSchemaValue(child)
		}
		return v
	case []interface{}:
		for i, child := range v {
			v[i] = compressSchemaValue(child)
		}
		return v
	default:
		return value
	}
}
