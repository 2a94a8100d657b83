package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Common keys agents hide text under when they emit loosely-typed payloads.
var textCarrierKeys = []string{"stdout", "stderr", "output", "text", "message", "result"}

// ExtractText pulls human-readable text out of a loosely-typed content
// payload. Agents send anything from bare strings to nested block arrays,
// so extraction tries shapes in priority order:
//
//  1. a plain JSON string
//  2. an array of strings, joined with newlines
//  3. typed content blocks (single object or array), concatenating text
//     blocks; a {content: {...}} wrapper is unwrapped one level and common
//     carrier keys (stdout, stderr, output, text, message, result) are
//     consulted
//  4. the pretty-printed JSON itself, as a last resort
//
// The boolean is false only when the payload holds no content at all.
func ExtractText(raw json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}

	// 1. Plain string. An empty one counts as no content.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}

	// 2. Array of strings.
	var ss []string
	if err := json.Unmarshal(raw, &ss); err == nil {
		return strings.Join(ss, "\n"), true
	}

	// 3. Typed content blocks.
	if text, ok := textFromBlocks(raw); ok {
		return text, true
	}

	// 4. Pretty-printed JSON.
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return trimmed, true
	}
	return pretty.String(), true
}

// textFromBlocks extracts text from a content block, an array of blocks, or
// an object that wraps or carries text one level down.
func textFromBlocks(raw json.RawMessage) (string, bool) {
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		if text, ok := joinTextBlocks(blocks); ok {
			return text, true
		}
	}

	var block ContentBlock
	if err := json.Unmarshal(raw, &block); err == nil && block.Type == "text" && block.Text != "" {
		return block.Text, true
	}

	// Unwrap one level of {content: ...}.
	var wrapper struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Content) > 0 {
		var inner ContentBlock
		if err := json.Unmarshal(wrapper.Content, &inner); err == nil && inner.Text != "" {
			return inner.Text, true
		}
		var innerStr string
		if err := json.Unmarshal(wrapper.Content, &innerStr); err == nil && innerStr != "" {
			return innerStr, true
		}
	}

	// Common carrier keys, first non-empty wins in declared order.
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range textCarrierKeys {
			v, ok := obj[key]
			if !ok {
				continue
			}
			var text string
			if err := json.Unmarshal(v, &text); err == nil && text != "" {
				return text, true
			}
		}
	}

	return "", false
}

// joinTextBlocks concatenates the text of text-typed blocks.
func joinTextBlocks(blocks []ContentBlock) (string, bool) {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, ""), true
}

// DecodeBlocks decodes a chunk payload into content blocks. A single block
// object is wrapped in a one-element slice; a bare string becomes one text
// block. Returns nil when nothing decodes.
func DecodeBlocks(raw json.RawMessage) []ContentBlock {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil && len(blocks) > 0 {
		return blocks
	}

	var block ContentBlock
	if err := json.Unmarshal(raw, &block); err == nil && block.Type != "" {
		return []ContentBlock{block}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return []ContentBlock{TextBlock(s)}
	}

	return nil
}
