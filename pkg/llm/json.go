package llm

import (
	"regexp"
	"strings"
)

// thinkTagPattern matches <think>...</think> tags that reasoning models put
// at the start of their responses.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// StripThinking removes a leading <think>...</think> block from a response.
func StripThinking(response string) string {
	return thinkTagPattern.ReplaceAllString(response, "")
}

// ExtractObject returns the substring from the first '{' to the last '}' of
// the response after any leading thinking block. It does not check that the
// result is valid JSON.
func ExtractObject(response string) (string, bool) {
	cleaned := StripThinking(response)
	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return cleaned[start : end+1], true
}
