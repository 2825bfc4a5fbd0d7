// Package jsonreply cleans up JSON that a generative model returned as text.
package jsonreply

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmpty = errors.New("model returned an empty response")

// Strip removes surrounding whitespace and a markdown code fence such as
// ```json ... ``` or ``` ... ``` if present.
func Strip(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string (json, JSON, ...) up to the first newline.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if info := strings.TrimSpace(s[:nl]); !strings.ContainsAny(info, "{[") {
			s = s[nl+1:]
		}
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Decode strips fences from text and unmarshals it into v.
func Decode(text string, v any) error {
	clean := Strip(text)
	if clean == "" {
		return ErrEmpty
	}
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return nil
}
