package oracle

import "strings"

// StripCodeFence removes triple-backtick fencing (with or without a language tag)
// and any chatter outside the fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	// Drop the info string ("json", "JSON", ...) up to the first newline.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(strings.TrimPrefix(body, "json"), "JSON")
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// LooksComplete is the truncation heuristic: a structured answer must end in a
// closing brace or bracket.
func LooksComplete(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasSuffix(s, "}") || strings.HasSuffix(s, "]")
}
