package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Cue is one structured signal extracted from a provider reply.
// It is a transport-level DTO; mapping cues onto pattern types is the
// extractor's job, not this package's.
type Cue struct {
	// Type names the preference signal, e.g. "industry_preference".
	Type string `json:"type"`

	// Value is the attribute value the cue refers to, e.g. "Software".
	Value string `json:"value"`

	// Confidence is the provider's extraction certainty in [0,1].
	Confidence float64 `json:"confidence"`
}

// ParseCues converts a provider's free-text reply into structured cues.
//
// Providers are prompted to answer with a JSON array of cue objects,
// but replies routinely arrive wrapped in prose or markdown fences.
// This function finds the first JSON array in the reply, unmarshals it,
// and drops malformed entries. It never fails on extra prose; it fails
// only when no parseable array exists.
func ParseCues(reply string) ([]Cue, error) {
	raw := extractJSONArray(reply)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array found in provider reply")
	}

	var cues []Cue
	if err := json.Unmarshal([]byte(raw), &cues); err != nil {
		return nil, fmt.Errorf("parsing cue array: %w", err)
	}

	valid := cues[:0]
	for _, c := range cues {
		if c.Type == "" || c.Value == "" {
			continue
		}
		// Clamp out-of-range confidences instead of discarding the cue
		if c.Confidence < 0 {
			c.Confidence = 0
		}
		if c.Confidence > 1 {
			c.Confidence = 1
		}
		valid = append(valid, c)
	}
	return valid, nil
}

// extractJSONArray returns the first balanced top-level JSON array in s,
// or "" when none exists. Handles markdown code fences.
func extractJSONArray(s string) string {
	// Strip code fences if the whole reply is fenced
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.Index(s, "[")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
