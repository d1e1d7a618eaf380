package openai

import (
	"regexp"
	"strings"
)

var (
	// `, type":` where the model dropped the opening quote of a key.
	halfQuotedKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z_ ]*?)\s*":`)
	// `,}` and `,]`
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// repairJSON patches the formatting slips extraction models make most often.
// Well-formed input comes back unchanged.
func repairJSON(s string) string {
	s = halfQuotedKey.ReplaceAllStringFunc(s, func(m string) string {
		parts := halfQuotedKey.FindStringSubmatch(m)
		return parts[1] + `"` + strings.TrimSpace(parts[2]) + `":`
	})
	s = trailingComma.ReplaceAllString(s, "$1")
	return closeTruncated(s)
}

// closeTruncated appends whatever brackets are still open when a response
// was cut off by the token limit. A dangling partial entity is dropped.
func closeTruncated(s string) string {
	var (
		open     []byte
		inString bool
		escaped  bool
		lastSafe = -1
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			open = append(open, c)
		case '}', ']':
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
			// A closed object inside the entities array is a safe cut point.
			if len(open) == 2 {
				lastSafe = i
			}
		}
	}
	if len(open) == 0 {
		return s
	}

	if lastSafe >= 0 && len(open) > 2 {
		s = s[:lastSafe+1]
		open = open[:2]
	} else if inString {
		s += `"`
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(strings.TrimSpace(s), ","))
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}
