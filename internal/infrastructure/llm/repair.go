package llm

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode"
)

var ErrUnrepairable = errors.New("model output is not repairable JSON")

// RepairJSON applies increasingly invasive fixes and stops at the first one
// that yields valid JSON: code fences, outermost braces, trailing commas,
// raw control characters inside strings, unterminated brackets.
func RepairJSON(raw string) (string, error) {
	s := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if json.Valid([]byte(s)) {
		return s, nil
	}
	stages := []func(string) string{
		stripFences,
		outermostObject,
		dropTrailingCommas,
		escapeControlChars,
		balanceBrackets,
	}
	for _, stage := range stages {
		s = stage(s)
		if json.Valid([]byte(s)) {
			return s, nil
		}
	}
	return "", ErrUnrepairable
}

func stripFences(s string) string {
	i := strings.Index(s, "```")
	if i == -1 {
		return s
	}
	rest := s[i+3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[nl+1:]
	} else {
		rest = strings.TrimPrefix(rest, "json")
	}
	if j := strings.Index(rest, "```"); j != -1 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

// outermostObject trims to the first '{' and its balancing '}'. A truncated
// object is kept to the end so the balancing stage can close it.
func outermostObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return s
	}
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			b.WriteByte(c)
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		if c == '"' {
			inStr = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inStr {
			if c == '"' {
				inStr = true
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case esc:
			esc = false
			b.WriteByte(c)
		case c == '\\':
			esc = true
			b.WriteByte(c)
		case c == '"':
			inStr = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			b.WriteString(`\u00`)
			b.WriteByte("0123456789abcdef"[c>>4])
			b.WriteByte("0123456789abcdef"[c&0xf])
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// balanceBrackets closes an open string, drops a dangling key or separator
// and appends the closers of every still-open container.
func balanceBrackets(s string) string {
	stack, inStr := scanOpen(s)
	if inStr {
		if strings.HasSuffix(s, `\`) {
			s = s[:len(s)-1]
		}
		s += `"`
	}
	for {
		t := strings.TrimRightFunc(s, unicode.IsSpace)
		switch {
		case strings.HasSuffix(t, ","):
			s = t[:len(t)-1]
			continue
		case strings.HasSuffix(t, ":"):
			t = strings.TrimRightFunc(t[:len(t)-1], unicode.IsSpace)
			if start := stringStart(t); start >= 0 {
				s = t[:start]
				continue
			}
			s = t
			continue
		case strings.HasSuffix(t, `"`) && len(stack) > 0 && stack[len(stack)-1] == '{':
			if start := stringStart(t); start >= 0 {
				before := strings.TrimRightFunc(t[:start], unicode.IsSpace)
				if strings.HasSuffix(before, ",") || strings.HasSuffix(before, "{") {
					s = before
					continue
				}
			}
		}
		s = t
		break
	}
	var b strings.Builder
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

func scanOpen(s string) ([]byte, bool) {
	var stack []byte
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return stack, inStr
}

// stringStart returns the index of the opening quote of the string literal
// that ends t, or -1.
func stringStart(t string) int {
	if !strings.HasSuffix(t, `"`) {
		return -1
	}
	for i := len(t) - 2; i >= 0; i-- {
		if t[i] != '"' {
			continue
		}
		bs := 0
		for j := i - 1; j >= 0 && t[j] == '\\'; j-- {
			bs++
		}
		if bs%2 == 0 {
			return i
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}
