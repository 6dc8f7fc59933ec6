package extract

import "strings"

// CleanJSON strips markdown fences, slices the outermost JSON object, and
// repairs truncation.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	for _, fence := range []string{"```json", "```"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimPrefix(text, fence)
			if idx := strings.LastIndex(text, "```"); idx >= 0 {
				text = text[:idx]
			}
			break
		}
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return strings.TrimSpace(text)
	}
	text = text[start:]
	if end := strings.LastIndex(text, "}"); end > 0 && balanced(text[:end+1]) {
		text = text[:end+1]
	}
	return repairTruncatedJSON(strings.TrimSpace(text))
}

// balanced reports whether every brace and bracket outside strings is closed.
func balanced(text string) bool {
	stack, inString := scan(text)
	return len(stack) == 0 && !inString
}

// scan returns the closing delimiters still owed at the end of text and
// whether text ends inside a string literal.
func scan(text string) (stack []byte, inString bool) {
	escape := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return stack, inString
}

// repairTruncatedJSON closes an unterminated string and any unclosed
// brackets or braces. A trailing key with no value is dropped.
func repairTruncatedJSON(text string) string {
	if text == "" {
		return text
	}
	stack, inString := scan(text)
	if inString {
		text += `"`
	}
	if len(stack) == 0 {
		return text
	}

	text = strings.TrimRight(text, " \t\n\r,")
	if strings.HasSuffix(text, ":") {
		text = dropDanglingKey(strings.TrimSuffix(text, ":"))
	}

	for i := len(stack) - 1; i >= 0; i-- {
		text = strings.TrimRight(text, " \t\n\r,")
		text += string(stack[i])
	}
	return text
}

// dropDanglingKey removes a trailing `"key"` left without a value.
func dropDanglingKey(text string) string {
	text = strings.TrimRight(text, " \t\n\r")
	if !strings.HasSuffix(text, `"`) {
		return text
	}
	open := strings.LastIndex(text[:len(text)-1], `"`)
	if open < 0 {
		return text
	}
	return strings.TrimRight(text[:open], " \t\n\r,")
}
