package slackconn

import "strings"

// MarkdownToMrkdwn converts the Markdown that models produce into Slack
// mrkdwn. Fenced code blocks and inline code pass through untouched.
func MarkdownToMrkdwn(md string) string {
	lines := strings.Split(md, "\n")
	inFence := false
	for i, line := range lines {
		if fence := strings.Count(strings.TrimSpace(line), "```"); fence > 0 {
			if fence%2 == 1 {
				inFence = !inFence
			}
			continue
		}
		if !inFence {
			lines[i] = convertLine(line)
		}
	}
	return strings.Join(lines, "\n")
}

// convertLine handles the block-level markers Slack lacks: headings become
// bold lines and list bullets become "•".
func convertLine(line string) string {
	body := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(body)]

	if n := headingLevel(body); n > 0 {
		text := strings.ReplaceAll(strings.TrimSpace(body[n:]), "**", "")
		if text == "" {
			return indent
		}
		return indent + "*" + convertInline(text) + "*"
	}
	for _, bullet := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(body, bullet) {
			return indent + "• " + convertInline(body[len(bullet):])
		}
	}
	return indent + convertInline(body)
}

// headingLevel returns the length of a "#".."######" prefix followed by a
// space, or 0.
func headingLevel(s string) int {
	n := 0
	for n < len(s) && n < 6 && s[n] == '#' {
		n++
	}
	if n == 0 || n >= len(s) || s[n] != ' ' {
		return 0
	}
	return n
}

// convertInline rewrites emphasis (**b** → *b*, *i* → _i_), strikethrough
// (~~s~~ → ~s~) and links ([t](u) → <u|t>) outside inline code.
func convertInline(s string) string {
	var b strings.Builder
	inCode := false
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == '`':
			inCode = !inCode
			b.WriteByte(ch)
			i++
		case inCode:
			b.WriteByte(ch)
			i++
		case ch == '*' && strings.HasPrefix(s[i:], "**"):
			b.WriteByte('*')
			i += 2
		case ch == '*':
			b.WriteByte('_')
			i++
		case ch == '~' && strings.HasPrefix(s[i:], "~~"):
			b.WriteByte('~')
			i += 2
		case ch == '[':
			text, url, end, ok := parseLink(s, i)
			if !ok {
				b.WriteByte(ch)
				i++
				continue
			}
			b.WriteString("<" + url + "|" + text + ">")
			i = end
		default:
			b.WriteByte(ch)
			i++
		}
	}
	return b.String()
}

// parseLink reads "[text](url)" starting at s[i] and returns the index
// just past the closing parenthesis.
func parseLink(s string, i int) (text, url string, end int, ok bool) {
	mid := strings.Index(s[i:], "](")
	if mid == -1 {
		return "", "", 0, false
	}
	mid += i
	closeP := strings.IndexByte(s[mid:], ')')
	if closeP == -1 {
		return "", "", 0, false
	}
	closeP += mid
	return s[i+1 : mid], s[mid+2 : closeP], closeP + 1, true
}
