package budget

import "strings"

// Split breaks text into pieces of at most max in unit u, preferring
// paragraph boundaries, then sentence boundaries, then word boundaries.
// A single word longer than max is cut by runes. max <= 0 returns the
// trimmed paragraphs unchanged.
func Split(text string, u Unit, max int) []string {
	var out []string
	for _, para := range splitByParagraphs(text) {
		if max <= 0 || u.Measure(para) <= max {
			out = append(out, para)
			continue
		}
		out = append(out, pack(splitSentences(para), " ", u, max)...)
	}
	return out
}

// pack joins consecutive parts with sep while they fit. Parts that do not
// fit alone are split further by words.
func pack(parts []string, sep string, u Unit, max int) []string {
	var result []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			result = append(result, current.String())
			current.Reset()
		}
	}

	for _, part := range parts {
		if u.Measure(part) > max {
			flush()
			if sep == " " && strings.ContainsAny(part, " \t\n") {
				result = append(result, pack(strings.Fields(part), " ", u, max)...)
			} else {
				result = append(result, cutRunes(part, u, max)...)
			}
			continue
		}
		if current.Len() > 0 && u.Measure(current.String()+sep+part) > max {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(part)
	}
	flush()
	return result
}

func cutRunes(s string, u Unit, max int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > 0 {
		n := len(runes)
		for n > 1 && u.Measure(string(runes[:n])) > max {
			n--
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

// splitByParagraphs splits on double newlines.
func splitByParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
