package tui

import (
	"regexp"
	"strings"
)

var (
	inlineParenMath  = regexp.MustCompile(`\\\((.+?)\\\)`)
	displayBrackMath = regexp.MustCompile(`(?s)\\\[(.+?)\\\]`)
)

// NormalizeMath rewrites the math delimiters models tend to emit into the
// dollar forms Markdown renderers understand:
//
//	\( x \)          -> $x$
//	\[ x \]          -> $$x$$
//	[ \frac{a}{b} ]  -> $$\frac{a}{b}$$   (a whole line)
//	[                -> $$
//	  x                   x
//	]                -> $$
//
// Existing $ and $$ spans and fenced code blocks are left alone.
func NormalizeMath(md string) string {
	lines := strings.Split(md, "\n")
	out := make([]string, 0, len(lines))
	var prose []string
	flush := func() {
		if len(prose) > 0 {
			out = append(out, normalizeProse(prose)...)
			prose = nil
		}
	}

	inFence := false
	for _, ln := range lines {
		if strings.HasPrefix(strings.TrimSpace(ln), "```") {
			flush()
			inFence = !inFence
			out = append(out, ln)
			continue
		}
		if inFence {
			out = append(out, ln)
			continue
		}
		prose = append(prose, ln)
	}
	flush()
	return strings.Join(out, "\n")
}

func normalizeProse(lines []string) []string {
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		t := strings.TrimSpace(lines[i])
		if t == "[" {
			if end := closingBracketLine(lines, i+1); end > i+1 {
				out = append(out, "$$")
				out = append(out, lines[i+1:end]...)
				out = append(out, "$$")
				i = end
				continue
			}
		}
		if inner, ok := bracketedMath(t); ok {
			out = append(out, "$$"+inner+"$$")
			continue
		}
		out = append(out, lines[i])
	}

	text := strings.Join(out, "\n")
	text = replaceMath(displayBrackMath, text, "$$")
	text = replaceMath(inlineParenMath, text, "$")
	return strings.Split(text, "\n")
}

func replaceMath(re *regexp.Regexp, text, delim string) string {
	return re.ReplaceAllStringFunc(text, func(m string) string {
		inner := re.FindStringSubmatch(m)[1]
		return delim + strings.TrimSpace(inner) + delim
	})
}

// closingBracketLine returns the index of the first line at or after start
// that is a lone "]", or -1.
func closingBracketLine(lines []string, start int) int {
	for j := start; j < len(lines); j++ {
		switch strings.TrimSpace(lines[j]) {
		case "]":
			return j
		case "":
			return -1
		}
	}
	return -1
}

// bracketedMath matches a line like "[ \int_0^1 x\,dx ]". A backslash is
// required so that links, checkboxes and citations are not touched.
func bracketedMath(line string) (string, bool) {
	if len(line) < 3 || line[0] != '[' || line[len(line)-1] != ']' {
		return "", false
	}
	inner := strings.TrimSpace(line[1 : len(line)-1])
	if inner == "" || !strings.Contains(inner, `\`) || strings.Contains(inner, "](") {
		return "", false
	}
	return inner, true
}
