package parse

import "strings"

// Repair applies a fixed set of common-malformation fixes to model output:
// markdown code fences, smart quotes, raw control characters inside string
// values, and trailing commas before closing brackets. It never tries to be
// clever beyond these; anything else is the section extractor's problem.
func Repair(text string) string {
	text = stripFences(text)
	text = normalizeQuotes(text)
	return repairStructural(text)
}

func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

var quoteReplacer = strings.NewReplacer(
	"“", `"`, // left double
	"”", `"`, // right double
	"‘", "'", // left single
	"’", "'", // right single
)

func normalizeQuotes(text string) string {
	return quoteReplacer.Replace(text)
}

// repairStructural walks the text with string awareness, escaping raw
// control characters inside string values and dropping commas that
// immediately precede a closing bracket.
func repairStructural(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			case c < 0x20:
				// other raw control characters are dropped
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case ',':
			if j := nextNonSpace(text, i+1); j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue // trailing comma
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func nextNonSpace(text string, from int) int {
	for i := from; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
		default:
			return i
		}
	}
	return len(text)
}
