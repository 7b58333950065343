package validate

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/loreforge/loreforge/internal/myth"
)

// stopwords are skipped when extracting salient terms from a custom
// description.
var stopwords = map[string]bool{
	"with": true, "that": true, "this": true, "from": true, "have": true,
	"their": true, "they": true, "them": true, "where": true, "which": true,
	"would": true, "should": true, "could": true, "about": true, "into": true,
	"like": true, "very": true, "there": true, "these": true, "those": true,
	"over": true, "under": true, "between": true, "some": true, "more": true,
	"most": true, "also": true, "been": true, "being": true, "were": true,
	"each": true, "every": true, "made": true, "make": true, "makes": true,
}

// Fidelity checks whether each customized category's description left a
// discernible trace in the generated story and entities. The score is the
// percentage of customized categories that matched; a category with no
// trace is listed as a missing feature. The report is only meaningful when
// the request carried custom descriptions.
func Fidelity(req myth.GenerationRequest, doc *myth.PartialMythDocument) myth.FidelityReport {
	customized := req.Customized()
	if len(customized) == 0 {
		return myth.FidelityReport{Score: 100, IsValid: true}
	}

	haystack := normalizeTerm(contentText(doc))

	matched := 0
	var missing []string
	for _, cat := range customized {
		desc := req.Custom[cat]
		if traceable(desc, haystack) {
			matched++
			continue
		}
		missing = append(missing, fmt.Sprintf("%s: %s", cat, condense(desc, 80)))
	}

	score := float64(matched) / float64(len(customized)) * 100
	return myth.FidelityReport{
		Score:           score,
		IsValid:         matched == len(customized),
		MissingFeatures: missing,
	}
}

// traceable reports whether any salient term of desc appears in the
// normalized haystack.
func traceable(desc, haystack string) bool {
	for _, term := range SalientTerms(desc) {
		if strings.Contains(" "+haystack+" ", " "+term+" ") {
			return true
		}
	}
	return false
}

// SalientTerms extracts the words of a description worth searching for:
// lowercased, at least four letters, not a stopword, lightly stemmed by
// trimming a plural "s".
func SalientTerms(desc string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(normalizeTerm(desc)) {
		if len(w) < 4 || stopwords[w] {
			continue
		}
		w = strings.TrimSuffix(w, "s")
		if len(w) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func contentText(doc *myth.PartialMythDocument) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	if doc.Story != nil {
		b.WriteString(doc.Story.Title)
		b.WriteByte(' ')
		b.WriteString(doc.Story.Text)
	}
	for _, e := range doc.Entities {
		b.WriteByte(' ')
		b.WriteString(e.Name)
		b.WriteByte(' ')
		b.WriteString(e.Description)
		for _, p := range e.Powers {
			b.WriteByte(' ')
			b.WriteString(p)
		}
	}
	return b.String()
}

// normalizeTerm lowercases and strips everything that is not a letter,
// then trims each word's plural "s" so "storms" matches "storm".
func normalizeTerm(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	words := strings.Fields(b.String())
	for i, w := range words {
		if len(w) > 4 {
			words[i] = strings.TrimSuffix(w, "s")
		}
	}
	return strings.Join(words, " ")
}

func condense(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
