package engine

import (
	"sort"
	"strings"
	"unicode"

	"nlud/pkg/types"
)

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// extractListEntities finds occurrences of list entity values in text. Matches
// are case-insensitive and must fall on word boundaries. Fuzzy matching is not
// supported.
func extractListEntities(text string, entities []types.EntityDefinition) []types.EntityMatch {
	lower := strings.ToLower(text)
	out := []types.EntityMatch{}
	for _, ent := range entities {
		if ent.Type != "" && ent.Type != "list" {
			continue
		}
		for _, occ := range ent.Occurrences {
			for _, cand := range append([]string{occ.Name}, occ.Synonyms...) {
				needle := strings.ToLower(strings.TrimSpace(cand))
				if needle == "" {
					continue
				}
				for from := 0; from < len(lower); {
					i := strings.Index(lower[from:], needle)
					if i < 0 {
						break
					}
					start, end := from+i, from+i+len(needle)
					if onBoundary(lower, start, end) {
						out = append(out, types.EntityMatch{
							Name:  ent.Name,
							Type:  "list",
							Value: occ.Name,
							Text:  text[start:end],
							Start: start,
							End:   end,
						})
					}
					from = end
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func onBoundary(s string, start, end int) bool {
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	if start > 0 {
		r := []rune(s[:start])
		if isWord(r[len(r)-1]) {
			return false
		}
	}
	if end < len(s) {
		r := []rune(s[end:])
		if isWord(r[0]) {
			return false
		}
	}
	return true
}

var stopwords = map[string][]string{
	"en": {"the", "a", "an", "is", "are", "i", "you", "to", "and", "of", "what", "my", "want", "please", "how", "can", "it", "do"},
	"fr": {"le", "la", "les", "un", "une", "est", "je", "tu", "vous", "et", "de", "des", "mon", "ma", "veux", "comment", "pour", "pas"},
	"es": {"el", "la", "los", "las", "un", "una", "es", "yo", "tu", "y", "de", "mi", "quiero", "como", "por", "para", "que", "no"},
	"de": {"der", "die", "das", "ein", "eine", "ist", "ich", "du", "und", "zu", "mein", "meine", "will", "wie", "nicht", "bitte", "ja"},
	"it": {"il", "lo", "la", "gli", "un", "una", "è", "io", "tu", "e", "di", "mio", "voglio", "come", "per", "non", "che"},
	"pt": {"o", "a", "os", "as", "um", "uma", "é", "eu", "você", "e", "de", "meu", "quero", "como", "para", "não", "que"},
}

// detectLanguage scores candidates by stop-word overlap and falls back to def
// when nothing matches or the best score is tied.
func detectLanguage(text string, candidates []string, def string) string {
	toks := tokenize(text)
	best, bestScore, tied := def, 0, false
	for _, lang := range candidates {
		words := stopwords[lang]
		if len(words) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		score := 0
		for _, t := range toks {
			if _, ok := set[t]; ok {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = lang, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if bestScore == 0 || tied {
		return def
	}
	return best
}
