package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer turns ticket text into normalized terms: lowercased, stripped of
// stopwords and ticket boilerplate, and optionally reduced to a crude stem.
type Tokenizer struct {
	stopwords map[string]struct{}
	useStem   bool
}

func NewTokenizer(useStemming bool) *Tokenizer {
	return &Tokenizer{
		stopwords: defaultStopwords(),
		useStem:   useStemming,
	}
}

func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if t.useStem {
			word = Stem(word)
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// splitWords splits on anything that is not a letter or digit, so
// "wi-fi" and "e-mail" become two words each.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var suffixes = []struct {
	suffix string
	keep   int // minimum stem length left behind
	repl   string
}{
	{"ational", 3, "ate"},
	{"ization", 3, "ize"},
	{"fulness", 3, "ful"},
	{"ements", 3, ""},
	{"ement", 3, ""},
	{"ations", 3, "ate"},
	{"ation", 3, "ate"},
	{"ingly", 3, ""},
	{"iness", 3, "y"},
	{"ness", 3, ""},
	{"ings", 3, ""},
	{"ing", 3, ""},
	{"ies", 2, "y"},
	{"edly", 3, ""},
	{"ed", 3, ""},
	{"ers", 3, ""},
	{"er", 3, ""},
	{"ly", 3, ""},
	{"s", 3, ""},
}

// Stem strips one common English suffix. It is deliberately lighter than a
// full Porter stemmer: "printing", "printer" and "printers" all become "print",
// while short words are left alone.
func Stem(word string) string {
	if len(word) <= 3 || strings.HasSuffix(word, "ss") {
		return word
	}
	for _, s := range suffixes {
		if !strings.HasSuffix(word, s.suffix) {
			continue
		}
		stem := word[:len(word)-len(s.suffix)]
		if len(stem) < s.keep {
			continue
		}
		stem += s.repl
		if s.repl == "" && len(stem) > 3 && stem[len(stem)-1] == stem[len(stem)-2] && !strings.ContainsRune("lsz", rune(stem[len(stem)-1])) {
			// running -> runn -> run
			stem = stem[:len(stem)-1]
		}
		return stem
	}
	return word
}

func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "you", "your", "we", "our", "me", "my",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"can", "do", "does", "did", "been", "being", "would",
		"could", "should", "may", "might", "which", "am",
		"who", "what", "when", "where", "how", "all", "any",
		"some", "than", "too", "very", "just", "also", "there",
		// ticket boilerplate
		"hi", "hello", "hey", "dear", "team", "please", "pls", "thanks",
		"thank", "regards", "urgent", "asap", "help", "issue", "problem",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
