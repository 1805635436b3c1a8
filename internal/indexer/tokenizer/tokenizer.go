// Package tokenizer provides the default text analysis collaborators for
// the index: a splitter that breaks text into raw tokens and filters that
// normalise or reject each token before it becomes an index term.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Func splits text into raw tokens.
type Func func(text string) []string

// Filter maps a raw token to an index term. The second result is false when
// the token must be dropped.
type Filter func(token string) (string, bool)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Split breaks text on every rune that is neither a letter nor a digit.
func Split(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Lower case-folds the token and rejects it only when it is empty.
func Lower(token string) (string, bool) {
	term := strings.ToLower(token)
	return term, term != ""
}

// Normalize lower-cases the token, drops stop-words and single-rune tokens,
// and applies the suffix stemmer.
func Normalize(token string) (string, bool) {
	word := strings.ToLower(token)
	if utf8.RuneCountInString(word) < 2 {
		return "", false
	}
	if _, isStop := stopWords[word]; isStop {
		return "", false
	}
	stemmed := stem(word)
	if stemmed == "" {
		return "", false
	}
	return stemmed, true
}

// Analyze runs tokenize and then filter over text, returning the accepted
// terms in order. Duplicates are kept.
func Analyze(text string, tokenize Func, filter Filter) []string {
	raw := tokenize(text)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		term, ok := filter(token)
		if !ok || term == "" {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

type suffixRule struct {
	suffix      string
	replacement string
	minLen      int
}

var suffixes = []suffixRule{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
