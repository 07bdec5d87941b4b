package guardrail

import (
	"math"
	"regexp"
	"strings"
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+`)
	wordPattern   = regexp.MustCompile(`\b[a-zA-Z']+\b`)
	vowelGroup    = regexp.MustCompile(`[aeiou]+`)
)

// ReadabilityGrade returns the Flesch-Kincaid grade level of text, rounded to
// two decimals and never negative. Empty text scores 0.
func ReadabilityGrade(text string) float64 {
	grade, _ := readability(text)
	return grade
}

func readability(text string) (grade float64, words int) {
	if strings.TrimSpace(text) == "" {
		return 0, 0
	}

	sentences := 0
	for _, s := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}
	if sentences == 0 {
		return 0, 0
	}

	found := wordPattern.FindAllString(text, -1)
	if len(found) == 0 {
		return 0, 0
	}

	syllables := 0
	for _, w := range found {
		syllables += countSyllables(w)
	}

	asl := float64(len(found)) / float64(sentences)
	asw := float64(syllables) / float64(len(found))
	g := 0.39*asl + 11.8*asw - 15.59
	if g < 0 {
		g = 0
	}
	return math.Round(g*100) / 100, len(found)
}

// countSyllables is a vowel-group heuristic, close enough for grade scoring.
func countSyllables(word string) int {
	word = strings.Trim(strings.ToLower(word), ".,!?;:\"'()")
	if word == "" {
		return 0
	}
	if len(word) <= 3 {
		return 1
	}

	if strings.HasSuffix(word, "e") && len(word) > 4 {
		word = word[:len(word)-1]
	}

	n := len(vowelGroup.FindAllString(word, -1))
	if strings.HasSuffix(word, "le") && len(word) > 2 && !strings.ContainsRune("aeiou", rune(word[len(word)-3])) {
		n++
	}
	if strings.HasSuffix(word, "ed") && n > 1 {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}
