package chunker

import (
	"strings"
	"unicode"
)

// FleschReadingEase computes the Flesch reading-ease score of text.
// Higher is easier to read; typical prose lands between 30 and 80.
func FleschReadingEase(text string) float64 {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	if len(words) == 0 {
		return 0
	}
	sentences := countSentences(text)
	if sentences == 0 {
		sentences = 1
	}
	syllables := 0
	for _, word := range words {
		syllables += countSyllables(word)
	}
	score := 206.835 - 1.015*(float64(len(words))/float64(sentences)) - 84.6*(float64(syllables)/float64(len(words)))
	return score
}

func countSentences(text string) int {
	count := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			count++
		}
	}
	return count
}

func countSyllables(word string) int {
	cleaned := strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	if cleaned == "" {
		return 1
	}
	count := 0
	prevVowel := false
	for _, r := range cleaned {
		vowel := strings.ContainsRune("aeiouy", r)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}
	// Trailing silent e
	if strings.HasSuffix(cleaned, "e") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}
