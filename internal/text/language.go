package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Language codes returned by DetectLanguage.
const (
	LanguageVietnamese = "vi"
	LanguageEnglish    = "en"
	LanguageFrench     = "fr"
	LanguageUnknown    = "unknown"
)

// Letters only Vietnamese uses, and letters only French uses. Shared accented
// letters such as é or ô count towards French; Vietnamese text nearly always
// carries a letter from its own set as well.
const (
	vietnameseLetters = "áạảãầấậẩẫăằắặẳẵẹẻẽềếệểễìíịỉĩòóọỏõồốộổỗơờớợởỡúụủũưừứựửữỳýỵỷỹđ"
	frenchLetters     = "çëîïöûüÿæœ"
	sharedLetters     = "àâèéêôù"
)

const (
	distinctLetterWeight = 2
	sharedLetterWeight   = 1
	stopWordWeight       = 1
)

var (
	vietnameseStopWords = wordSet(
		"và", "của", "có", "được", "này", "cho", "với", "từ", "theo", "người",
		"là", "không", "tôi", "bạn", "xin", "chào", "một", "những", "các",
		"trong", "đã", "sẽ", "rất", "khỏe", "cảm", "ơn",
	)
	frenchStopWords = wordSet(
		"le", "la", "les", "de", "des", "du", "et", "un", "une", "il", "elle",
		"est", "être", "en", "avoir", "que", "pour", "dans", "pas", "je",
		"vous", "nous", "avec", "sur", "ce", "qui", "bonjour", "merci",
	)
	englishStopWords = wordSet(
		"the", "be", "to", "of", "and", "a", "in", "that", "have", "it", "for",
		"not", "on", "with", "is", "are", "you", "how", "what", "this", "i",
		"hello", "was", "we", "do",
	)
)

// DetectLanguage scores Vietnamese, French and English by distinctive letters
// and stop-word hits and returns the best code. Ties resolve vi, then fr, then
// en. Text with no signal yields LanguageUnknown.
func DetectLanguage(text string) string {
	var viScore, frScore, enScore int

	for _, token := range tokenize(text) {
		switch {
		case strings.ContainsAny(token, vietnameseLetters):
			viScore += distinctLetterWeight
		case strings.ContainsAny(token, frenchLetters):
			frScore += distinctLetterWeight
		case strings.ContainsAny(token, sharedLetters):
			frScore += sharedLetterWeight
		}

		if _, ok := vietnameseStopWords[token]; ok {
			viScore += stopWordWeight
		}

		if _, ok := frenchStopWords[token]; ok {
			frScore += stopWordWeight
		}

		if _, ok := englishStopWords[token]; ok {
			enScore += stopWordWeight
		}
	}

	switch {
	case viScore == 0 && frScore == 0 && enScore == 0:
		return LanguageUnknown
	case viScore >= frScore && viScore >= enScore:
		return LanguageVietnamese
	case frScore >= enScore:
		return LanguageFrench
	default:
		return LanguageEnglish
	}
}

// DetectLanguageOr returns the detected language, or fallback when the text
// gives no signal. Synthesis requests never carry LanguageUnknown.
func DetectLanguageOr(text, fallback string) string {
	language := DetectLanguage(text)
	if language == LanguageUnknown {
		return fallback
	}

	return language
}

func tokenize(text string) []string {
	lowered := strings.ToLower(norm.NFC.String(text))

	return strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r)
	})
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}

	return set
}
