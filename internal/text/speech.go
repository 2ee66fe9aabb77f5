package text

import (
	"strconv"
	"strings"
)

// MaxSpokenNumber is the largest integer ExpandForSpeech spells out.
const MaxSpokenNumber = 999999

var (
	onesWords = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tensWords = []string{
		"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
	}
)

// ExpandForSpeech rewrites English text into a form engines read naturally:
// typographic quotes and dashes become ASCII, common abbreviations are
// expanded and integers up to MaxSpokenNumber are spelled out. Other
// languages are returned unchanged.
func (p *Processor) ExpandForSpeech(text, language string) string {
	if language != LanguageEnglish || text == "" {
		return text
	}

	expanded := p.typography.Replace(text)
	expanded = p.abbreviations.Replace(expanded)

	return p.numbers.ReplaceAllStringFunc(expanded, func(digits string) string {
		number, err := strconv.Atoi(digits)
		if err != nil || number > MaxSpokenNumber {
			return digits
		}

		return SpellNumber(number)
	})
}

// SpellNumber writes a non-negative integer up to MaxSpokenNumber in English
// words. Values outside that range are returned as digits.
func SpellNumber(number int) string {
	if number < 0 || number > MaxSpokenNumber {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return onesWords[0]
	}

	var parts []string

	if thousands := number / 1000; thousands > 0 {
		parts = append(parts, spellBelowThousand(thousands), "thousand")
	}

	if rest := number % 1000; rest > 0 {
		parts = append(parts, spellBelowThousand(rest))
	}

	return strings.Join(parts, " ")
}

func spellBelowThousand(number int) string {
	var parts []string

	if hundreds := number / 100; hundreds > 0 {
		parts = append(parts, onesWords[hundreds], "hundred")
	}

	rest := number % 100

	switch {
	case rest == 0:
	case rest < len(onesWords):
		parts = append(parts, onesWords[rest])
	case rest%10 == 0:
		parts = append(parts, tensWords[rest/10])
	default:
		parts = append(parts, tensWords[rest/10]+"-"+onesWords[rest%10])
	}

	return strings.Join(parts, " ")
}
