package text

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/book-expert/voice-studio/internal/core"
)

// WordsPerMinute is the speaking rate behind every duration estimate.
const WordsPerMinute = 150

const secondsPerMinute = 60

var (
	sentenceTerminators = regexp.MustCompile(`[.!?]+`)
	wholeSentences      = regexp.MustCompile(`[^.!?]*[.!?]+|[^.!?]+$`)
)

// EstimateSpeechSeconds returns the expected speech length of a text with the
// given word count, rounded up to the next whole second. It is the only
// duration formula: previews and stored history both use it.
func EstimateSpeechSeconds(words int) int {
	if words <= 0 {
		return 0
	}

	return (words*secondsPerMinute + WordsPerMinute - 1) / WordsPerMinute
}

// Stats counts characters, whitespace-separated words and sentences and
// estimates the speech duration.
func Stats(text string) core.TextStats {
	words := len(strings.Fields(text))

	sentences := 0
	for _, segment := range sentenceTerminators.Split(text, -1) {
		if strings.TrimSpace(segment) != "" {
			sentences++
		}
	}

	return core.TextStats{
		Characters:       utf8.RuneCountInString(text),
		Words:            words,
		Sentences:        sentences,
		EstimatedSeconds: EstimateSpeechSeconds(words),
	}
}

// Preview returns the leading whole sentences of text that fit in maxLength
// characters, each with its own terminator, followed by an ellipsis when
// anything was left out. A closing period run merges into the ellipsis.
func Preview(text string, maxLength int) string {
	if utf8.RuneCountInString(text) <= maxLength {
		return text
	}

	var preview strings.Builder

	for _, segment := range wholeSentences.FindAllString(text, -1) {
		sentence := strings.TrimSpace(segment)
		if sentence == "" {
			continue
		}

		separator := 0
		if preview.Len() > 0 {
			separator = 1
		}

		if utf8.RuneCountInString(preview.String())+separator+utf8.RuneCountInString(sentence) > maxLength {
			break
		}

		if separator > 0 {
			preview.WriteByte(' ')
		}

		preview.WriteString(sentence)
	}

	if preview.Len() == 0 {
		return Truncate(text, maxLength)
	}

	return strings.TrimRight(preview.String(), ".") + "..."
}

// Truncate shortens text to at most maxLength characters, cutting at the last
// word boundary when one exists, and appends an ellipsis when it cut.
func Truncate(text string, maxLength int) string {
	if maxLength <= 0 || utf8.RuneCountInString(text) <= maxLength {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:maxLength])

	if index := strings.LastIndexAny(cut, " \n\t"); index > 0 {
		cut = cut[:index]
	}

	return strings.TrimSpace(cut) + "..."
}
