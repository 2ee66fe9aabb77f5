package text

import (
	"strings"
	"unicode/utf8"
)

// Chunk splits text into pieces of at most limit characters. Whitespace is
// collapsed first. Pieces end on sentence boundaries where possible, fall back
// to word boundaries for long sentences, and a single word longer than limit
// is force-split at character boundaries. Joining the pieces with single
// spaces reproduces the collapsed text unless a word had to be force-split.
func Chunk(text string, limit int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	normalized := strings.Join(words, " ")
	if limit <= 0 || utf8.RuneCountInString(normalized) <= limit {
		return []string{normalized}
	}

	packer := chunkPacker{limit: limit}

	for _, sentence := range splitSentences(words) {
		if utf8.RuneCountInString(sentence) <= limit {
			packer.add(sentence)

			continue
		}

		packer.flush()

		for _, word := range strings.Fields(sentence) {
			if utf8.RuneCountInString(word) <= limit {
				packer.add(word)

				continue
			}

			packer.flush()

			for _, piece := range forceSplit(word, limit) {
				packer.add(piece)
				packer.flush()
			}
		}
	}

	packer.flush()

	return packer.chunks
}

type chunkPacker struct {
	limit   int
	chunks  []string
	current strings.Builder
	length  int
}

// add appends a unit that fits on its own, starting a new chunk when the
// current one would overflow.
func (c *chunkPacker) add(unit string) {
	unitLength := utf8.RuneCountInString(unit)

	if c.length > 0 && c.length+1+unitLength > c.limit {
		c.flush()
	}

	if c.length > 0 {
		c.current.WriteByte(' ')
		c.length++
	}

	c.current.WriteString(unit)
	c.length += unitLength
}

func (c *chunkPacker) flush() {
	if c.length == 0 {
		return
	}

	c.chunks = append(c.chunks, c.current.String())
	c.current.Reset()
	c.length = 0
}

// splitSentences groups words into sentences ending at a word whose last
// character is a terminator, ignoring trailing closing quotes and brackets.
func splitSentences(words []string) []string {
	var (
		sentences []string
		start     int
	)

	for index, word := range words {
		trimmed := strings.TrimRight(word, `"')]”’»`)
		if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") ||
			strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, "…") {
			sentences = append(sentences, strings.Join(words[start:index+1], " "))
			start = index + 1
		}
	}

	if start < len(words) {
		sentences = append(sentences, strings.Join(words[start:], " "))
	}

	return sentences
}

func forceSplit(word string, limit int) []string {
	runes := []rune(word)
	pieces := make([]string, 0, (len(runes)+limit-1)/limit)

	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		pieces = append(pieces, string(runes[start:end]))
	}

	return pieces
}
