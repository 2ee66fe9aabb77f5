// Package text prepares user text for speech synthesis: markdown and link
// cleaning, statistics, language classification, validation and chunking.
package text

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/book-expert/voice-studio/internal/core"
)

// DefaultMaxLength is the longest text accepted for synthesis, in characters.
const DefaultMaxLength = 10000

// Regex patterns for the cleaning passes, in the order they are applied.
const (
	fencedCodePattern     = "(?s)```.*?```"
	inlineLinkPattern     = `\[([^\]]+)\]\([^)]*\)`
	referenceLinkPattern  = `\[([^\]]+)\]\[[^\]]*\]`
	referenceDefPattern   = `(?m)^[ \t]*\[[^\]]+\]:[ \t]+.*$`
	bareURLPattern        = `https?://\S+`
	emailPattern          = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	headerPattern         = `(?m)^[ \t]*#{1,6}[ \t]+`
	horizontalRulePattern = `(?m)^[ \t]*([-*_][ \t]*){3,}$`
	blockquotePattern     = `(?m)^[ \t]*(>[ \t]?)+`
	bulletPattern         = `(?m)^[ \t]*[-*+][ \t]+`
	numberedPattern       = `(?m)^[ \t]*\d+\.[ \t]+`
	inlineCodePattern     = "`([^`\n]+)`"
	boldStarPattern       = `\*\*([^*\n]+)\*\*`
	boldUnderPattern      = `__([^_\n]+)__`
	italicStarPattern     = `\*([^*\n]+)\*`
	italicUnderPattern    = `\b_([^_\n]+)_\b`
	strikethroughPattern  = `~~([^~\n]+)~~`
	tableSeparatorPattern = `(?m)^[ \t]*(:?-+:?[ \t]*)+$`
	squareBracketPattern  = `\[[^\]]*\]`
	parentheticalPattern  = `\([^)]*\)`
	horizontalSpacePat    = `[ \t\f\v\x{00A0}]+`
	spaceBeforePunctPat   = ` ([.,!?;:])`
	unsafeContentPattern  = `(?i)<script|javascript:|<[^>]*\bon[a-z]+\s*=`
)

// rewrite is one regex substitution of a cleaning pass.
type rewrite struct {
	pattern     *regexp.Regexp
	replacement string
}

func newRewrite(pattern, replacement string) rewrite {
	return rewrite{pattern: regexp.MustCompile(pattern), replacement: replacement}
}

// Processor cleans, analyses and validates text. It is safe for concurrent
// use once constructed.
type Processor struct {
	maxLength int

	codeBlocks   []rewrite
	links        []rewrite
	urls         []rewrite
	emails       []rewrite
	markdown     []rewrite
	brackets     []rewrite
	horizontal   *regexp.Regexp
	beforePunct  *regexp.Regexp
	unsafe       *regexp.Regexp
	markdownHint []*regexp.Regexp

	abbreviations *strings.Replacer
	typography    *strings.Replacer
	numbers       *regexp.Regexp
}

// NewProcessor compiles the cleaning pipeline. A non-positive maxLength
// selects DefaultMaxLength.
func NewProcessor(maxLength int) *Processor {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	return &Processor{
		maxLength:  maxLength,
		codeBlocks: []rewrite{newRewrite(fencedCodePattern, "")},
		links: []rewrite{
			newRewrite(inlineLinkPattern, "$1"),
			newRewrite(referenceLinkPattern, "$1"),
			newRewrite(referenceDefPattern, ""),
		},
		urls:   []rewrite{newRewrite(bareURLPattern, "")},
		emails: []rewrite{newRewrite(emailPattern, "")},
		markdown: []rewrite{
			newRewrite(headerPattern, ""),
			newRewrite(horizontalRulePattern, ""),
			newRewrite(blockquotePattern, ""),
			newRewrite(bulletPattern, ""),
			newRewrite(numberedPattern, ""),
			newRewrite(inlineCodePattern, "$1"),
			newRewrite(boldStarPattern, "$1"),
			newRewrite(boldUnderPattern, "$1"),
			newRewrite(italicStarPattern, "$1"),
			newRewrite(italicUnderPattern, "$1"),
			newRewrite(strikethroughPattern, "$1"),
			newRewrite(`\|`, " "),
			newRewrite(tableSeparatorPattern, ""),
		},
		brackets: []rewrite{
			newRewrite(squareBracketPattern, ""),
			newRewrite(parentheticalPattern, ""),
		},
		horizontal:   regexp.MustCompile(horizontalSpacePat),
		beforePunct:  regexp.MustCompile(spaceBeforePunctPat),
		unsafe:       regexp.MustCompile(unsafeContentPattern),
		markdownHint: compileAll(markdownProbes),
		abbreviations: strings.NewReplacer(
			"Mr.", "Mister",
			"Mrs.", "Misses",
			"Ms.", "Miss",
			"Dr.", "Doctor",
			"St.", "Saint",
			"Co.", "Company",
			"Ltd.", "Limited",
			"Corp.", "Corporation",
			"Inc.", "Incorporated",
			"e.g.", "for example",
			"i.e.", "that is",
			"etc.", "et cetera",
		),
		typography: strings.NewReplacer(
			"—", " - ",
			"–", "-",
			"‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
		numbers: regexp.MustCompile(`\d+`),
	}
}

// MaxLength returns the validation limit in characters.
func (p *Processor) MaxLength() int {
	return p.maxLength
}

// Clean strips markdown, links, URLs, email addresses and bracketed asides
// and normalises whitespace. Links are resolved to their visible label before
// brackets are removed, so the label survives.
func (p *Processor) Clean(text string) string {
	if text == "" {
		return ""
	}

	cleaned := norm.NFC.String(strings.ReplaceAll(text, "\r\n", "\n"))

	// Removing a construct can expose another at the start of a line, so the
	// pipeline repeats until the output is stable. Every unstable round removes
	// at least one marker, which bounds the rounds by the input length.
	for range len(cleaned) + 1 {
		next := p.cleanOnce(cleaned)
		if next == cleaned {
			break
		}

		cleaned = next
	}

	return cleaned
}

func (p *Processor) cleanOnce(text string) string {
	for _, pass := range [][]rewrite{p.codeBlocks, p.links, p.urls, p.emails, p.markdown, p.brackets} {
		text = applyAll(text, pass)
	}

	return p.normalizeWhitespace(text)
}

// normalizeWhitespace collapses horizontal runs to one space, removes spaces
// before punctuation, trims every line and drops empty lines.
func (p *Processor) normalizeWhitespace(text string) string {
	text = p.horizontal.ReplaceAllString(text, " ")
	text = p.beforePunct.ReplaceAllString(text, "$1")

	lines := strings.Split(text, "\n")
	kept := lines[:0]

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			kept = append(kept, trimmed)
		}
	}

	return strings.Join(kept, "\n")
}

// Validate rejects empty text, text longer than the configured maximum and
// text carrying script-injection patterns.
func (p *Processor) Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return core.ErrEmptyText
	}

	length := utf8.RuneCountInString(text)
	if length > p.maxLength {
		return fmt.Errorf("%w: %d characters, limit is %d", core.ErrTooLong, length, p.maxLength)
	}

	if p.unsafe.MatchString(text) {
		return core.ErrUnsafeContent
	}

	return nil
}

// markdownProbes detect markdown constructs for the UI hint.
var markdownProbes = []string{
	`(?m)^[ \t]*#{1,6}[ \t]+`,
	`\*\*[^*\n]+\*\*|__[^_\n]+__`,
	`\*[^*\n]+\*`,
	"`[^`\n]+`",
	"```",
	`\[[^\]]*\]\([^)]*\)`,
	`(?m)^[ \t]*([-*+]|\d+\.)[ \t]+`,
	`(?m)^[ \t]*>`,
	`\|.*\|`,
}

// HasMarkdown reports whether any markdown construct is present. It does not
// influence cleaning.
func (p *Processor) HasMarkdown(text string) bool {
	for _, probe := range p.markdownHint {
		if probe.MatchString(text) {
			return true
		}
	}

	return false
}

func applyAll(text string, rewrites []rewrite) string {
	for _, step := range rewrites {
		text = step.pattern.ReplaceAllString(text, step.replacement)
	}

	return text
}

func compileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		compiled = append(compiled, regexp.MustCompile(pattern))
	}

	return compiled
}
