package text_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/text"
)

// processorTestCase defines a standard test case for the processor.
type processorTestCase struct {
	name     string
	input    string
	expected string
}

// runProcessorTests runs table-driven tests for a processing function.
func runProcessorTests(
	t *testing.T,
	tests []processorTestCase,
	processFunc func(p *text.Processor, input string) string,
) {
	t.Helper()

	processor := text.NewProcessor(0)

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, processFunc(processor, testCase.input))
		})
	}
}

var cleanCases = []processorTestCase{
	{
		name:     "heading bold and link",
		input:    "# Hello\n\nThis is **bold** and a [link](http://x.com).",
		expected: "Hello\nThis is bold and a link.",
	},
	{name: "empty", input: "", expected: ""},
	{name: "bare url", input: "See https://example.com/x for details", expected: "See for details"},
	{name: "email", input: "Contact me at a.b@example.org.", expected: "Contact me at."},
	{name: "fenced code", input: "```go\nfmt.Println()\n```\nAfter code", expected: "After code"},
	{name: "list markers", input: "- one\n- two\n1. three", expected: "one\ntwo\nthree"},
	{name: "blockquote and italic", input: "> quoted *text*", expected: "quoted text"},
	{name: "table", input: "| a | b |\n|---|---|\n| 1 | 2 |", expected: "a b\n1 2"},
	{
		name:     "reference link and definition",
		input:    "Reference [docs][1] here.\n\n[1]: http://example.com",
		expected: "Reference docs here.",
	},
	{name: "asides", input: "Aside (see note) and [1] citation", expected: "Aside and citation"},
	{name: "underscores inside words", input: "snake_case stays, _this_ goes", expected: "snake_case stays, this goes"},
	{name: "strikethrough and inline code", input: "~~old~~ new `code`", expected: "old new code"},
	{name: "whitespace", input: "# Title\n\n\n\nBody   text\t here .", expected: "Title\nBody text here."},
	{name: "emphasis", input: "**Bold** and __strong__ and *it*", expected: "Bold and strong and it"},
	{name: "horizontal rules", input: "***\nText\n---", expected: "Text"},
	{name: "construct exposed by aside removal", input: "(x) # Title", expected: "Title"},
	{name: "stacked headers", input: "# # # # # # x", expected: "x"},
	{name: "stacked bullets", input: "- - - - - - item", expected: "item"},
	{name: "stacked quotes and numbers", input: "> 1. > 2. - # deep", expected: "deep"},
	{name: "vietnamese kept", input: "**Xin chào** các bạn!", expected: "Xin chào các bạn!"},
}

func TestProcessor_Clean(t *testing.T) {
	t.Parallel()

	runProcessorTests(t, cleanCases, func(p *text.Processor, input string) string {
		return p.Clean(input)
	})
}

func TestProcessor_CleanIsIdempotent(t *testing.T) {
	t.Parallel()

	runProcessorTests(t, cleanCases, func(p *text.Processor, input string) string {
		once := p.Clean(input)
		if p.Clean(once) != once {
			return "not idempotent: " + once
		}

		return once
	})
}

func TestProcessor_HasMarkdown(t *testing.T) {
	t.Parallel()

	processor := text.NewProcessor(0)

	for input, expected := range map[string]bool{
		"# Heading":            true,
		"some **bold** words":  true,
		"`code`":               true,
		"[label](http://x.io)": true,
		"- item":               true,
		"> quote":              true,
		"| a | b |":            true,
		"Plain text only.":     false,
		"2 * 3 = 6":            false,
	} {
		assert.Equal(t, expected, processor.HasMarkdown(input), input)
	}
}

func TestProcessor_Validate(t *testing.T) {
	t.Parallel()

	processor := text.NewProcessor(0)

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty", input: "", wantErr: core.ErrEmptyText},
		{name: "whitespace only", input: " \n\t ", wantErr: core.ErrEmptyText},
		{name: "at limit", input: strings.Repeat("a", text.DefaultMaxLength)},
		{name: "multibyte at limit", input: strings.Repeat("ạ", text.DefaultMaxLength)},
		{name: "over limit", input: strings.Repeat("a", text.DefaultMaxLength+1), wantErr: core.ErrTooLong},
		{name: "script tag", input: "hi <script>alert(1)</script>", wantErr: core.ErrUnsafeContent},
		{name: "javascript url", input: "click JavaScript:void(0)", wantErr: core.ErrUnsafeContent},
		{name: "event handler", input: `<img src=x onerror="steal()">`, wantErr: core.ErrUnsafeContent},
		{name: "ordinary prose", input: "Once upon a time, on a hill."},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := processor.Validate(testCase.input)
			if testCase.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestProcessor_CustomMaxLength(t *testing.T) {
	t.Parallel()

	processor := text.NewProcessor(5)

	assert.Equal(t, 5, processor.MaxLength())
	require.NoError(t, processor.Validate("abcde"))
	require.ErrorIs(t, processor.Validate("abcdef"), core.ErrTooLong)
}
