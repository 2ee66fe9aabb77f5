// main package for the voice-studio command-line client
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-studio/internal/synthesis"
	"github.com/book-expert/voice-studio/internal/text"
	"github.com/book-expert/voice-studio/internal/voice"
	"github.com/book-expert/voice-studio/internal/wave"
)

// Commands.
const (
	cmdClean      = "clean"
	cmdAnalyze    = "analyze"
	cmdChunk      = "chunk"
	cmdConvert    = "convert"
	cmdSynthesize = "synthesize"
	cmdHealth     = "health"
)

// Flag names and descriptions.
const (
	flagText      = "text"
	flagFile      = "file"
	flagOutput    = "output"
	flagServer    = "server"
	flagLanguage  = "language"
	flagVoice     = "voice"
	flagRate      = "rate"
	flagPitch     = "pitch"
	flagLimit     = "limit"
	flagMaxLength = "max-length"
	flagTimeout   = "timeout"

	flagTextDesc      = "Text to process"
	flagFileDesc      = "Read the text (or audio for convert) from this file; - reads stdin"
	flagOutputDesc    = "Output file path"
	flagServerDesc    = "Base URL of a running voice-studio server"
	flagLanguageDesc  = "Language code (vi, en, fr); empty detects it"
	flagVoiceDesc     = "Stock voice id or cloned profile id"
	flagRateDesc      = "Speaking rate (0 keeps the stored default)"
	flagPitchDesc     = "Pitch offset in Hz"
	flagLimitDesc     = "Maximum characters per chunk"
	flagMaxLengthDesc = "Maximum accepted text length"
	flagTimeoutDesc   = "Request timeout"
)

const (
	defaultServer  = "http://127.0.0.1:8080"
	defaultTimeout = 2 * time.Minute
	logFileName    = "voice-cli.log"
	usage          = "usage: voice-cli <clean|analyze|chunk|convert|synthesize|health> [flags]"
)

var (
	errUsage       = errors.New(usage)
	errNoInput     = errors.New("either -text or -file must be provided")
	errBothInputs  = errors.New("cannot specify both -text and -file")
	errNoOutput    = errors.New("-output is required")
	errServerError = errors.New("server returned an error")
)

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	log    *logger.Logger
	client *http.Client
}

func main() {
	log, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	app := &cli{stdin: os.Stdin, stdout: os.Stdout, log: log, client: &http.Client{}}

	err = app.run(context.Background(), os.Args[1:])

	_ = log.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	command, rest := args[0], args[1:]

	switch command {
	case cmdClean:
		return c.clean(rest)
	case cmdAnalyze:
		return c.analyze(rest)
	case cmdChunk:
		return c.chunk(rest)
	case cmdConvert:
		return c.convert(rest)
	case cmdSynthesize:
		return c.synthesize(ctx, rest)
	case cmdHealth:
		return c.health(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}
}

type textFlags struct {
	text      string
	file      string
	maxLength int
}

func bindTextFlags(set *flag.FlagSet, flags *textFlags) *textFlags {
	set.StringVar(&flags.text, flagText, "", flagTextDesc)
	set.StringVar(&flags.file, flagFile, "", flagFileDesc)
	set.IntVar(&flags.maxLength, flagMaxLength, text.DefaultMaxLength, flagMaxLengthDesc)

	return flags
}

func (c *cli) readInput(flags *textFlags) (string, error) {
	switch {
	case flags.text != "" && flags.file != "":
		return "", errBothInputs
	case flags.text != "":
		return flags.text, nil
	case flags.file == "":
		return "", errNoInput
	}

	data, err := c.readFile(flags.file)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func (c *cli) readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(c.stdin)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}

func (c *cli) printJSON(value any) error {
	encoder := json.NewEncoder(c.stdout)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

func (c *cli) clean(args []string) error {
	set := flag.NewFlagSet(cmdClean, flag.ContinueOnError)
	flags := bindTextFlags(set, &textFlags{})

	err := set.Parse(args)
	if err != nil {
		return err
	}

	input, err := c.readInput(flags)
	if err != nil {
		return err
	}

	processor := text.NewProcessor(flags.maxLength)

	err = processor.Validate(input)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(c.stdout, processor.Clean(input))

	return err
}

func (c *cli) analyze(args []string) error {
	set := flag.NewFlagSet(cmdAnalyze, flag.ContinueOnError)
	flags := bindTextFlags(set, &textFlags{})

	err := set.Parse(args)
	if err != nil {
		return err
	}

	input, err := c.readInput(flags)
	if err != nil {
		return err
	}

	orchestrator := synthesis.New(synthesis.Dependencies{
		Processor: text.NewProcessor(flags.maxLength),
	}, synthesis.Config{}, c.log)

	analysis, err := orchestrator.Analyze(input)
	if err != nil {
		return err
	}

	return c.printJSON(analysis)
}

func (c *cli) chunk(args []string) error {
	set := flag.NewFlagSet(cmdChunk, flag.ContinueOnError)
	flags := bindTextFlags(set, &textFlags{})
	limit := set.Int(flagLimit, synthesis.DefaultCloudChunkChars, flagLimitDesc)

	err := set.Parse(args)
	if err != nil {
		return err
	}

	input, err := c.readInput(flags)
	if err != nil {
		return err
	}

	processor := text.NewProcessor(flags.maxLength)

	err = processor.Validate(input)
	if err != nil {
		return err
	}

	return c.printJSON(text.Chunk(processor.Clean(input), *limit))
}

// convert rewrites an audio file as a canonical WAV container.
func (c *cli) convert(args []string) error {
	set := flag.NewFlagSet(cmdConvert, flag.ContinueOnError)
	input := set.String(flagFile, "", flagFileDesc)
	output := set.String(flagOutput, "", flagOutputDesc)

	err := set.Parse(args)
	if err != nil {
		return err
	}

	if *input == "" {
		return errNoInput
	}

	if *output == "" {
		return errNoOutput
	}

	data, err := c.readFile(*input)
	if err != nil {
		return err
	}

	sample, err := wave.Canonicalize(data, wave.Source{Format: synthesis.FormatFor(filepath.Ext(*input))})
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", *input, err)
	}

	err = os.WriteFile(*output, sample.Data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", *output, err)
	}

	c.log.Info("Converted %s to %s (%.2f s)", *input, *output, sample.Duration)
	_, err = fmt.Fprintf(c.stdout, "%s: %.2f s, %d bytes\n", *output, sample.Duration, sample.Size)

	return err
}

type synthesizeFlags struct {
	textFlags

	server   string
	output   string
	language string
	voice    string
	rate     float64
	pitch    float64
	timeout  time.Duration
}

func (c *cli) synthesize(ctx context.Context, args []string) error {
	set := flag.NewFlagSet(cmdSynthesize, flag.ContinueOnError)
	flags := &synthesizeFlags{}
	bindTextFlags(set, &flags.textFlags)
	set.StringVar(&flags.server, flagServer, defaultServer, flagServerDesc)
	set.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	set.StringVar(&flags.language, flagLanguage, "", flagLanguageDesc)
	set.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	set.Float64Var(&flags.rate, flagRate, 0, flagRateDesc)
	set.Float64Var(&flags.pitch, flagPitch, 0, flagPitchDesc)
	set.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)

	err := set.Parse(args)
	if err != nil {
		return err
	}

	if flags.output == "" {
		return errNoOutput
	}

	input, err := c.readInput(&flags.textFlags)
	if err != nil {
		return err
	}

	req := synthesis.Request{Text: input, Language: flags.language, VoiceID: flags.voice}
	if flags.rate > 0 {
		req.Settings.Rate = voice.Float(flags.rate)
	}

	if flags.pitch != 0 {
		req.Settings.Pitch = voice.Float(flags.pitch)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, flags.server+"/api/v1/tts/synthesize", bytes.NewReader(body))
	if err != nil {
		return err
	}

	audio, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}

	err = os.WriteFile(flags.output, audio, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", flags.output, err)
	}

	c.log.Info("Synthesized %d bytes with %s into %s", len(audio), resp.Header.Get("X-Provider"), flags.output)
	_, err = fmt.Fprintf(c.stdout, "%s: %d bytes (%s, %s, %s chunks)\n", flags.output, len(audio),
		resp.Header.Get("X-Provider"), resp.Header.Get("X-Language"), resp.Header.Get("X-Chunks"))

	return err
}

func (c *cli) health(ctx context.Context, args []string) error {
	set := flag.NewFlagSet(cmdHealth, flag.ContinueOnError)
	server := set.String(flagServer, defaultServer, flagServerDesc)
	timeout := set.Duration(flagTimeout, 10*time.Second, flagTimeoutDesc)

	err := set.Parse(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, *server+"/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var report json.RawMessage

	err = json.NewDecoder(resp.Body).Decode(&report)
	if err != nil {
		return fmt.Errorf("failed to decode health report: %w", err)
	}

	return c.printJSON(report)
}

// do sends a request and turns non-2xx answers into errors carrying the
// server's message.
func (c *cli) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", url, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return resp, nil
	}

	defer resp.Body.Close()

	var failure struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(payload, &failure) != nil || failure.Error == "" {
		failure.Error = strings.TrimSpace(string(payload))
	}

	return nil, fmt.Errorf("%w: %d %s", errServerError, resp.StatusCode, failure.Error)
}
