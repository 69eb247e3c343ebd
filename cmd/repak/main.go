// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

// repak inspects, extracts and builds pak archives.
//
// Usage:
//
//	repak [global flags] <command> [flags] <args>
//
// Commands: info, list, get, unpack, pack, hash.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/woozymasta/pak"
	"github.com/woozymasta/pak/oodle"
)

// command is one repak subcommand.
type command struct {
	run     func(ctx context.Context, env *env, args []string) error
	name    string
	summary string
}

// env carries global options shared by every subcommand.
type env struct {
	stdout     io.Writer
	stderr     io.Writer
	logger     *slog.Logger
	key        *pak.Key
	codecs     *pak.CodecSet
	oodle      oodle.Options
	aesKey     string
	maxVersion string
	logFormat  string
	verbose    bool
	quiet      bool
	skipHash   bool
}

var commands = []command{
	{name: "info", summary: "print archive header and mount point", run: runInfo},
	{name: "list", summary: "list entry paths", run: runList},
	{name: "get", summary: "write one entry to stdout", run: runGet},
	{name: "unpack", summary: "extract entries to a directory", run: runUnpack},
	{name: "pack", summary: "build an archive from a directory", run: runPack},
	{name: "hash", summary: "print BLAKE3 digest of archive entries", run: runHash},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	if err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}

		os.Exit(1)
	}
}

// run parses global flags, builds shared state and dispatches a subcommand.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	e := &env{stdout: stdout, stderr: stderr}

	flagSet := pflag.NewFlagSet("repak", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	e.addGlobalFlags(flagSet)
	flagSet.Usage = func() { printHelp(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return pflag.ErrHelp
	}

	if err := e.init(); err != nil {
		return err
	}

	for _, cmd := range commands {
		if cmd.name == rest[0] {
			return cmd.run(ctx, e, rest[1:])
		}
	}

	return fmt.Errorf("unknown command %q (run repak --help)", rest[0])
}

// addGlobalFlags registers flags accepted before the subcommand name.
func (e *env) addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&e.aesKey, "aes-key", os.Getenv("REPAK_AES_KEY"), "256-bit AES key as hex or base64 (\"-\" prompts on the terminal)")
	fs.StringVar(&e.maxVersion, "max-version", "", "newest pak version to accept (V1, V2, V3)")
	fs.BoolVarP(&e.verbose, "verbose", "v", false, "enable debug logging")
	fs.BoolVarP(&e.quiet, "quiet", "q", false, "log errors only")
	fs.StringVar(&e.logFormat, "log-format", "auto", "log format: auto, text or json")
	fs.BoolVar(&e.skipHash, "skip-hash-check", false, "do not verify entry content hashes")
	fs.StringVar(&e.oodle.DLLPath, "oodle-dll", "", "path to "+oodle.DLLName)
	fs.StringVar(&e.oodle.URL, "oodle-url", "", "download URL used when the Oodle library is missing")
	fs.StringVar(&e.oodle.SHA256, "oodle-sha256", "", "expected SHA-256 of the downloaded Oodle library")
}

// init builds logger, key and codec set from parsed global flags.
func (e *env) init() error {
	level := slog.LevelInfo
	switch {
	case e.verbose:
		level = slog.LevelDebug
	case e.quiet:
		level = slog.LevelError
	}

	logger, err := newLogger(e.stderr, e.logFormat, level)
	if err != nil {
		return err
	}
	e.logger = logger

	if e.aesKey == "-" {
		if e.aesKey, err = promptKey(e.stderr); err != nil {
			return err
		}
	}

	if e.aesKey != "" {
		key, err := pak.ParseKey(e.aesKey)
		if err != nil {
			return err
		}

		e.key = key
	}

	e.codecs = pak.NewCodecSet(pak.WithOodleLoader(oodle.Loader(e.oodle)))
	return nil
}

// newLogger builds the command logger. In auto mode records are text on a
// terminal and JSON when stderr is piped or redirected.
func newLogger(w io.Writer, format string, level slog.Level) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "auto":
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits int
			return slog.New(slog.NewTextHandler(w, opts)), nil
		}

		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// promptKey reads the AES key from the terminal with echo disabled.
func promptKey(prompt io.Writer) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits int
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: --aes-key - needs an interactive terminal", pak.ErrAES)
	}

	fmt.Fprint(prompt, "AES key: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}

	return string(raw), nil
}

// readerOptions returns reader options derived from global flags.
func (e *env) readerOptions() (pak.ReaderOptions, error) {
	opts := pak.ReaderOptions{
		Key:           e.key,
		Codecs:        e.codecs,
		SkipHashCheck: e.skipHash,
	}

	if e.maxVersion != "" {
		v, err := pak.ParseVersion(e.maxVersion)
		if err != nil {
			return opts, err
		}

		opts.Version = v
	}

	return opts, nil
}

// open opens archive at path with global reader options.
func (e *env) open(path string) (*pak.Reader, error) {
	opts, err := e.readerOptions()
	if err != nil {
		return nil, err
	}

	return pak.OpenWithOptions(path, opts)
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "repak inspects, extracts and builds pak archives.\n\nUsage:\n  repak [global flags] <command> [flags] <args>\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.name, cmd.summary)
	}

	fmt.Fprintf(w, "\nGlobal flags:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
}
