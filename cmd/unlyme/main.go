// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

// Command unlyme lists and extracts Lyme SFX archives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/woozymasta/lyme"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

type config struct {
	format    string
	byteOrder string
	input     string
	outDir    string
	includes  patternList
	workers   int
	posix     bool
	list      bool
	extract   bool
	verbose   bool
}

// patternList collects repeated -i flags.
type patternList []string

func (p *patternList) String() string { return strings.Join(*p, ",") }

func (p *patternList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}

		_, _ = fmt.Fprintln(stderr, "unlyme:", err)
		return exitUsage
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	parseOpts, err := cfg.parseOptions(logger)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "unlyme:", err)
		return exitUsage
	}

	archive, err := openArchive(cfg.input, stdin, parseOpts)
	if err != nil {
		logger.Error("cannot read archive", slog.String("input", cfg.inputName()), slog.Any("error", err))
		return exitFailed
	}

	logger.Debug("archive detected",
		slog.String("variant", string(archive.Variant())),
		slog.String("byte_order", string(archive.ByteOrder())),
		slog.Int64("bias", archive.Bias()),
		slog.String("sfx", humanize.IBytes(uint64(len(archive.SFX())))),
	)

	if cfg.extract {
		return extract(ctx, archive, cfg, stdout, logger)
	}

	if err := list(archive, cfg.posix, stdout); err != nil {
		logger.Error("cannot write listing", slog.Any("error", err))
		return exitFailed
	}

	return exitOK
}

// parseFlags parses command line into config.
func parseFlags(args []string, stderr io.Writer) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("unlyme", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(stderr, "usage: unlyme [-f auto|new|old] [-b auto|big|little] [-p] [-l|-e] [-o dir] [-w N] [-i pattern]... [-v] [file]")
		fs.PrintDefaults()
	}

	fs.StringVar(&cfg.format, "f", "auto", "TOC record format: auto, new, old")
	fs.StringVar(&cfg.byteOrder, "b", "auto", "TOC byte order: auto, big, little")
	fs.BoolVar(&cfg.posix, "p", false, "print paths with forward slashes")
	fs.BoolVar(&cfg.list, "l", false, "list entries (default)")
	fs.BoolVar(&cfg.extract, "e", false, "extract entries")
	fs.StringVar(&cfg.outDir, "o", ".", "output directory for -e")
	fs.IntVar(&cfg.workers, "w", 0, "extraction workers (0 means GOMAXPROCS)")
	fs.Var(&cfg.includes, "i", "extract only paths matching pattern (repeatable)")
	fs.BoolVar(&cfg.verbose, "v", false, "verbose output")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if cfg.list && cfg.extract {
		return config{}, errors.New("-l and -e are mutually exclusive")
	}

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.input = fs.Arg(0)
	default:
		return config{}, fmt.Errorf("expected at most one input file, got %d", fs.NArg())
	}

	return cfg, nil
}

// parseOptions maps flag values to library options.
func (c *config) parseOptions(logger *slog.Logger) (lyme.ParseOptions, error) {
	opts := lyme.ParseOptions{Logger: logger}

	switch c.format {
	case "auto", "":
	case "new":
		opts.Variant = lyme.VariantNew
	case "old":
		opts.Variant = lyme.VariantOld
	default:
		return opts, fmt.Errorf("unknown format %q", c.format)
	}

	switch c.byteOrder {
	case "auto", "":
	case "big":
		opts.ByteOrder = lyme.ByteOrderBig
	case "little":
		opts.ByteOrder = lyme.ByteOrderLittle
	default:
		return opts, fmt.Errorf("unknown byte order %q", c.byteOrder)
	}

	return opts, nil
}

func (c *config) inputName() string {
	if c.input == "" {
		return "<stdin>"
	}

	return c.input
}

// openArchive parses the named file, or stdin when name is empty.
func openArchive(name string, stdin io.Reader, opts lyme.ParseOptions) (*lyme.Archive, error) {
	if name == "" {
		return lyme.OpenReader(stdin, opts)
	}

	return lyme.OpenWithOptions(name, opts)
}

// list prints one row per entry.
func list(a *lyme.Archive, posix bool, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	var (
		files int
		total uint64
	)
	for info := range a.List() {
		if info.Kind == lyme.KindDirectory {
			_, _ = fmt.Fprintf(tw, "<dir>\t\t%s\n", displayPath(info.Path, posix))
			continue
		}

		files++
		total += uint64(info.Length)
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n",
			humanize.IBytes(uint64(info.Length)),
			humanize.IBytes(uint64(info.Size)),
			displayPath(info.Path, posix),
		)
	}

	_, _ = fmt.Fprintf(tw, "%s\t\t%d files\n", humanize.IBytes(total), files)
	return tw.Flush()
}

// extract writes selected entries and prints a summary line.
func extract(ctx context.Context, a *lyme.Archive, cfg config, stdout io.Writer, logger *slog.Logger) int {
	opts := lyme.ExtractOptions{
		Logger:     logger,
		MaxWorkers: cfg.workers,
		Rules:      lyme.IncludeRules(cfg.includes...),
	}

	if cfg.verbose {
		var mu sync.Mutex
		opts.OnEntryDone = func(res lyme.EntryResult) {
			if res.Outcome != lyme.OutcomeExtracted {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			_, _ = fmt.Fprintln(stdout, displayPath(res.Path, cfg.posix))
		}
	}

	report, err := a.ExtractAll(ctx, cfg.outDir, opts)
	if report == nil {
		logger.Error("extraction aborted", slog.Any("error", err))
		return exitFailed
	}

	var written int64
	for i := range report.Results {
		written += report.Results[i].Written
	}

	_, _ = fmt.Fprintf(stdout, "extracted %d, skipped %d, failed %d (%s) in %s\n",
		report.Extracted, report.Skipped, report.Failed,
		humanize.IBytes(uint64(max(written, 0))), //nolint:gosec // clamped above
		report.Duration.Round(time.Millisecond),
	)

	if err != nil {
		logger.Error("extraction interrupted", slog.Any("error", err))
		return exitFailed
	}

	if report.Failed > 0 {
		return exitFailed
	}

	return exitOK
}

// displayPath renders an archive path in Windows or POSIX form.
func displayPath(p string, posix bool) string {
	if posix {
		return strings.ReplaceAll(p, `\`, "/")
	}

	return p
}
