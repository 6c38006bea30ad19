// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

// extractCopyBufferSize defines per-entry buffer size for file copy during extraction.
const extractCopyBufferSize = 64 * 1024

// extractTask is one planned entry with its resolved destination.
type extractTask struct {
	entry   Entry
	outPath string
	// index points into report results.
	index int
}

// ExtractAll writes selected entries below dstDir and reports a per-entry outcome in TOC order.
// Per-entry failures never abort the run; the returned error is non-nil only when the
// destination root cannot be prepared, options are invalid, or ctx is canceled.
func (a *Archive) ExtractAll(ctx context.Context, dstDir string, opts ExtractOptions) (*ExtractReport, error) {
	if a == nil {
		return nil, ErrNilReader
	}

	opts.applyDefaults()
	started := time.Now()

	matcher, err := newEntryMatcher(opts.Rules, opts.MatcherOptions)
	if err != nil {
		return nil, err
	}

	rootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(rootAbs, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %w", ErrWrite, err)
	}

	results, tasks := a.planExtract(rootAbs, matcher, opts.RawNames)
	for i := range results {
		if results[i].Outcome != "" && opts.OnEntryDone != nil {
			opts.OnEntryDone(results[i])
		}
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	finish := func(task extractTask, err error, written int64, sum uint64) {
		res := &results[task.index]
		res.Err = err
		res.Outcome = classifyOutcome(err)
		if res.Outcome == OutcomeExtracted && !task.entry.IsDir() {
			res.Written = written
			res.Checksum = sum
		}

		if err != nil {
			opts.Logger.Warn("entry not extracted",
				slog.String("path", task.entry.Path),
				slog.String("outcome", string(res.Outcome)),
				slog.Any("error", err),
			)
		}

		if opts.OnEntryDone != nil {
			opts.OnEntryDone(*res)
		}
	}

	// Directories go first so empty ones exist even when no file lands in them.
	fileTasks := make([]extractTask, 0, len(tasks))
	for _, task := range tasks {
		if !task.entry.IsDir() {
			fileTasks = append(fileTasks, task)
			continue
		}

		if err := ctx.Err(); err != nil {
			finish(task, err, 0, 0)
			continue
		}

		var mkErr error
		if err := os.MkdirAll(task.outPath, 0o750); err != nil {
			mkErr = fmt.Errorf("%w %s: %w", ErrWrite, task.entry.Path, err)
		}
		finish(task, mkErr, 0, 0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, task := range fileTasks {
		if err := ctx.Err(); err != nil {
			finish(task, err, 0, 0)
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				finish(task, err, 0, 0)
				return nil
			}

			written, sum, err := a.extractFile(task)
			finish(task, err, written, sum)
			return nil
		})
	}
	_ = g.Wait()

	report := &ExtractReport{Results: results, Duration: time.Since(started)}
	for i := range results {
		switch results[i].Outcome {
		case OutcomeExtracted:
			report.Extracted++
		case OutcomeSkipped:
			report.Skipped++
		case OutcomeFailed:
			report.Failed++
		}
	}

	return report, ctx.Err()
}

// planExtract selects entries, resolves safe output paths and marks superseded duplicates.
// It returns results in TOC order and tasks for entries that still need work.
func (a *Archive) planExtract(rootAbs string, matcher *entryMatcher, rawNames bool) ([]EntryResult, []extractTask) {
	results := make([]EntryResult, 0, len(a.entries))
	planned := make([]extractTask, 0, len(a.entries))
	lastFile := make(map[string]int, len(a.entries))

	for i := range a.entries {
		entry := a.entries[i]
		if !matcher.Selected(&entry) {
			continue
		}

		res := EntryResult{Path: entry.Path, Kind: entry.Kind}
		outPath, err := outputPathFor(rootAbs, entry.Path, rawNames)
		if err != nil {
			res.Outcome = OutcomeSkipped
			res.Err = err
			results = append(results, res)
			continue
		}

		res.OutputPath = outPath
		index := len(results)
		results = append(results, res)

		if !entry.IsDir() {
			key := outputPathKey(outPath)
			if prev, exists := lastFile[key]; exists {
				results[prev].Outcome = OutcomeSkipped
				results[prev].Err = fmt.Errorf("%w: %s", ErrDuplicatePath, entry.Path)
			}
			lastFile[key] = index
		}

		planned = append(planned, extractTask{entry: entry, outPath: outPath, index: index})
	}

	tasks := planned[:0]
	for _, task := range planned {
		if results[task.index].Outcome == "" {
			tasks = append(tasks, task)
		}
	}

	return results, tasks
}

// caseFoldingFS reports whether the host filesystem folds case by default.
var caseFoldingFS = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// outputPathKey returns the key under which two output paths land on the same file.
func outputPathKey(outPath string) string {
	if caseFoldingFS {
		return strings.ToLower(outPath)
	}

	return outPath
}

// outputPathFor validates and sanitizes an archive path and resolves it under rootAbs.
func outputPathFor(rootAbs, entryPath string, rawNames bool) (string, error) {
	rel, err := normalizeExtractEntryPath(entryPath)
	if err != nil {
		return "", err
	}

	if !rawNames {
		rel = sanitizeRelativePath(rel)
	}

	return resolveOutputPath(rootAbs, rel)
}

// extractFile inflates one file entry into a temp file and renames it into place.
func (a *Archive) extractFile(task extractTask) (int64, uint64, error) {
	rc, err := a.OpenEntry(task.entry)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = rc.Close() }()

	return writeFileAtomic(task.outPath, rc)
}

// writeFileAtomic copies src to a temp file next to outPath and renames it on success.
// It returns written byte count and xxhash64 of the content.
func writeFileAtomic(outPath string, src io.Reader) (int64, uint64, error) {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, 0, fmt.Errorf("%w: create directory %s: %w", ErrWrite, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outPath)+".*.tmp")
	if err != nil {
		return 0, 0, fmt.Errorf("%w: create %s: %w", ErrWrite, outPath, err)
	}
	tmpName := tmp.Name()

	h := xxhash.New()
	buf := make([]byte, extractCopyBufferSize)
	written, copyErr := io.CopyBuffer(io.MultiWriter(tmp, h), src, buf)
	closeErr := tmp.Close()

	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		switch {
		case copyErr != nil && (errors.Is(copyErr, ErrDecompress) || errors.Is(copyErr, ErrSizeMismatch)):
			return written, 0, copyErr
		case copyErr != nil:
			return written, 0, fmt.Errorf("%w: %s: %w", ErrWrite, outPath, copyErr)
		default:
			return written, 0, fmt.Errorf("%w: close %s: %w", ErrWrite, outPath, closeErr)
		}
	}

	if err := os.Rename(tmpName, outPath); err != nil {
		_ = os.Remove(tmpName)
		return written, 0, fmt.Errorf("%w: rename to %s: %w", ErrWrite, outPath, err)
	}

	return written, h.Sum64(), nil
}

// classifyOutcome maps an entry error to its report class.
func classifyOutcome(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeExtracted
	case errors.Is(err, ErrPathSecurity),
		errors.Is(err, ErrDuplicatePath),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return OutcomeSkipped
	default:
		return OutcomeFailed
	}
}
