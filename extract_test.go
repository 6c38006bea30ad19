// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cespare/xxhash/v2"
)

// parseManual builds and parses a hand-made archive.
func parseManual(t *testing.T, layout manualLayout, entries []manualEntry) *Archive {
	t.Helper()

	a, err := Parse(buildManualArchive(t, layout, entries), ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	return a
}

// assertNoTempFiles fails when extraction left temp files under root.
func assertNoTempFiles(t *testing.T, root string) {
	t.Helper()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasSuffix(d.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
}

func TestExtractAll_RoundTrip(t *testing.T) {
	t.Parallel()

	data, _ := packBytes(t, sampleInputs(), PackOptions{Stub: []byte("MZ")})
	a, err := Parse(data, ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	root := t.TempDir()
	var done atomic.Int32
	report, err := a.ExtractAll(context.Background(), root, ExtractOptions{
		MaxWorkers:  3,
		OnEntryDone: func(EntryResult) { done.Add(1) },
	})
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}

	if report.Extracted != len(sampleInputs()) || report.Skipped != 0 || report.Failed != 0 {
		t.Fatalf("report extracted=%d skipped=%d failed=%d", report.Extracted, report.Skipped, report.Failed)
	}
	if int(done.Load()) != len(sampleInputs()) {
		t.Fatalf("OnEntryDone called %d times, want %d", done.Load(), len(sampleInputs()))
	}

	for i, in := range sampleInputs() {
		res := report.Results[i]
		if res.Path != ToWindowsPath(in.Path) {
			t.Fatalf("Results[%d].Path=%q, want %q", i, res.Path, ToWindowsPath(in.Path))
		}

		out := filepath.Join(root, filepath.FromSlash(NormalizePath(in.Path)))
		if res.OutputPath != out {
			t.Fatalf("Results[%d].OutputPath=%q, want %q", i, res.OutputPath, out)
		}

		info, err := os.Stat(out)
		if err != nil {
			t.Fatalf("stat %s: %v", out, err)
		}

		if in.Dir {
			if !info.IsDir() {
				t.Fatalf("%s is not a directory", out)
			}
			continue
		}

		rc, _ := in.Open()
		want := new(bytes.Buffer)
		_, _ = want.ReadFrom(rc)
		got, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("read %s: %v", out, err)
		}
		if !bytes.Equal(got, want.Bytes()) {
			t.Fatalf("%s content mismatch", out)
		}
		if res.Written != int64(len(got)) || res.Checksum != xxhash.Sum64(got) {
			t.Fatalf("Results[%d] written=%d checksum=%x", i, res.Written, res.Checksum)
		}
	}

	assertNoTempFiles(t, root)
}

func TestExtractAll_Idempotent(t *testing.T) {
	t.Parallel()

	data, _ := packBytes(t, sampleInputs(), PackOptions{})
	a, err := Parse(data, ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	root := t.TempDir()
	first, err := a.ExtractAll(context.Background(), root, ExtractOptions{})
	if err != nil {
		t.Fatalf("first ExtractAll: %v", err)
	}
	second, err := a.ExtractAll(context.Background(), root, ExtractOptions{})
	if err != nil {
		t.Fatalf("second ExtractAll: %v", err)
	}

	if second.Extracted != first.Extracted || second.Failed != 0 {
		t.Fatalf("second run extracted=%d failed=%d", second.Extracted, second.Failed)
	}
	for i := range first.Results {
		if first.Results[i].Checksum != second.Results[i].Checksum {
			t.Fatalf("checksum of %s changed between runs", first.Results[i].Path)
		}
	}
}

func TestExtractAll_RejectsTraversal(t *testing.T) {
	t.Parallel()

	a := parseManual(t, manualLayout{stub: []byte("MZ")}, []manualEntry{
		{name: `..\..\evil.txt`, data: []byte("pwned")},
		{name: `safe\..\..\evil2.txt`, data: []byte("pwned")},
		{name: "good.txt", data: []byte("good")},
	})

	base := t.TempDir()
	root := filepath.Join(base, "a", "b", "out")

	report, err := a.ExtractAll(context.Background(), root, ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}

	if report.Skipped != 2 || report.Extracted != 1 || report.Failed != 0 {
		t.Fatalf("report extracted=%d skipped=%d failed=%d", report.Extracted, report.Skipped, report.Failed)
	}
	for _, res := range report.Results[:2] {
		if res.Outcome != OutcomeSkipped || !errors.Is(res.Err, ErrPathSecurity) || res.OutputPath != "" {
			t.Fatalf("traversal result=%+v", res)
		}
	}

	for _, p := range []string{
		filepath.Join(base, "a", "evil.txt"),
		filepath.Join(base, "a", "b", "evil2.txt"),
		filepath.Join(base, "evil.txt"),
	} {
		if _, err := os.Stat(p); !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("%s must not exist (err=%v)", p, err)
		}
	}

	got, err := os.ReadFile(filepath.Join(root, "good.txt"))
	if err != nil || string(got) != "good" {
		t.Fatalf("good.txt=%q, %v", got, err)
	}
}

func TestExtractAll_StripsAbsolutePaths(t *testing.T) {
	t.Parallel()

	a := parseManual(t, manualLayout{}, []manualEntry{
		{name: `C:\Windows\system.ini`, data: []byte("[drivers]")},
		{name: `\temp\setup.log`, data: []byte("log")},
	})

	root := t.TempDir()
	report, err := a.ExtractAll(context.Background(), root, ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if report.Extracted != 2 {
		t.Fatalf("Extracted=%d, want 2", report.Extracted)
	}

	for rel, want := range map[string]string{
		"Windows/system.ini": "[drivers]",
		"temp/setup.log":     "log",
	} {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || string(got) != want {
			t.Fatalf("%s=%q, %v", rel, got, err)
		}
	}
}

func TestExtractAll_CorruptEntriesDoNotAbort(t *testing.T) {
	t.Parallel()

	a := parseManual(t, manualLayout{stub: []byte("MZ")}, []manualEntry{
		{name: "before.txt", data: []byte("before")},
		{name: "short.txt", data: []byte("declared longer"), lengthDelta: 3},
		{name: "long.txt", data: []byte("declared shorter"), lengthDelta: -3},
		{name: "junk.bin", data: []byte("junk"), compressed: []byte("this is not a zlib stream")},
		{name: "after.txt", data: []byte("after")},
	})

	root := t.TempDir()
	report, err := a.ExtractAll(context.Background(), root, ExtractOptions{MaxWorkers: 2})
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}

	if report.Extracted != 2 || report.Failed != 3 || report.Skipped != 0 {
		t.Fatalf("report extracted=%d skipped=%d failed=%d", report.Extracted, report.Skipped, report.Failed)
	}

	wantErr := []error{nil, ErrSizeMismatch, ErrSizeMismatch, ErrDecompress, nil}
	for i, want := range wantErr {
		res := report.Results[i]
		if want == nil {
			if res.Outcome != OutcomeExtracted {
				t.Fatalf("%s outcome=%q err=%v", res.Path, res.Outcome, res.Err)
			}
			continue
		}

		if res.Outcome != OutcomeFailed || !errors.Is(res.Err, want) {
			t.Fatalf("%s outcome=%q err=%v, want failed %v", res.Path, res.Outcome, res.Err, want)
		}
		if _, err := os.Stat(res.OutputPath); !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("failed entry %s left output (err=%v)", res.Path, err)
		}
	}

	assertNoTempFiles(t, root)
}

func TestExtractAll_OutOfBoundsEntryFails(t *testing.T) {
	t.Parallel()

	// Stored offsets run past the data area unless the bias is applied.
	data := buildManualArchive(t, manualLayout{bias: -1000}, []manualEntry{
		{name: "a.txt", data: []byte("a")},
	})
	a, err := Parse(data, ParseOptions{OffsetMode: OffsetModeStored})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	report, err := a.ExtractAll(context.Background(), t.TempDir(), ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if report.Failed != 1 || !errors.Is(report.Results[0].Err, ErrEntryOutOfBounds) {
		t.Fatalf("result=%+v", report.Results[0])
	}
}

func TestExtractAll_DuplicatePathLastWins(t *testing.T) {
	t.Parallel()

	a := parseManual(t, manualLayout{}, []manualEntry{
		{name: `cfg\app.ini`, data: []byte("first")},
		{name: `.\cfg\app.ini`, data: []byte("second")},
		{name: "other.txt", data: []byte("other")},
	})

	root := t.TempDir()
	report, err := a.ExtractAll(context.Background(), root, ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}

	first, second := report.Results[0], report.Results[1]
	if first.Outcome != OutcomeSkipped || !errors.Is(first.Err, ErrDuplicatePath) {
		t.Fatalf("first=%+v, want skipped duplicate", first)
	}
	if second.Outcome != OutcomeExtracted {
		t.Fatalf("second=%+v, want extracted", second)
	}

	got, err := os.ReadFile(second.OutputPath)
	if err != nil || string(got) != "second" {
		t.Fatalf("%s=%q, %v", second.OutputPath, got, err)
	}
}

func TestExtractAll_CaseOnlyDuplicatesFollowHost(t *testing.T) {
	t.Parallel()

	a := parseManual(t, manualLayout{}, []manualEntry{
		{name: "Readme.txt", data: []byte("upper")},
		{name: "readme.txt", data: []byte("lower")},
	})

	report, err := a.ExtractAll(context.Background(), t.TempDir(), ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}

	first, second := report.Results[0], report.Results[1]
	if second.Outcome != OutcomeExtracted {
		t.Fatalf("second=%+v, want extracted", second)
	}

	if caseFoldingFS {
		if first.Outcome != OutcomeSkipped || !errors.Is(first.Err, ErrDuplicatePath) {
			t.Fatalf("first=%+v, want skipped duplicate on case-folding host", first)
		}
		return
	}

	if first.Outcome != OutcomeExtracted {
		t.Fatalf("first=%+v, want extracted on case-sensitive host", first)
	}
	for _, res := range report.Results {
		want := map[string]string{"Readme.txt": "upper", "readme.txt": "lower"}[res.Path]
		got, err := os.ReadFile(res.OutputPath)
		if err != nil || string(got) != want {
			t.Fatalf("%s=%q, %v; want %q", res.OutputPath, got, err, want)
		}
	}
}

func TestExtractAll_ZeroSizeNewFileIsAttempted(t *testing.T) {
	t.Parallel()

	// New-variant records never infer directories from zero offset and size.
	a := parseManual(t, manualLayout{}, []manualEntry{
		{name: "empty.txt", compressed: []byte{}},
	})

	entries := a.Entries()
	if len(entries) != 1 || a.Variant() != VariantNew || entries[0].Kind != KindFile {
		t.Fatalf("variant=%s entries=%+v, want one new-variant file", a.Variant(), entries)
	}
	if entries[0].Offset != 0 || entries[0].Size != 0 {
		t.Fatalf("entry=%+v, want zero offset and size", entries[0])
	}

	report, err := a.ExtractAll(context.Background(), t.TempDir(), ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}

	res := report.Results[0]
	if report.Failed != 1 || res.Kind != KindFile || res.Outcome != OutcomeFailed || !errors.Is(res.Err, ErrDecompress) {
		t.Fatalf("result=%+v, want failed file with ErrDecompress", res)
	}
}

func TestExtractAll_OnEntryDoneSeesEveryResult(t *testing.T) {
	t.Parallel()

	a := parseManual(t, manualLayout{stub: []byte("MZ")}, []manualEntry{
		{name: `..\evil.txt`, data: []byte("pwned")},
		{name: "dup.txt", data: []byte("first")},
		{name: "dup.txt", data: []byte("second")},
		{name: "junk.bin", data: []byte("junk"), compressed: []byte("not zlib")},
		{name: "dir", dir: true},
	})

	var calls atomic.Int32
	seen := make(chan EntryResult, 8)
	report, err := a.ExtractAll(context.Background(), t.TempDir(), ExtractOptions{
		MaxWorkers: 2,
		OnEntryDone: func(res EntryResult) {
			calls.Add(1)
			seen <- res
		},
	})
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	close(seen)

	if int(calls.Load()) != len(report.Results) {
		t.Fatalf("OnEntryDone calls=%d, want %d", calls.Load(), len(report.Results))
	}

	outcomes := make(map[Outcome]int)
	for res := range seen {
		if res.Outcome == "" {
			t.Fatalf("callback got result without outcome: %+v", res)
		}
		outcomes[res.Outcome]++
	}
	if outcomes[OutcomeSkipped] != 2 || outcomes[OutcomeFailed] != 1 || outcomes[OutcomeExtracted] != 2 {
		t.Fatalf("callback outcomes=%v", outcomes)
	}
}

func TestExtractAll_IncludeRules(t *testing.T) {
	t.Parallel()

	a := parseManual(t, manualLayout{}, []manualEntry{
		{name: `docs\manual.txt`, data: []byte("manual")},
		{name: `docs\faq.txt`, data: []byte("faq")},
		{name: `bin\tool.exe`, data: []byte("tool")},
	})

	root := t.TempDir()
	report, err := a.ExtractAll(context.Background(), root, ExtractOptions{Rules: IncludeRules("docs/**")})
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}

	if len(report.Results) != 2 || report.Extracted != 2 {
		t.Fatalf("results=%+v", report.Results)
	}
	if _, err := os.Stat(filepath.Join(root, "bin")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("excluded entry was written (err=%v)", err)
	}
}

func TestExtractAll_CreatesEmptyDirectories(t *testing.T) {
	t.Parallel()

	a := parseManual(t, manualLayout{variant: VariantOld, stub: []byte("MZ")}, []manualEntry{
		{name: "logs", dir: true},
		{name: `data\cache\tmp`, dir: true},
		{name: "empty.txt", compressed: emptyZlibStream},
	})

	root := t.TempDir()
	report, err := a.ExtractAll(context.Background(), root, ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if report.Extracted != 3 {
		t.Fatalf("Extracted=%d, want 3: %+v", report.Extracted, report.Results)
	}

	for _, rel := range []string{"logs", "data/cache/tmp"} {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || !info.IsDir() {
			t.Fatalf("%s not created as directory (err=%v)", rel, err)
		}
	}

	info, err := os.Stat(filepath.Join(root, "empty.txt"))
	if err != nil || info.IsDir() || info.Size() != 0 {
		t.Fatalf("empty.txt stat=%v, %v", info, err)
	}
}

func TestExtractAll_SanitizesNames(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("raw names are not representable on Windows")
	}

	entries := []manualEntry{
		{name: `con\what?.txt`, data: []byte("q")},
	}

	root := t.TempDir()
	report, err := parseManual(t, manualLayout{}, entries).ExtractAll(context.Background(), root, ExtractOptions{})
	if err != nil || report.Extracted != 1 {
		t.Fatalf("sanitized ExtractAll: %v %+v", err, report)
	}
	if want := filepath.Join(root, "_con", "what_.txt"); report.Results[0].OutputPath != want {
		t.Fatalf("OutputPath=%q, want %q", report.Results[0].OutputPath, want)
	}

	rawRoot := t.TempDir()
	report, err = parseManual(t, manualLayout{}, entries).ExtractAll(context.Background(), rawRoot, ExtractOptions{RawNames: true})
	if err != nil || report.Extracted != 1 {
		t.Fatalf("raw ExtractAll: %v %+v", err, report)
	}
	if want := filepath.Join(rawRoot, "con", "what?.txt"); report.Results[0].OutputPath != want {
		t.Fatalf("OutputPath=%q, want %q", report.Results[0].OutputPath, want)
	}
}

func TestExtractAll_Canceled(t *testing.T) {
	t.Parallel()

	data, _ := packBytes(t, sampleInputs(), PackOptions{})
	a, err := Parse(data, ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := t.TempDir()
	report, err := a.ExtractAll(ctx, root, ExtractOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ExtractAll err=%v, want context.Canceled", err)
	}
	if report == nil || report.Skipped != len(sampleInputs()) || report.Extracted != 0 {
		t.Fatalf("report=%+v", report)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("canceled extraction wrote %d entries", len(entries))
	}
}

func TestClassifyOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want Outcome
	}{
		{err: nil, want: OutcomeExtracted},
		{err: ErrPathSecurity, want: OutcomeSkipped},
		{err: ErrDuplicatePath, want: OutcomeSkipped},
		{err: context.Canceled, want: OutcomeSkipped},
		{err: ErrDecompress, want: OutcomeFailed},
		{err: ErrSizeMismatch, want: OutcomeFailed},
		{err: ErrWrite, want: OutcomeFailed},
		{err: ErrEntryOutOfBounds, want: OutcomeFailed},
	}

	for _, tt := range tests {
		if got := classifyOutcome(tt.err); got != tt.want {
			t.Fatalf("classifyOutcome(%v)=%q, want %q", tt.err, got, tt.want)
		}
	}
}
