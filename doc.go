// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

/*
Package lyme provides read, list, extract, and pack operations for Lyme SFX
archives: a self-extractor executable followed by zlib payloads, a table of
contents (TOC) read backward from the end, a record count, a 4-byte version
and the "!SFX_LYME!" signature.

The TOC is ambiguous by construction. Count and record integers may be big- or
little-endian, and records may or may not carry a trailing directory flag.
Parse tries every permitted interpretation and keeps the one whose TOC spans
the fewest bytes; ties prefer the flagged ("new") shape and big-endian.

Stored payload offsets are often shifted by a constant. By default the shift
(bias) is inferred from the rule that the last payload ends exactly where the
TOC begins; OffsetModeStored disables this.

# Reading

	a, err := lyme.Open("setup.exe")
	if err != nil {
	    return err
	}
	for info := range a.List() {
	    fmt.Println(info.Kind, info.Path, info.Length)
	}
	data, err := a.ReadEntry(`docs\readme.txt`)

Force a shape when auto-detection picks the wrong one:

	a, err := lyme.OpenWithOptions("setup.exe", lyme.ParseOptions{
	    Variant:   lyme.VariantOld,
	    ByteOrder: lyme.ByteOrderLittle,
	})

# Extracting

ExtractAll never aborts on a single bad entry. Paths that would escape the
destination are skipped, corrupt payloads fail, and everything else is written
atomically:

	report, err := a.ExtractAll(ctx, "out/", lyme.ExtractOptions{
	    MaxWorkers: 4,
	    Rules:      lyme.IncludeRules("docs/**"),
	})
	if err != nil {
	    return err
	}
	for _, res := range report.Results {
	    if res.Outcome == lyme.OutcomeFailed {
	        log.Printf("%s: %v", res.Path, res.Err)
	    }
	}

Names are sanitized for the host filesystem by default; RawNames keeps them
as stored while traversal checks still apply.

# Packing

Pack builds archives for tests and tooling:

	res, err := lyme.Pack(ctx, out, []lyme.Input{
	    {Path: "bin", Dir: true},
	    {Path: `bin\tool.exe`, Open: func() (io.ReadCloser, error) { return os.Open("tool.exe") }},
	}, lyme.PackOptions{Stub: stub, ByteOrder: lyme.ByteOrderLittle})

# Editing

Editor stages changes to an existing archive and rewrites it on Commit,
keeping the SFX stub, suffix and TOC layout of the source:

	ed, err := lyme.OpenEditor("setup.exe", lyme.EditOptions{BackupKeep: 1})
	if err != nil {
	    return err
	}
	_ = ed.Replace(lyme.Input{Path: `docs\readme.txt`, Open: openReadme})
	_ = ed.DeleteDir("docs/old")
	_, err = ed.Commit(ctx)
*/
package lyme
