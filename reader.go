// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
)

// Archive is a parsed Lyme container. It is immutable and safe for concurrent extraction.
type Archive struct {
	// data is the full input; never mutated.
	data []byte
	// entries stores records in TOC order.
	entries []Entry
	// warnings holds non-fatal parse findings.
	warnings []error
	// version is the raw trailer version text.
	version string
	// signature is the trailer magic, current or legacy.
	signature string
	// variant is the detected TOC record shape.
	variant Variant
	// byteOrder is the detected dword encoding.
	byteOrder ByteOrder
	// bias is added to stored offsets to get absolute positions.
	bias int64
	// tocStart is the first TOC byte and the end of the data area.
	tocStart int
	// sfxEnd is the first payload byte and the end of the SFX stub.
	sfxEnd int
	// suffixPos is the first byte after signature.
	suffixPos int
}

// Open reads a Lyme archive by path and parses it.
func Open(path string) (*Archive, error) {
	return OpenWithOptions(path, ParseOptions{})
}

// OpenWithOptions reads a Lyme archive by path and parses it using explicit options.
func OpenWithOptions(path string, opts ParseOptions) (*Archive, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("open Lyme archive: %w", err)
	}

	return Parse(data, opts)
}

// OpenReader reads all of r and parses it as a Lyme archive.
func OpenReader(r io.Reader, opts ParseOptions) (*Archive, error) {
	if r == nil {
		return nil, ErrNilReader
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read Lyme archive: %w", err)
	}

	return Parse(data, opts)
}

// Parse locates the trailer, decodes the TOC and resolves the offset bias.
// The returned Archive borrows data; callers must not modify it afterwards.
func Parse(data []byte, opts ParseOptions) (*Archive, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	t, err := locateTrailer(data)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		data:      data,
		version:   t.version,
		signature: t.signature,
		suffixPos: t.suffixPos,
	}

	if warn := t.checkVersion(); warn != nil {
		logger.Warn("unexpected archive version", slog.String("version", t.version), slog.String("known", KnownVersion))
		a.warnings = append(a.warnings, warn)
	}

	walk, err := decodeTOC(data, t, opts, logger)
	if err != nil {
		return nil, err
	}

	a.entries = walk.entries
	a.variant = walk.variant
	a.byteOrder = walk.order
	a.tocStart = walk.start

	if opts.OffsetMode == OffsetModeBiased {
		a.bias = resolveBias(a.entries, a.tocStart)
	}
	a.sfxEnd = min(sfxEnd(a.entries, a.bias, a.tocStart), a.tocStart)

	logger.Debug("archive parsed",
		slog.Int("entries", len(a.entries)),
		slog.String("variant", string(a.variant)),
		slog.String("byte_order", string(a.byteOrder)),
		slog.Int64("bias", a.bias),
		slog.Int("toc_start", a.tocStart),
	)

	return a, nil
}

// Entries returns a copy of parsed entries in TOC order.
func (a *Archive) Entries() []Entry {
	if a == nil {
		return nil
	}

	entries := make([]Entry, len(a.entries))
	copy(entries, a.entries)
	return entries
}

// List yields the listing projection of every entry in TOC order.
// The sequence may be ranged over any number of times.
func (a *Archive) List() iter.Seq[EntryInfo] {
	return func(yield func(EntryInfo) bool) {
		if a == nil {
			return
		}

		for i := range a.entries {
			if !yield(a.entries[i].Info()) {
				return
			}
		}
	}
}

// Variant returns the detected TOC record shape.
func (a *Archive) Variant() Variant { return a.variant }

// ByteOrder returns the detected dword encoding.
func (a *Archive) ByteOrder() ByteOrder { return a.byteOrder }

// Bias returns the resolved offset correction.
func (a *Archive) Bias() int64 { return a.bias }

// Version returns the raw trailer version text.
func (a *Archive) Version() string { return a.version }

// Signature returns the trailer magic the archive was found by.
func (a *Archive) Signature() string { return a.signature }

// DataAreaEnd returns the absolute offset where the TOC begins.
func (a *Archive) DataAreaEnd() int { return a.tocStart }

// Warnings returns non-fatal parse findings such as ErrVersionMismatch.
func (a *Archive) Warnings() []error {
	out := make([]error, len(a.warnings))
	copy(out, a.warnings)
	return out
}

// SFX returns the self-extractor stub bytes preceding the first payload.
func (a *Archive) SFX() []byte {
	return a.data[:a.sfxEnd:a.sfxEnd]
}

// Suffix returns bytes stored after the signature.
func (a *Archive) Suffix() []byte {
	return a.data[a.suffixPos:len(a.data):len(a.data)]
}
