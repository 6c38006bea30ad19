// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/woozymasta/pathrules"
)

// Binary layout constants and format limits.
const (
	// Signature is the trailer magic searched backward from end of input.
	Signature = "!SFX_LYME!"
	// LegacySignature is the alternative magic spelling written by Lyme SFX builders.
	LegacySignature = "!LYME_SFX!"
	// KnownVersion is the trailer version text all tested archives carry.
	KnownVersion = "1.10"
	// MaxPathLen is the largest plausible TOC path length in bytes.
	MaxPathLen = 1024

	versionSize   = 4  // fixed-width version text before signature
	dwordSize     = 4  // TOC integer field size
	recordFixed   = 12 // offset + length + size dwords
	flagSize      = 1  // new-variant directory flag
	signatureSize = 10 // len(Signature)
)

// Default tuning values.
const (
	DefaultCompressionLevel = 6
)

// Variant is the TOC record shape.
type Variant string

// TOC record variants.
const (
	// VariantAuto lets the decoder try both record shapes.
	VariantAuto Variant = ""
	// VariantNew records carry a trailing directory flag byte.
	VariantNew Variant = "new"
	// VariantOld records have no flag; directories are inferred from zero offset and size.
	VariantOld Variant = "old"
)

// ByteOrder is the integer encoding of TOC dword fields.
type ByteOrder string

// Dword byte orders.
const (
	// ByteOrderAuto lets the decoder try both byte orders.
	ByteOrderAuto ByteOrder = ""
	// ByteOrderBig is big-endian.
	ByteOrderBig ByteOrder = "big"
	// ByteOrderLittle is little-endian.
	ByteOrderLittle ByteOrder = "little"
)

// binary returns encoding/binary implementation for a concrete byte order.
func (o ByteOrder) binary() binary.ByteOrder {
	if o == ByteOrderLittle {
		return binary.LittleEndian
	}

	return binary.BigEndian
}

// appender returns encoding/binary append implementation for a concrete byte order.
func (o ByteOrder) appender() binary.AppendByteOrder {
	if o == ByteOrderLittle {
		return binary.LittleEndian
	}

	return binary.BigEndian
}

// EntryKind tells files and directories apart.
type EntryKind string

// Entry kinds.
const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
)

// OffsetMode controls whether the resolved bias is applied to stored offsets.
type OffsetMode string

// Offset resolution modes.
const (
	// OffsetModeBiased infers the constant offset bias from the data area end.
	OffsetModeBiased OffsetMode = "biased"
	// OffsetModeStored uses stored offsets as physical positions (bias 0).
	OffsetModeStored OffsetMode = "stored"
)

// Outcome is the per-entry extraction result class.
type Outcome string

// Extraction outcomes.
const (
	OutcomeExtracted Outcome = "extracted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one parsed TOC record.
type Entry struct {
	// Path is the Windows-style path as stored in TOC (backslash separators kept).
	Path string `json:"path" yaml:"path"`
	// Kind is decided once at parse time.
	Kind EntryKind `json:"kind" yaml:"kind"`
	// Offset is the stored compressed payload position before bias.
	Offset uint32 `json:"offset" yaml:"offset"`
	// Length is the inflated size in bytes.
	Length uint32 `json:"length" yaml:"length"`
	// Size is the compressed size in bytes.
	Size uint32 `json:"size" yaml:"size"`
}

// IsDir reports whether entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// Info returns the listing projection of entry.
func (e Entry) Info() EntryInfo {
	return EntryInfo{Path: e.Path, Kind: e.Kind, Length: e.Length, Size: e.Size}
}

// EntryInfo is the listing view of an entry.
type EntryInfo struct {
	Path   string    `json:"path" yaml:"path"`
	Kind   EntryKind `json:"kind" yaml:"kind"`
	Length uint32    `json:"length" yaml:"length"`
	Size   uint32    `json:"size" yaml:"size"`
}

// Payload is the extracted content of one entry.
// Directories yield Kind == KindDirectory and nil Data.
type Payload struct {
	Kind EntryKind
	Data []byte
}

// ParseOptions configures archive parsing.
type ParseOptions struct {
	// Logger receives version warnings and candidate diagnostics; nil discards.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Variant restricts the TOC record shape; empty means try both.
	Variant Variant `json:"variant,omitempty" yaml:"variant,omitempty"`
	// ByteOrder restricts dword decoding; empty means try both.
	ByteOrder ByteOrder `json:"byte_order,omitempty" yaml:"byte_order,omitempty"`
	// OffsetMode controls bias application.
	OffsetMode OffsetMode `json:"offset_mode,omitempty" yaml:"offset_mode,omitempty"`
}

// ExtractOptions configures ExtractAll behavior.
type ExtractOptions struct {
	// Logger receives per-entry failures; nil discards.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// OnEntryDone is called once per selected entry with its final result, whatever the outcome.
	// Calls may come from several goroutines.
	OnEntryDone func(result EntryResult) `json:"-" yaml:"-"`
	// Rules select entries by path; empty means all entries.
	// With rules set, unmatched entries are excluded unless MatcherOptions says otherwise.
	Rules []pathrules.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	// MatcherOptions control rule matching.
	MatcherOptions pathrules.MatcherOptions `json:"matcher_options,omitzero" yaml:"matcher_options,omitzero"`
	// MaxWorkers is number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// RawNames disables segment sanitization; traversal checks still apply.
	RawNames bool `json:"raw_names,omitempty" yaml:"raw_names,omitempty"`
}

// EntryResult is one per-entry extraction outcome.
type EntryResult struct {
	// Err explains skipped and failed outcomes.
	Err error `json:"-" yaml:"-"`
	// Path is the entry path as stored in archive.
	Path string `json:"path" yaml:"path"`
	// OutputPath is the destination on disk; empty when path was rejected.
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	// Kind is the entry kind.
	Kind EntryKind `json:"kind" yaml:"kind"`
	// Outcome classifies the result.
	Outcome Outcome `json:"outcome" yaml:"outcome"`
	// Written is number of bytes written for files.
	Written int64 `json:"written,omitempty" yaml:"written,omitempty"`
	// Checksum is xxhash64 of written bytes for files.
	Checksum uint64 `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// ExtractReport summarizes one ExtractAll run in TOC order.
type ExtractReport struct {
	Results   []EntryResult `json:"results" yaml:"results"`
	Extracted int           `json:"extracted" yaml:"extracted"`
	Skipped   int           `json:"skipped" yaml:"skipped"`
	Failed    int           `json:"failed" yaml:"failed"`
	Duration  time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Input describes one entry to be packed.
type Input struct {
	// Open returns raw source stream; ignored for directories.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`
	// Path is destination path inside archive ("/" or "\" separated).
	Path string `json:"path" yaml:"path"`
	// Dir marks a directory entry.
	Dir bool `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// PackOptions configures Pack behavior.
type PackOptions struct {
	// Stub is written before payloads (the SFX executable).
	Stub []byte `json:"-" yaml:"-"`
	// Trailer is written after the signature.
	Trailer []byte `json:"-" yaml:"-"`
	// Variant selects TOC record shape; empty means new.
	Variant Variant `json:"variant,omitempty" yaml:"variant,omitempty"`
	// ByteOrder selects dword encoding; empty means big.
	ByteOrder ByteOrder `json:"byte_order,omitempty" yaml:"byte_order,omitempty"`
	// Version is trailer version text; empty means KnownVersion.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// Signature is trailer magic; empty means Signature.
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty"`
	// Bias is subtracted from physical payload offsets when storing them.
	Bias int64 `json:"bias,omitempty" yaml:"bias,omitempty"`
	// CompressionLevel is zlib level; zero means DefaultCompressionLevel.
	CompressionLevel int `json:"compression_level,omitempty" yaml:"compression_level,omitempty"`
}

// PackResult contains pack output statistics.
type PackResult struct {
	// Entries are the written records in TOC order.
	Entries []Entry `json:"entries" yaml:"entries"`
	// DataSize is total compressed payload bytes written.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// TOCSize is total TOC record bytes written (without count and trailer).
	TOCSize int64 `json:"toc_size" yaml:"toc_size"`
	// Duration is end-to-end pack duration.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// EditOptions configures the file-based archive edit flow.
type EditOptions struct {
	// Logger receives commit progress; nil discards.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// ParseOptions are used to read the source archive.
	ParseOptions ParseOptions `json:"parse_options,omitzero" yaml:"parse_options,omitzero"`
	// PackOptions override the layout written on commit.
	// Zero fields inherit from the source archive: stub, suffix, variant, byte order, version, signature and bias.
	PackOptions PackOptions `json:"pack_options,omitzero" yaml:"pack_options,omitzero"`
	// BackupKeep controls how many backup generations are kept after successful commit.
	// 0 means remove backup, 1 keeps only `<archive>.bak`, N keeps `.bak` + `.bak.1..N-1`.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
}

// discardLogger is used when callers leave Logger nil.
var discardLogger = slog.New(slog.DiscardHandler)

// applyDefaults fills zero-valued parse options and validates enumerations.
func (opts *ParseOptions) applyDefaults() error {
	if opts.Logger == nil {
		opts.Logger = discardLogger
	}

	if opts.OffsetMode == "" {
		opts.OffsetMode = OffsetModeBiased
	}

	switch opts.Variant {
	case VariantAuto, VariantNew, VariantOld:
	default:
		return fmt.Errorf("%w: variant %q", ErrUnknownOption, opts.Variant)
	}

	switch opts.ByteOrder {
	case ByteOrderAuto, ByteOrderBig, ByteOrderLittle:
	default:
		return fmt.Errorf("%w: byte order %q", ErrUnknownOption, opts.ByteOrder)
	}

	switch opts.OffsetMode {
	case OffsetModeBiased, OffsetModeStored:
	default:
		return fmt.Errorf("%w: offset mode %q", ErrUnknownOption, opts.OffsetMode)
	}

	return nil
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.Logger == nil {
		opts.Logger = discardLogger
	}

	if opts.MatcherOptions == (pathrules.MatcherOptions{}) {
		opts.MatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if opts.MatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.MatcherOptions.DefaultAction = pathrules.ActionExclude
	}
}

// applyDefaults fills zero-valued pack options and validates enumerations.
func (opts *PackOptions) applyDefaults() error {
	if opts.Variant == VariantAuto {
		opts.Variant = VariantNew
	}

	if opts.ByteOrder == ByteOrderAuto {
		opts.ByteOrder = ByteOrderBig
	}

	if opts.Version == "" {
		opts.Version = KnownVersion
	}

	if opts.Signature == "" {
		opts.Signature = Signature
	}

	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = DefaultCompressionLevel
	}

	if opts.Variant != VariantNew && opts.Variant != VariantOld {
		return fmt.Errorf("%w: variant %q", ErrUnknownOption, opts.Variant)
	}

	if opts.ByteOrder != ByteOrderBig && opts.ByteOrder != ByteOrderLittle {
		return fmt.Errorf("%w: byte order %q", ErrUnknownOption, opts.ByteOrder)
	}

	if len(opts.Version) != versionSize {
		return fmt.Errorf("%w: version %q must be %d bytes", ErrUnknownOption, opts.Version, versionSize)
	}

	if opts.Signature != Signature && opts.Signature != LegacySignature {
		return fmt.Errorf("%w: signature %q", ErrUnknownOption, opts.Signature)
	}

	return nil
}

// applyDefaults fills zero-valued edit options.
func (opts *EditOptions) applyDefaults() {
	if opts.Logger == nil {
		opts.Logger = discardLogger
	}

	if opts.ParseOptions.Logger == nil {
		opts.ParseOptions.Logger = opts.Logger
	}

	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}
}
