// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/text/encoding/charmap"
)

// tocCandidate is one byte order / record shape interpretation to try.
type tocCandidate struct {
	order   ByteOrder
	variant Variant
	count   uint32
}

// String implements fmt.Stringer for diagnostics.
func (c tocCandidate) String() string {
	return fmt.Sprintf("%s/%s count=%d", c.variant, c.order, c.count)
}

// tocWalk is the result of one successful backward walk.
type tocWalk struct {
	entries []Entry
	variant Variant
	order   ByteOrder
	// start is the first TOC byte, i.e. the end of the data area.
	start int
	// span is the TOC byte length between start and the count field.
	span int
}

// decodeTOC evaluates all permitted candidates and returns the best scoring walk.
func decodeTOC(buf []byte, t trailer, opts ParseOptions, logger *slog.Logger) (tocWalk, error) {
	candidates := tocCandidates(t.rawCount, opts.ByteOrder, opts.Variant)

	var (
		best     tocWalk
		found    bool
		failures []error
	)
	for _, c := range candidates {
		walk, err := walkTOC(buf, t.countPos, c)
		if err != nil {
			logger.Debug("toc candidate rejected", slog.String("candidate", c.String()), slog.Any("reason", err))
			failures = append(failures, fmt.Errorf("%s: %w", c, err))
			continue
		}

		logger.Debug("toc candidate accepted", slog.String("candidate", c.String()), slog.Int("span", walk.span))
		if !found || betterWalk(walk, best) {
			best = walk
			found = true
		}
	}

	if !found {
		return tocWalk{}, fmt.Errorf("%w: %w", ErrTocDecode, errors.Join(failures...))
	}

	return best, nil
}

// tocCandidates expands the raw count field into every permitted interpretation.
// Identical counts under both byte orders are evaluated once per variant.
func tocCandidates(raw [dwordSize]byte, orderHint ByteOrder, variantHint Variant) []tocCandidate {
	orders := []ByteOrder{ByteOrderBig, ByteOrderLittle}
	if orderHint != ByteOrderAuto {
		orders = []ByteOrder{orderHint}
	}

	variants := []Variant{VariantNew, VariantOld}
	if variantHint != VariantAuto {
		variants = []Variant{variantHint}
	}

	out := make([]tocCandidate, 0, len(orders)*len(variants))
	seen := make(map[uint32]struct{}, len(orders))
	for _, order := range orders {
		count := order.binary().Uint32(raw[:])
		if _, dup := seen[count]; dup {
			continue
		}
		seen[count] = struct{}{}

		for _, variant := range variants {
			out = append(out, tocCandidate{order: order, variant: variant, count: count})
		}
	}

	return out
}

// betterWalk reports whether a should be preferred over b.
// Smaller TOC span wins, then the new variant, then big-endian.
func betterWalk(a, b tocWalk) bool {
	if a.span != b.span {
		return a.span < b.span
	}

	if a.variant != b.variant {
		return a.variant == VariantNew
	}

	if a.order != b.order {
		return a.order == ByteOrderBig
	}

	return false
}

// walkTOC parses c.count records backward starting right before the count field at end.
func walkTOC(buf []byte, end int, c tocCandidate) (tocWalk, error) {
	order := c.order.binary()

	minRecord := uint64(recordFixed + 1 + recordTailSize(c.variant))
	if uint64(c.count)*minRecord > uint64(end) {
		return tocWalk{}, fmt.Errorf("count %d cannot fit before offset %d", c.count, end)
	}

	entries := make([]Entry, 0, c.count)
	pos := end
	for i := uint32(0); i < c.count; i++ {
		entry, start, err := readRecordBackward(buf, pos, order, c.variant)
		if err != nil {
			return tocWalk{}, fmt.Errorf("record %d ending at %d: %w", i, pos, err)
		}

		entries = append(entries, entry)
		pos = start
	}

	return tocWalk{
		entries: entries,
		variant: c.variant,
		order:   c.order,
		start:   pos,
		span:    end - pos,
	}, nil
}

// recordTailSize returns byte count of fields following the path.
func recordTailSize(variant Variant) int {
	if variant == VariantNew {
		return dwordSize + flagSize
	}

	return dwordSize
}

// readRecordBackward decodes one record that ends at pos and returns it with the record start.
func readRecordBackward(buf []byte, pos int, order binary.ByteOrder, variant Variant) (Entry, int, error) {
	lenPos := pos - recordTailSize(variant)
	if lenPos < 0 {
		return Entry{}, 0, errors.New("record tail before start of input")
	}

	n := order.Uint32(buf[lenPos : lenPos+dwordSize])
	if n == 0 || n > MaxPathLen {
		return Entry{}, 0, fmt.Errorf("implausible path length %d", n)
	}

	start := lenPos - int(n) - recordFixed
	if start < 0 {
		return Entry{}, 0, fmt.Errorf("record of path length %d runs before start of input", n)
	}

	rawPath := buf[start+recordFixed : lenPos]
	if !isPrintablePath(rawPath) {
		return Entry{}, 0, errors.New("path bytes are not printable text")
	}

	entry := Entry{
		Path:   decodeWindowsText(rawPath),
		Offset: order.Uint32(buf[start : start+4]),
		Length: order.Uint32(buf[start+4 : start+8]),
		Size:   order.Uint32(buf[start+8 : start+12]),
	}

	switch variant {
	case VariantNew:
		switch flag := buf[pos-1]; flag {
		case 0:
			entry.Kind = KindFile
		case 1:
			entry.Kind = KindDirectory
		default:
			return Entry{}, 0, fmt.Errorf("invalid directory flag %#x", flag)
		}
	default:
		// Old records have no flag: an empty file still compresses to 8 bytes,
		// so zero offset and zero size only happens for directories.
		entry.Kind = KindFile
		if entry.Offset == 0 && entry.Size == 0 {
			entry.Kind = KindDirectory
		}
	}

	return entry, start, nil
}

// isPrintablePath reports whether raw contains only 8-bit text without control bytes.
func isPrintablePath(raw []byte) bool {
	for _, b := range raw {
		if b < 0x20 || b == 0x7f {
			return false
		}
	}

	return true
}

// decodeWindowsText decodes Windows-1252 bytes to UTF-8.
func decodeWindowsText(raw []byte) string {
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}

	return string(out)
}
