// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// packWriteBufferSize is the buffered writer size used by Pack.
const packWriteBufferSize = 1 << 20

// countingWriter counts bytes passed to the underlying writer.
type countingWriter struct {
	w io.Writer
	n int64
}

// Write implements io.Writer.
func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Pack writes a Lyme archive to out: stub, compressed payloads, TOC, count, version, signature, trailer.
// TOC records are written so that Parse returns entries in input order.
func Pack(ctx context.Context, out io.Writer, inputs []Input, opts PackOptions) (*PackResult, error) {
	if out == nil {
		return nil, ErrNilWriter
	}

	if len(inputs) == 0 {
		return nil, ErrEmptyInputs
	}

	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	started := time.Now()

	rawPaths := make([][]byte, len(inputs))
	entries := make([]Entry, len(inputs))
	for i := range inputs {
		winPath, raw, err := encodeEntryPath(inputs[i].Path)
		if err != nil {
			return nil, err
		}

		rawPaths[i] = raw
		entries[i] = Entry{Path: winPath, Kind: KindFile}
		if inputs[i].Dir {
			entries[i].Kind = KindDirectory
		}
	}

	bw := bufio.NewWriterSize(out, packWriteBufferSize)
	cw := &countingWriter{w: bw}

	if _, err := cw.Write(opts.Stub); err != nil {
		return nil, fmt.Errorf("write stub: %w", err)
	}

	res := &PackResult{}
	for i := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if entries[i].IsDir() {
			continue
		}

		physical := cw.n
		stored := physical - opts.Bias
		if stored < 0 || stored > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %s stored offset %d", ErrInvalidBias, entries[i].Path, stored)
		}

		length, err := writeCompressedInput(cw, &inputs[i], opts.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", entries[i].Path, err)
		}

		size := cw.n - physical
		if length > math.MaxUint32 || size > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %s", ErrSizeOverflow, entries[i].Path)
		}

		entries[i].Offset = uint32(stored)
		entries[i].Length = uint32(length)
		entries[i].Size = uint32(size)
		res.DataSize += size
	}

	order := opts.ByteOrder.appender()
	tocStart := cw.n
	for i := len(entries) - 1; i >= 0; i-- {
		if _, err := cw.Write(encodeRecord(order, opts.Variant, &entries[i], rawPaths[i])); err != nil {
			return nil, fmt.Errorf("write TOC: %w", err)
		}
	}
	res.TOCSize = cw.n - tocStart

	var tail []byte
	tail = order.AppendUint32(tail, uint32(len(entries))) //nolint:gosec // bounded by record count
	tail = append(tail, opts.Version...)
	tail = append(tail, opts.Signature...)
	tail = append(tail, opts.Trailer...)
	if _, err := cw.Write(tail); err != nil {
		return nil, fmt.Errorf("write trailer: %w", err)
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush archive: %w", err)
	}

	res.Entries = entries
	res.Duration = time.Since(started)
	return res, nil
}

// PackFile writes a Lyme archive to outPath.
func PackFile(ctx context.Context, outPath string, inputs []Input, opts PackOptions) (*PackResult, error) {
	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create Lyme file: %w", err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	res, err := Pack(ctx, f, inputs, opts)
	if err != nil {
		return nil, err
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync Lyme file: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close Lyme file: %w", err)
	}
	f = nil

	return res, nil
}

// writeCompressedInput deflates one input into w and returns source length.
func writeCompressedInput(w io.Writer, input *Input, level int) (int64, error) {
	if input.Open == nil {
		return 0, fmt.Errorf("%w: no source for %s", ErrInvalidEntryPath, input.Path)
	}

	src, err := input.Open()
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = src.Close() }()

	zw, err := newDeflateWriter(w, level)
	if err != nil {
		return 0, err
	}

	length, err := io.Copy(zw, src)
	if err != nil {
		_ = zw.Close()
		return 0, fmt.Errorf("compress: %w", err)
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finish compress: %w", err)
	}

	return length, nil
}

// encodeEntryPath returns archive form of path and its Windows-1252 bytes.
func encodeEntryPath(p string) (string, []byte, error) {
	winPath := ToWindowsPath(p)
	if winPath == "" {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidEntryPath, p)
	}

	raw, err := charmap.Windows1252.NewEncoder().Bytes([]byte(winPath))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %q not representable in Windows-1252: %w", ErrInvalidEntryPath, p, err)
	}

	if len(raw) > MaxPathLen || !isPrintablePath(raw) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidEntryPath, p)
	}

	return winPath, raw, nil
}

// encodeRecord serializes one TOC record in file order.
func encodeRecord(order binary.AppendByteOrder, variant Variant, entry *Entry, rawPath []byte) []byte {
	rec := make([]byte, 0, recordFixed+len(rawPath)+dwordSize+flagSize)
	rec = order.AppendUint32(rec, entry.Offset)
	rec = order.AppendUint32(rec, entry.Length)
	rec = order.AppendUint32(rec, entry.Size)
	rec = append(rec, rawPath...)
	rec = order.AppendUint32(rec, uint32(len(rawPath))) //nolint:gosec // bounded by MaxPathLen

	if variant == VariantNew {
		var flag byte
		if entry.IsDir() {
			flag = 1
		}
		rec = append(rec, flag)
	}

	return rec
}
