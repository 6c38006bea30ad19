// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// inflateReader verifies that an inflated entry stream has exactly the declared length.
type inflateReader struct {
	zr   io.ReadCloser
	name string
	want int64
	got  int64
}

// newInflateReader wraps compressed src with a zlib decoder bound to want output bytes.
func newInflateReader(name string, src io.Reader, want uint32) (*inflateReader, error) {
	zr, err := zlib.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDecompress, name, err)
	}

	return &inflateReader{zr: zr, name: name, want: int64(want)}, nil
}

// Read implements io.Reader.
func (r *inflateReader) Read(p []byte) (int, error) {
	// Allow reading one byte past declared length so overruns are detected.
	if limit := r.want - r.got + 1; int64(len(p)) > limit {
		p = p[:limit]
	}

	n, err := r.zr.Read(p)
	r.got += int64(n)
	if r.got > r.want {
		return n, fmt.Errorf("%w %s: inflated more than %d bytes", ErrSizeMismatch, r.name, r.want)
	}

	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		if r.got != r.want {
			return n, fmt.Errorf("%w %s: got %d bytes, want %d", ErrSizeMismatch, r.name, r.got, r.want)
		}

		return n, io.EOF
	default:
		return n, fmt.Errorf("%w %s: %w", ErrDecompress, r.name, err)
	}
}

// Close releases the zlib decoder.
func (r *inflateReader) Close() error {
	return r.zr.Close()
}

// newDeflateWriter returns zlib writer used by Pack.
func newDeflateWriter(w io.Writer, level int) (*zlib.Writer, error) {
	zw, err := zlib.NewWriterLevel(w, level)
	if err != nil {
		return nil, fmt.Errorf("%w: compression level %d: %w", ErrUnknownOption, level, err)
	}

	return zw, nil
}
