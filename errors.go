// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import "errors"

// Sentinel errors for Lyme operations. Use errors.Is in callers.
var (
	// ErrSignatureNotFound means no Lyme signature was found near end of input.
	ErrSignatureNotFound = errors.New("not a Lyme archive: signature not found")
	// ErrTocDecode means no byte order / record variant produced a consistent TOC.
	ErrTocDecode = errors.New("cannot decode table of contents")
	// ErrVersionMismatch means the trailer version differs from the known one.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrDecompress means the compressed payload of an entry did not inflate cleanly.
	ErrDecompress = errors.New("decompress entry")
	// ErrSizeMismatch means the inflated length differs from the declared length.
	ErrSizeMismatch = errors.New("extracted size mismatch")
	// ErrPathSecurity means the entry path would escape the extraction root.
	ErrPathSecurity = errors.New("unsafe entry path")
	// ErrWrite means writing an extracted entry to the filesystem failed.
	ErrWrite = errors.New("write entry")
	// ErrEntryOutOfBounds means the biased payload range lies outside the data area.
	ErrEntryOutOfBounds = errors.New("entry payload out of data area bounds")
	// ErrEntryNotFound means the entry is not found.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrDuplicatePath means a later TOC entry resolves to the same output path.
	ErrDuplicatePath = errors.New("superseded by later entry with same path")
	// ErrEntryExists means an added entry collides with an existing path.
	ErrEntryExists = errors.New("entry already exists")
	// ErrEmptyInputs means no inputs provided for pack.
	ErrEmptyInputs = errors.New("no inputs provided for pack")
	// ErrInvalidEntryPath means an input path is empty, too long or not encodable.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrInvalidBias means the requested pack bias would produce negative stored offsets.
	ErrInvalidBias = errors.New("invalid offset bias")
	// ErrNilReader means the reader or archive is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrSizeOverflow means a size or offset does not fit a TOC dword.
	ErrSizeOverflow = errors.New("size exceeds uint32 TOC field")
	// ErrUnknownOption means an option holds a value outside its enumeration.
	ErrUnknownOption = errors.New("unknown option value")
)
