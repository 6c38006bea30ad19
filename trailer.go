// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import (
	"bytes"
	"fmt"
)

// trailer holds fixed positions found at the end of a Lyme archive.
type trailer struct {
	// version is the raw fixed-width version text.
	version string
	// signature is the magic found at signaturePos.
	signature string
	// signaturePos is the absolute offset of the first signature byte.
	signaturePos int
	// suffixPos is the first byte after the signature.
	suffixPos int
	// countPos is the absolute offset of the raw TOC count dword.
	countPos int
	// rawCount keeps count bytes undecoded until byte order is known.
	rawCount [dwordSize]byte
}

// locateTrailer scans buf backward for the signature and reads the version and count fields before it.
func locateTrailer(buf []byte) (trailer, error) {
	sigPos := lastSignatureIndex(buf)
	if sigPos < 0 {
		return trailer{}, ErrSignatureNotFound
	}

	if sigPos < versionSize+dwordSize {
		return trailer{}, fmt.Errorf("%w: signature at %d leaves no room for count and version", ErrSignatureNotFound, sigPos)
	}

	versionPos := sigPos - versionSize
	t := trailer{
		version:      string(buf[versionPos:sigPos]),
		signature:    string(buf[sigPos : sigPos+signatureSize]),
		signaturePos: sigPos,
		suffixPos:    sigPos + signatureSize,
		countPos:     versionPos - dwordSize,
	}
	copy(t.rawCount[:], buf[t.countPos:versionPos])

	return t, nil
}

// lastSignatureIndex returns the position of the signature occurrence closest to end of buf.
func lastSignatureIndex(buf []byte) int {
	return max(
		bytes.LastIndex(buf, []byte(Signature)),
		bytes.LastIndex(buf, []byte(LegacySignature)),
	)
}

// checkVersion returns a warning when version differs from KnownVersion.
func (t trailer) checkVersion() error {
	if t.version == KnownVersion {
		return nil
	}

	return fmt.Errorf("%w: %q != %q", ErrVersionMismatch, t.version, KnownVersion)
}
