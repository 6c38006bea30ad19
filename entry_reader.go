// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// findEntryByName resolves the last entry whose normalized path matches name.
// Later TOC entries shadow earlier ones with the same name.
func (a *Archive) findEntryByName(name string) *Entry {
	lookupName := strings.ToLower(NormalizePath(name))
	var found *Entry
	for i := range a.entries {
		if strings.ToLower(NormalizePath(a.entries[i].Path)) == lookupName {
			found = &a.entries[i]
		}
	}

	return found
}

// OpenEntry opens an inflating stream for a file entry.
// The stream fails with ErrSizeMismatch if the inflated length differs from entry.Length.
func (a *Archive) OpenEntry(entry Entry) (io.ReadCloser, error) {
	if a == nil {
		return nil, ErrNilReader
	}

	if entry.IsDir() {
		return nil, fmt.Errorf("open %s: entry is a directory", entry.Path)
	}

	start, end, err := payloadRange(&entry, a.bias, a.tocStart)
	if err != nil {
		return nil, fmt.Errorf("%w: %s offset=%d size=%d bias=%d", err, entry.Path, entry.Offset, entry.Size, a.bias)
	}

	return newInflateReader(entry.Path, bytes.NewReader(a.data[start:end]), entry.Length)
}

// Extract returns the inflated content of entry, or a directory marker payload for directories.
func (a *Archive) Extract(entry Entry) (Payload, error) {
	if entry.IsDir() {
		return Payload{Kind: KindDirectory}, nil
	}

	rc, err := a.OpenEntry(entry)
	if err != nil {
		return Payload{}, err
	}
	defer func() { _ = rc.Close() }()

	data := make([]byte, 0, entry.Length)
	buf := bytes.NewBuffer(data)
	if _, err := io.Copy(buf, rc); err != nil {
		return Payload{}, err
	}

	return Payload{Kind: KindFile, Data: buf.Bytes()}, nil
}

// ReadEntry reads the full content of the named entry.
// Names are matched case-insensitively with "/" and "\" treated alike; directories return nil data.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	if a == nil {
		return nil, ErrNilReader
	}

	entry := a.findEntryByName(name)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	payload, err := a.Extract(*entry)
	if err != nil {
		return nil, err
	}

	return payload.Data, nil
}
