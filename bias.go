// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

// resolveBias infers the constant shift applied to all stored payload offsets.
// The file payload ending last must end exactly where the TOC begins.
func resolveBias(entries []Entry, dataAreaEnd int) int64 {
	var (
		last  int64
		found bool
	)
	for i := range entries {
		if entries[i].IsDir() {
			continue
		}

		end := int64(entries[i].Offset) + int64(entries[i].Size)
		if !found || end > last {
			last = end
			found = true
		}
	}

	if !found {
		return 0
	}

	return int64(dataAreaEnd) - last
}

// sfxEnd returns the first payload byte position after bias, or dataAreaEnd when there are no files.
func sfxEnd(entries []Entry, bias int64, dataAreaEnd int) int {
	first := int64(dataAreaEnd)
	for i := range entries {
		if entries[i].IsDir() {
			continue
		}

		if start := int64(entries[i].Offset) + bias; start < first {
			first = start
		}
	}

	return int(max(first, 0))
}

// payloadRange returns the biased absolute byte range of a file entry and validates it lies in the data area.
func payloadRange(entry *Entry, bias int64, dataAreaEnd int) (int, int, error) {
	start := int64(entry.Offset) + bias
	end := start + int64(entry.Size)
	if start < 0 || end > int64(dataAreaEnd) {
		return 0, 0, ErrEntryOutOfBounds
	}

	return int(start), int(end), nil
}
