// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import "slices"

// ListEntries opens a Lyme archive and returns its listing without extracting payloads.
func ListEntries(path string) ([]EntryInfo, error) {
	return ListEntriesWithOptions(path, ParseOptions{})
}

// ListEntriesWithOptions opens a Lyme archive and returns its listing using parse options.
func ListEntriesWithOptions(path string, opts ParseOptions) ([]EntryInfo, error) {
	a, err := OpenWithOptions(path, opts)
	if err != nil {
		return nil, err
	}

	return slices.Collect(a.List()), nil
}
