// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// maxSanitizedSegmentLen limits one path segment to common filesystem-safe length.
const maxSanitizedSegmentLen = 240

// reservedDeviceNames contains case-insensitive reserved DOS/Windows device names.
var reservedDeviceNames = map[string]struct{}{
	"aux": {}, "con": {}, "nul": {}, "prn": {}, "clock$": {}, "config$": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {}, "com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {}, "lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// SanitizePath rewrites an archive path to deterministic filesystem-safe slash-separated form.
// Paths that would escape the extraction root fail with ErrPathSecurity.
func SanitizePath(entryPath string) (string, error) {
	normalized, err := normalizeExtractEntryPath(entryPath)
	if err != nil {
		return "", err
	}

	return sanitizeRelativePath(normalized), nil
}

// sanitizeRelativePath sanitizes each segment of a safe relative slash-separated path.
func sanitizeRelativePath(relativePath string) string {
	parts := strings.Split(relativePath, "/")
	for i := range parts {
		parts[i] = sanitizePathSegment(parts[i])
	}

	return strings.Join(parts, "/")
}

// sanitizePathSegment rewrites one segment for broad filesystem compatibility.
func sanitizePathSegment(segment string) string {
	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range strings.TrimSpace(segment) {
		if isUnsafeControlCharRune(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			b.WriteRune('_')
			continue
		}

		b.WriteRune(r)
	}

	sanitized := strings.TrimRight(b.String(), ". ")
	if sanitized == "" {
		return "_"
	}

	if isReservedDeviceName(sanitized) {
		sanitized = "_" + sanitized
	}

	if len(sanitized) > maxSanitizedSegmentLen {
		sanitized = shortenSegmentDeterministic(sanitized, maxSanitizedSegmentLen)
	}

	return sanitized
}

// isUnsafeControlCharRune reports whether rune is unsafe in file names.
func isUnsafeControlCharRune(r rune) bool {
	return unicode.IsControl(r) || unicode.In(r, unicode.Cf) || r == '\uFFFD'
}

// isReservedDeviceName reports whether the base name before the first dot is a reserved device.
func isReservedDeviceName(name string) bool {
	candidate := strings.ToLower(name)
	if dot := strings.IndexByte(candidate, '.'); dot >= 0 {
		candidate = candidate[:dot]
	}

	_, ok := reservedDeviceNames[strings.TrimSpace(candidate)]
	return ok
}

// shortenSegmentDeterministic shortens long segment and keeps a hash suffix for identity.
func shortenSegmentDeterministic(value string, maxLen int) string {
	if len(value) <= maxLen {
		return value
	}

	hashPart := fmt.Sprintf("~%016x", xxhash.Sum64String(value))

	return truncateUTF8(value, maxLen-len(hashPart)) + hashPart
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}
