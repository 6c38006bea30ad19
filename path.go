// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// NormalizePath converts an archive path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, `\`, `/`)
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return raw
}

// normalizePathForMatching prepares a rule pattern for matching.
// Unlike NormalizePath it keeps leading "/" anchors and trailing "/" directory markers.
func normalizePathForMatching(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	pattern = strings.ReplaceAll(pattern, `\`, `/`)
	return strings.TrimPrefix(pattern, "./")
}

// ToWindowsPath converts a slash or backslash separated path to archive form with "\" separators.
func ToWindowsPath(raw string) string {
	return strings.ReplaceAll(NormalizePath(raw), "/", `\`)
}

// normalizeExtractEntryPath maps an archive path to a safe relative slash-separated path.
// Drive letters, device prefixes and root markers are stripped; ".." segments are rejected.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathSecurity)
	}
	if strings.ContainsRune(raw, 0) {
		return "", fmt.Errorf("%w: NUL in %q", ErrPathSecurity, entryPath)
	}

	raw = stripWindowsRoot(strings.ReplaceAll(raw, `\`, `/`))

	parts := strings.Split(raw, "/")
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("%w: parent reference in %q", ErrPathSecurity, entryPath)
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", fmt.Errorf("%w: %q has no name", ErrPathSecurity, entryPath)
	}

	return strings.Join(cleanParts, "/"), nil
}

// stripWindowsRoot removes leading device prefixes (//?/, //./), drive letters and root slashes.
func stripWindowsRoot(p string) string {
	for {
		switch {
		case strings.HasPrefix(p, "//?/"), strings.HasPrefix(p, "//./"):
			p = p[4:]
		case hasWindowsDrivePrefix(p):
			p = p[2:]
		case strings.HasPrefix(p, "/"):
			p = strings.TrimLeft(p, "/")
		default:
			return p
		}
	}
}

// hasWindowsDrivePrefix reports whether path starts with a drive designator like C:.
func hasWindowsDrivePrefix(p string) bool {
	return len(p) >= 2 && isASCIIAlpha(p[0]) && p[1] == ':'
}

// isASCIIAlpha reports whether byte is ASCII latin letter.
func isASCIIAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// resolveOutputPath joins a safe relative path to root and verifies the result stays inside root.
func resolveOutputPath(rootAbs, relSlash string) (string, error) {
	out := filepath.Join(rootAbs, filepath.FromSlash(relSlash))
	rel, err := filepath.Rel(rootAbs, out)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPathSecurity, err)
	}

	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q resolves outside extraction root", ErrPathSecurity, relSlash)
	}

	return out, nil
}
