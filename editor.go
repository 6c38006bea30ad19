// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/lyme

package lyme

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Editor accumulates archive edit operations and applies them on Commit.
// Commit repacks the archive and keeps its SFX stub, suffix and layout unless PackOptions override them.
type Editor struct {
	path string
	ops  []editOperation
	opts EditOptions
}

// editOperation stores one staged editor operation.
type editOperation struct {
	inputs []Input
	paths  []string
	kind   editOperationKind
}

// editOperationKind identifies staged edit action type.
type editOperationKind uint8

const (
	// editOperationAdd appends new entries and fails on existing path.
	editOperationAdd editOperationKind = iota + 1
	// editOperationReplace rewrites existing entries in place.
	editOperationReplace
	// editOperationDelete removes exact paths.
	editOperationDelete
	// editOperationDeleteDir removes entries by directory prefix.
	editOperationDeleteDir
)

// planItem is one entry of the archive being rebuilt.
type planItem struct {
	input   Input
	removed bool
}

// editPlan keeps entries in TOC order with a case-insensitive path index.
type editPlan struct {
	index map[string]int
	items []planItem
}

// OpenEditor creates a staged editor for the archive at path.
// The archive is not read until Commit.
func OpenEditor(path string, opts EditOptions) (*Editor, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, ErrInvalidEntryPath
	}

	opts.applyDefaults()

	return &Editor{
		path: trimmedPath,
		opts: opts,
		ops:  make([]editOperation, 0, 8),
	}, nil
}

// Add schedules appending new entries; Commit fails with ErrEntryExists on path collision.
func (e *Editor) Add(inputs ...Input) error {
	return e.stageInputs(editOperationAdd, inputs)
}

// Replace schedules replacing existing entries; Commit fails with ErrEntryNotFound on missing path.
func (e *Editor) Replace(inputs ...Input) error {
	return e.stageInputs(editOperationReplace, inputs)
}

// Delete schedules exact-path removal. Missing paths are ignored.
func (e *Editor) Delete(paths ...string) error {
	return e.stagePaths(editOperationDelete, paths)
}

// DeleteDir schedules removal of a directory entry and everything below it.
func (e *Editor) DeleteDir(prefixes ...string) error {
	return e.stagePaths(editOperationDeleteDir, prefixes)
}

// stageInputs validates inputs and appends one operation.
func (e *Editor) stageInputs(kind editOperationKind, inputs []Input) error {
	if e == nil {
		return ErrNilReader
	}

	if len(inputs) == 0 {
		return nil
	}

	normalized := make([]Input, 0, len(inputs))
	for i := range inputs {
		winPath, err := normalizeEditorPath(inputs[i].Path)
		if err != nil {
			return err
		}

		item := inputs[i]
		item.Path = winPath
		normalized = append(normalized, item)
	}

	e.ops = append(e.ops, editOperation{kind: kind, inputs: normalized})
	return nil
}

// stagePaths validates paths and appends one operation.
func (e *Editor) stagePaths(kind editOperationKind, paths []string) error {
	if e == nil {
		return ErrNilReader
	}

	if len(paths) == 0 {
		return nil
	}

	normalized := make([]string, 0, len(paths))
	for _, raw := range paths {
		winPath, err := normalizeEditorPath(raw)
		if err != nil {
			return err
		}

		normalized = append(normalized, winPath)
	}

	e.ops = append(e.ops, editOperation{kind: kind, paths: normalized})
	return nil
}

// Commit applies all staged operations in one rewrite transaction.
// The source is moved to `<archive>.bak` first and restored if the rewrite fails.
func (e *Editor) Commit(ctx context.Context) (*PackResult, error) {
	if e == nil {
		return nil, ErrNilReader
	}

	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()

	backupPath := e.path + ".bak"
	if err := prepareBackupSlot(backupPath, e.opts.BackupKeep); err != nil {
		return nil, err
	}

	if err := os.Rename(e.path, backupPath); err != nil {
		return nil, fmt.Errorf("move archive to backup: %w", err)
	}

	res, err := e.commitFromBackup(ctx, backupPath)
	if err != nil {
		rollbackErr := rollbackFromBackup(e.path, backupPath)
		if rollbackErr != nil {
			return nil, fmt.Errorf("%w (rollback failed: %w)", err, rollbackErr)
		}

		return nil, err
	}

	if e.opts.BackupKeep == 0 {
		if err := removeIfExists(backupPath); err != nil {
			return nil, fmt.Errorf("remove backup: %w", err)
		}
	}

	e.opts.Logger.Info("archive edited",
		slog.String("path", e.path),
		slog.Int("operations", len(e.ops)),
		slog.Int("entries", len(res.Entries)),
		slog.Duration("duration", time.Since(started)),
	)

	return res, nil
}

// commitFromBackup writes the edited archive from backup source.
func (e *Editor) commitFromBackup(ctx context.Context, backupPath string) (*PackResult, error) {
	src, err := OpenWithOptions(backupPath, e.opts.ParseOptions)
	if err != nil {
		return nil, fmt.Errorf("parse backup: %w", err)
	}

	plan, err := buildEditPlan(src, e.ops)
	if err != nil {
		return nil, err
	}

	return PackFile(ctx, e.path, plan, inheritLayout(e.opts.PackOptions, src))
}

// inheritLayout fills zero pack options from the source archive.
// Bias is inherited only together with the stub it was measured against.
func inheritLayout(opts PackOptions, src *Archive) PackOptions {
	if opts.Stub == nil {
		opts.Stub = src.SFX()
		if opts.Bias == 0 {
			opts.Bias = src.Bias()
		}
	}

	if opts.Trailer == nil {
		opts.Trailer = src.Suffix()
	}

	if opts.Variant == VariantAuto {
		opts.Variant = src.Variant()
	}

	if opts.ByteOrder == ByteOrderAuto {
		opts.ByteOrder = src.ByteOrder()
	}

	if opts.Version == "" {
		opts.Version = src.Version()
	}

	if opts.Signature == "" {
		opts.Signature = src.Signature()
	}

	return opts
}

// normalizeEditorPath converts path to archive form and rejects empty results.
func normalizeEditorPath(raw string) (string, error) {
	winPath := ToWindowsPath(raw)
	if winPath == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
	}

	return winPath, nil
}

// editorPathKey returns case-insensitive key for archive path.
func editorPathKey(winPath string) string {
	return strings.ToLower(winPath)
}

// buildEditPlan applies staged operations to source entries and returns pack inputs in TOC order.
// Source entries shadowed by a later entry with the same path are dropped.
func buildEditPlan(src *Archive, ops []editOperation) ([]Input, error) {
	plan := &editPlan{
		index: make(map[string]int, len(src.entries)),
		items: make([]planItem, 0, len(src.entries)),
	}

	for i := range src.entries {
		entry := src.entries[i]
		winPath, err := normalizeEditorPath(entry.Path)
		if err != nil {
			return nil, fmt.Errorf("source entry: %w", err)
		}

		in := Input{Path: winPath, Dir: entry.IsDir()}
		if !entry.IsDir() {
			in.Open = func() (io.ReadCloser, error) { return src.OpenEntry(entry) }
		}

		plan.remove(editorPathKey(winPath))
		plan.append(in)
	}

	for _, op := range ops {
		switch op.kind {
		case editOperationAdd:
			for _, in := range op.inputs {
				if _, exists := plan.index[editorPathKey(in.Path)]; exists {
					return nil, fmt.Errorf("%w: %q", ErrEntryExists, in.Path)
				}

				plan.append(in)
			}
		case editOperationReplace:
			for _, in := range op.inputs {
				idx, exists := plan.index[editorPathKey(in.Path)]
				if !exists {
					return nil, fmt.Errorf("%w: %q", ErrEntryNotFound, in.Path)
				}

				plan.items[idx].input = in
			}
		case editOperationDelete:
			for _, p := range op.paths {
				plan.remove(editorPathKey(p))
			}
		case editOperationDeleteDir:
			for _, p := range op.paths {
				plan.removeDir(editorPathKey(p))
			}
		default:
			return nil, fmt.Errorf("unknown edit operation kind: %d", op.kind)
		}
	}

	inputs := make([]Input, 0, len(plan.index))
	for _, item := range plan.items {
		if !item.removed {
			inputs = append(inputs, item.input)
		}
	}

	return inputs, nil
}

// append adds input at the end of the plan.
func (p *editPlan) append(in Input) {
	key := editorPathKey(in.Path)
	p.index[key] = len(p.items)
	p.items = append(p.items, planItem{input: in})
}

// remove drops the entry stored under key, if any.
func (p *editPlan) remove(key string) {
	idx, ok := p.index[key]
	if !ok {
		return
	}

	p.items[idx].removed = true
	delete(p.index, key)
}

// removeDir drops prefix itself and every entry below it.
func (p *editPlan) removeDir(prefix string) {
	for key := range p.index {
		if key == prefix || strings.HasPrefix(key, prefix+`\`) {
			p.remove(key)
		}
	}
}

// prepareBackupSlot rotates/removes existing backup generations before new commit.
func prepareBackupSlot(backupPath string, keep int) error {
	switch keep {
	case 0, 1:
		return removeIfExists(backupPath)
	default:
		oldest := fmt.Sprintf("%s.%d", backupPath, keep-1)
		if err := removeIfExists(oldest); err != nil {
			return err
		}

		for i := keep - 2; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d", backupPath, i)
			to := fmt.Sprintf("%s.%d", backupPath, i+1)
			if err := renameIfExists(from, to); err != nil {
				return err
			}
		}

		return renameIfExists(backupPath, backupPath+".1")
	}
}

// renameIfExists renames source to destination when source exists.
func renameIfExists(from string, to string) error {
	_, err := os.Stat(from)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}

	if err := removeIfExists(to); err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	return nil
}

// removeIfExists removes file when present.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("remove %s: %w", path, err)
}

// rollbackFromBackup restores backup on failed commit.
func rollbackFromBackup(path string, backupPath string) error {
	_ = os.Remove(path)

	if err := os.Rename(backupPath, path); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}

	return nil
}
