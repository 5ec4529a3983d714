// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package sar

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// extractCopyBufferSize defines per-task buffer size for file copy during extraction.
const extractCopyBufferSize = 64 * 1024

// extractWorkItem stores one selected entry with prepared output relative paths.
type extractWorkItem struct {
	relPath string
	relDir  string
	entry   EntryInfo
}

// dirFixup records a directory entry whose mode is applied after all
// payload workers finish.
type dirFixup struct {
	path  string
	entry EntryInfo
}

// Extract writes selected entries from the container to dstDir. Extraction is
// parallelized by MaxWorkers; on failure it returns the first encountered error.
func (r *Reader) Extract(ctx context.Context, dstDir string, opts ExtractOptions) error {
	if r == nil || r.src == nil {
		return ErrNilReader
	}
	if r.isClosed() {
		return ErrClosed
	}

	opts.applyDefaults()

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}

	entries := r.entries
	if opts.Entries != nil {
		entries = opts.Entries
	}

	if len(entries) == 0 {
		return nil
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	workItems, err := prepareExtractWorkItems(entries)
	if err != nil {
		return err
	}

	if len(workItems) == 0 {
		return nil
	}

	fixups, err := prepareExtractDirs(dstRootAbs, workItems)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, task := range workItems {
		if task.entry.Kind == KindDir || task.entry.Kind == KindOther {
			continue
		}

		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			return r.extractPreparedEntry(dstRootAbs, task, opts)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return applyDirModes(fixups, opts.OnEntryDone)
}

// prepareExtractWorkItems validates selected entries and prepares relative fs paths.
func prepareExtractWorkItems(entries []EntryInfo) ([]extractWorkItem, error) {
	workItems := make([]extractWorkItem, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.Path) == "" {
			continue
		}

		normalizedPath, err := normalizeExtractEntryPath(entry.Path)
		if err != nil {
			return nil, fmt.Errorf("normalize entry path %s: %w", entry.Path, err)
		}

		relPath := filepath.FromSlash(normalizedPath)
		relDir := filepath.Dir(relPath)
		if relDir == "." || relDir == "" {
			relDir = ""
		}

		workItems = append(workItems, extractWorkItem{
			entry:   entry,
			relPath: relPath,
			relDir:  relDir,
		})
	}

	return workItems, nil
}

// prepareExtractDirs creates directory entries and all parent directories
// needed by work items before payload workers start. Directory modes are
// not applied here: a read-only directory entry must stay writable until
// its children land, so mode fixups are returned for application after
// the workers finish.
func prepareExtractDirs(dstRootAbs string, workItems []extractWorkItem) ([]dirFixup, error) {
	seen := make(map[string]struct{}, len(workItems))
	fixups := make([]dirFixup, 0, len(workItems))
	for _, task := range workItems {
		dir := task.relDir
		if task.entry.Kind == KindDir {
			dir = task.relPath
		}
		if dir == "" {
			continue
		}

		dirPath := filepath.Join(dstRootAbs, dir)
		if _, exists := seen[dirPath]; !exists {
			seen[dirPath] = struct{}{}
			if err := verifySymlinkFree(dstRootAbs, dir, true); err != nil {
				return nil, err
			}
			if err := os.MkdirAll(dirPath, 0o750); err != nil {
				return nil, fmt.Errorf("create output directory %s: %w", dirPath, err)
			}
		}

		if task.entry.Kind == KindDir {
			fixups = append(fixups, dirFixup{path: dirPath, entry: task.entry})
		}
	}

	return fixups, nil
}

// applyDirModes restores directory permissions children-first, so a
// read-only parent never blocks the chmod of a nested directory.
func applyDirModes(fixups []dirFixup, onEntryDone func(entry EntryInfo, written int64, outputPath string)) error {
	sort.Slice(fixups, func(i, j int) bool {
		return fixups[i].path > fixups[j].path
	})

	for _, f := range fixups {
		if perm := fs.FileMode(f.entry.Mode) & fs.ModePerm; perm != 0 {
			if err := os.Chmod(f.path, perm); err != nil {
				return fmt.Errorf("chmod %s: %w", f.path, err)
			}
		}

		if onEntryDone != nil {
			onEntryDone(f.entry, 0, f.path)
		}
	}

	return nil
}

// extractPreparedEntry writes one prepared work item to destination root.
func (r *Reader) extractPreparedEntry(dstRootAbs string, task extractWorkItem, opts ExtractOptions) error {
	outPath := filepath.Join(dstRootAbs, task.relPath)

	// A symlink entry replaces its final path component, so only its
	// ancestors are checked; everything else must be symlink-free all the
	// way down, or a hostile link routes the write outside the root.
	checkFinal := task.entry.Kind != KindSymlink
	if err := verifySymlinkFree(dstRootAbs, task.relPath, checkFinal); err != nil {
		return err
	}

	var written int64
	var err error
	switch task.entry.Kind {
	case KindSymlink:
		written, err = r.extractSymlink(task.entry, outPath)
	default:
		written, err = r.extractFile(task.entry, outPath, opts.FileMode)
	}
	if err != nil {
		return err
	}

	if opts.OnEntryDone != nil {
		opts.OnEntryDone(task.entry, written, outPath)
	}

	return nil
}

// verifySymlinkFree rejects output paths that pass through a symlink under
// the destination root. checkFinal also rejects a symlink at the target
// path itself.
func verifySymlinkFree(dstRootAbs, relPath string, checkFinal bool) error {
	cur := dstRootAbs
	parts := strings.Split(relPath, string(os.PathSeparator))
	for i, part := range parts {
		if !checkFinal && i == len(parts)-1 {
			return nil
		}

		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			return fmt.Errorf("lstat %s: %w", cur, err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s is a symlink", ErrInvalidExtractPath, cur)
		}
	}

	return nil
}

// extractSymlink re-creates a symbolic link from its stored target payload.
func (r *Reader) extractSymlink(entry EntryInfo, outPath string) (int64, error) {
	target, err := r.ReadEntry(entry.Path)
	if err != nil {
		return 0, err
	}

	// Never replace a directory: the pre-created parent of another entry
	// must not become a link that reroutes that entry's write.
	if info, err := os.Lstat(outPath); err == nil {
		if info.IsDir() {
			return 0, fmt.Errorf("%w: %s: directory in the way of a symlink", ErrInvalidExtractPath, entry.Path)
		}
		if err := os.Remove(outPath); err != nil {
			return 0, fmt.Errorf("replace %s: %w", entry.Path, err)
		}
	} else if !os.IsNotExist(err) {
		return 0, fmt.Errorf("lstat %s: %w", entry.Path, err)
	}

	if err := os.Symlink(string(target), outPath); err != nil {
		return 0, fmt.Errorf("symlink %s: %w", entry.Path, err)
	}

	return int64(len(target)), nil
}

// extractFile streams one regular file payload to disk and restores mode and mtime.
func (r *Reader) extractFile(entry EntryInfo, outPath string, fileMode ExtractFileMode) (int64, error) {
	rc, err := r.openEntryByInfo(entry)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	expectedSize, err := checkedUint64ToInt64(entry.Size)
	if err != nil {
		return 0, fmt.Errorf("entry %s size: %w", entry.Path, err)
	}

	file, needsTruncate, err := openExtractFile(outPath, fileMode, expectedSize)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", entry.Path, err)
	}

	copyBuf := make([]byte, extractCopyBufferSize)
	written, copyErr := copyExtractData(file, rc, copyBuf)
	if copyErr == nil && needsTruncate {
		if truncErr := file.Truncate(written); truncErr != nil {
			_ = file.Close()
			return written, fmt.Errorf("truncate %s: %w", entry.Path, truncErr)
		}
	}

	closeErr := file.Close()
	if copyErr != nil {
		return written, fmt.Errorf("write %s: %w", entry.Path, copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("close %s: %w", entry.Path, closeErr)
	}

	if perm := fs.FileMode(entry.Mode) & fs.ModePerm; perm != 0 {
		if err := os.Chmod(outPath, perm); err != nil {
			return written, fmt.Errorf("chmod %s: %w", entry.Path, err)
		}
	}

	if entry.ModTime > 0 {
		mtime, err := checkedUint64ToInt64(entry.ModTime)
		if err != nil {
			return written, fmt.Errorf("entry %s mtime: %w", entry.Path, err)
		}

		t := time.Unix(mtime, 0)
		if err := os.Chtimes(outPath, t, t); err != nil {
			return written, fmt.Errorf("chtimes %s: %w", entry.Path, err)
		}
	}

	return written, nil
}

// openExtractFile opens output path according to selected extract file mode.
func openExtractFile(path string, mode ExtractFileMode, expectedSize int64) (*os.File, bool, error) {
	switch mode {
	case ExtractFileModeAuto:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return file, false, nil
		}

		if !os.IsExist(err) {
			return nil, false, err
		}

		file, truncErr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		return file, false, truncErr
	case ExtractFileModeOverwriteSmart:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o600)
		if err != nil {
			return nil, false, err
		}

		info, err := file.Stat()
		if err != nil {
			_ = file.Close()
			return nil, false, err
		}

		needsTruncate := info.Size() > expectedSize
		return file, needsTruncate, nil
	case ExtractFileModeTruncate:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		return file, false, err
	case ExtractFileModeCreateOnly:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		return file, false, err
	default:
		return nil, false, fmt.Errorf("unknown extract file mode %q", mode)
	}
}

// copyExtractData copies one entry stream to output file using fixed task buffer.
func copyExtractData(dst *os.File, src io.Reader, buf []byte) (int64, error) {
	if len(buf) == 0 {
		return 0, io.ErrShortBuffer
	}

	var total int64
	for {
		readN, readErr := src.Read(buf)
		if readN > 0 {
			writeN, writeErr := dst.Write(buf[:readN])
			total += int64(writeN)

			if writeErr != nil {
				return total, writeErr
			}

			if writeN != readN {
				return total, io.ErrShortWrite
			}
		}

		if readErr == nil {
			continue
		}

		if readErr == io.EOF {
			return total, nil
		}

		return total, readErr
	}
}
