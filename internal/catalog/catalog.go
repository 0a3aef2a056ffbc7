// Package catalog enumerates local paths into the id->descriptor mapping
// the transfer server advertises and streams from.
package catalog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/aircode-dev/aircode/pkg/protocol"
)

var extensionTypes = map[string]protocol.FileType{
	".jpg": protocol.FileTypeImage, ".jpeg": protocol.FileTypeImage,
	".png": protocol.FileTypeImage, ".gif": protocol.FileTypeImage,
	".webp": protocol.FileTypeImage, ".heic": protocol.FileTypeImage,
	".mp4": protocol.FileTypeVideo, ".mov": protocol.FileTypeVideo,
	".mkv": protocol.FileTypeVideo, ".avi": protocol.FileTypeVideo,
	".pdf": protocol.FileTypePDF,
	".txt": protocol.FileTypeText, ".md": protocol.FileTypeText,
	".csv": protocol.FileTypeText, ".log": protocol.FileTypeText,
	".apk": protocol.FileTypeAPK,
}

// entry pairs a FileDescriptor with the absolute on-disk path it streams
// from.
type entry struct {
	descriptor protocol.FileDescriptor
	path       string
}

// Catalog is an immutable, read-only-after-construction id->descriptor
// mapping plus the means to open each file's byte stream.
type Catalog struct {
	entries map[string]entry
	order   []string // insertion order, for deterministic manifest iteration
}

// Scan enumerates paths into a Catalog. Each path must be a regular file or
// a directory; directories are walked recursively without following
// symlinks. A regular file is inserted with name = its base name; a file
// under a directory is inserted with name = its slash-separated path
// relative to that directory.
func Scan(paths []string) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]entry)}

	for _, root := range paths {
		info, err := os.Lstat(root)
		if err != nil {
			return nil, fmt.Errorf("catalog: stat %q: %w", root, err)
		}

		switch {
		case info.Mode().IsRegular():
			if err := c.add(root, filepath.Base(root)); err != nil {
				return nil, err
			}
		case info.IsDir():
			if err := c.scanDir(root); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("catalog: %q is neither a regular file nor a directory", root)
		}
	}

	if len(c.entries) == 0 {
		return nil, fmt.Errorf("catalog: no files found")
	}

	return c, nil
}

func (c *Catalog) scanDir(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return c.add(path, filepath.ToSlash(rel))
	})
}

func (c *Catalog) add(path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("catalog: stat %q: %w", path, err)
	}

	id := uuid.NewString()
	modified := info.ModTime().Unix()

	descriptor := protocol.FileDescriptor{
		ID:       id,
		Name:     name,
		Size:     uint64(info.Size()),
		FileType: classify(name),
		Metadata: &protocol.FileMetadata{Modified: &modified},
	}

	c.entries[id] = entry{descriptor: descriptor, path: path}
	c.order = append(c.order, id)
	return nil
}

func classify(name string) protocol.FileType {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return protocol.FileTypeOther
}

// Descriptors returns the full id->descriptor manifest as a map, which
// carries no order; use OrderedIDs for scan order.
func (c *Catalog) Descriptors() map[string]protocol.FileDescriptor {
	out := make(map[string]protocol.FileDescriptor, len(c.entries))
	for id, e := range c.entries {
		out[id] = e.descriptor
	}
	return out
}

// OrderedIDs returns file ids in the order they were scanned, for
// deterministic iteration.
func (c *Catalog) OrderedIDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}

// Len reports how many files the catalog holds.
func (c *Catalog) Len() int { return len(c.entries) }

// Has reports whether id is a known file.
func (c *Catalog) Has(id string) bool {
	_, ok := c.entries[id]
	return ok
}

// Open returns a stream for the file identified by id, best-effort
// advisory-locked against concurrent external writers for the duration of
// the returned ReadCloser's lifetime (the lock is released on Close).
// A contended lock does not prevent the read — it only surfaces as a
// logged warning, matching "Changes during transfer may corrupt data"
// from the teacher's file-send path.
func (c *Catalog) Open(id string) (io.ReadCloser, string, error) {
	e, ok := c.entries[id]
	if !ok {
		return nil, "", fmt.Errorf("catalog: unknown file id %q", id)
	}

	f, err := os.Open(e.path)
	if err != nil {
		return nil, "", fmt.Errorf("catalog: open %q: %w", e.path, err)
	}

	lock := flock.New(e.path)
	locked, _ := lock.TryRLock() // best effort; a failed lock does not block the read
	if !locked {
		log.Printf("catalog: Warning: could not lock %q; serving it anyway", e.path)
	}

	return &lockedFile{File: f, lock: lock, locked: locked}, e.descriptor.Name, nil
}

type lockedFile struct {
	*os.File
	lock   *flock.Flock
	locked bool
}

func (l *lockedFile) Close() error {
	if l.locked {
		_ = l.lock.Unlock()
	}
	return l.File.Close()
}
