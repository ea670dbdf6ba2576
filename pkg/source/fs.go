package source

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"ingestd/pkg/logger"
	"ingestd/pkg/models"
)

// FS enumerates files in a holding directory in lexicographic name order.
// The item id is the file name, which the harvester makes unique and
// monotonic (timestamp-prefixed), so a name doubles as a resume cursor.
type FS struct {
	dir     string
	pattern string
	maxSize int64
}

var _ Source = (*FS)(nil)

// NewFS builds a filesystem source. pattern optionally restricts
// enumeration to matching names (path.Match syntax); maxSize > 0 skips
// oversized files.
func NewFS(dir, pattern string, maxSize int64) *FS {
	return &FS{dir: dir, pattern: pattern, maxSize: maxSize}
}

// Open snapshots the directory listing, drops everything at or before the
// cursor, and returns an iterator over the remainder.
func (s *FS) Open(ctx context.Context, cursor string) (Iterator, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list holding dir %s: %w", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	byName := make(map[string]os.DirEntry, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "" || name[0] == '.' {
			continue
		}
		if s.pattern != "" {
			ok, err := path.Match(s.pattern, name)
			if err != nil {
				return nil, fmt.Errorf("bad source pattern %q: %w", s.pattern, err)
			}
			if !ok {
				continue
			}
		}
		if cursor != "" && name <= cursor {
			continue
		}
		names = append(names, name)
		byName[name] = e
	}
	sort.Strings(names)

	items := make([]models.WorkItem, 0, len(names))
	for _, name := range names {
		info, err := byName[name].Info()
		if err != nil {
			// deposited file vanished between ReadDir and stat
			logger.Warn("source_stat_failed", "file", name, "error", err)
			continue
		}
		if s.maxSize > 0 && info.Size() > s.maxSize {
			logger.Warn("source_file_oversized", "file", name, "size", info.Size(), "max", s.maxSize)
			continue
		}
		items = append(items, models.WorkItem{
			ID:    name,
			Name:  name,
			Path:  filepath.Join(s.dir, name),
			Size:  info.Size(),
			ModTS: info.ModTime().UTC().UnixNano(),
		})
	}

	return &fsIterator{items: items, cursor: cursor}, nil
}

type fsIterator struct {
	items  []models.WorkItem
	pos    int
	cursor string
}

func (it *fsIterator) Next(ctx context.Context) (models.WorkItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.WorkItem{}, false, err
	}
	if it.pos >= len(it.items) {
		return models.WorkItem{}, false, nil
	}
	item := it.items[it.pos]
	it.pos++
	it.cursor = item.Name
	return item, true, nil
}

func (it *fsIterator) Cursor() string { return it.cursor }

func (it *fsIterator) Close() error { return nil }
