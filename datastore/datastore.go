/*
	This file provides the highest-level view of the slide directory via a Store.
*/

package datastore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coocood/freecache"
	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"

	"github.com/janelia-flyem/wsiview/deepzoom"
	"github.com/janelia-flyem/wsiview/slide"
	"github.com/janelia-flyem/wsiview/wsi"
)

const (
	Version = "0.4"

	// DefaultExtension is the slide file extension served when none is configured.
	DefaultExtension = ".svs"
)

// ErrBadName is returned for slide names that could escape the slide directory.
var ErrBadName = fmt.Errorf("%w: bad slide name", wsi.ErrNotFound)

// Versions returns a chart of version identifiers for the datastore and the slide
// backends compiled into this executable.
func Versions() string {
	var text string = "\nCompile-time version information for this wsiview executable:\n\n"
	writeLine := func(name, version string) {
		text += fmt.Sprintf("%-15s   %s\n", name, version)
	}
	writeLine("Name", "Version")
	writeLine("wsiview", wsi.Version.String())
	writeLine("datastore", Version)
	for _, name := range slide.Backends() {
		b, err := slide.GetBackend(name)
		if err != nil {
			continue
		}
		writeLine(name, b.GetSemVer().String())
	}
	return text
}

// Config specifies the slide directory and how slides in it are served.
type Config struct {
	// Dir is the directory holding slide files.
	Dir string

	// Extension is the slide file extension, matched case-insensitively.
	Extension string

	// Backend names the slide backend used to open files.  Empty uses the default.
	Backend string

	// Tiles are the deep zoom options for every slide.
	Tiles deepzoom.Options

	// MaxSlides bounds the number of open slides.  Zero keeps every opened slide
	// for the lifetime of the process.
	MaxSlides int

	// TileCacheMB is the size of the encoded tile cache.  Zero disables it.
	TileCacheMB int
}

// SlideInfo describes a slide file in the slide directory.
type SlideInfo struct {
	Filename string
	Slug     string
	Size     int64
	ModTime  time.Time
}

// Store resolves slide names within a directory and caches open slides.
type Store struct {
	dir     string
	ext     string
	backend string
	tiles   deepzoom.Options

	mu      sync.Mutex
	handles *lru.Cache // slide name -> *Handle
	opening singleflight.Group
	pending map[string]*pendingOpen

	tileCache *freecache.Cache

	opens    uint64
	attempts uint64
	hits     uint64
}

// New returns a store for the configured slide directory.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("no slide directory specified")
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("bad slide directory %q: %w", dir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("slide directory %q is not a directory", dir)
	}
	ext := strings.ToLower(cfg.Extension)
	if ext == "" {
		ext = DefaultExtension
	} else if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	backend := cfg.Backend
	if backend == "" {
		backend = slide.DefaultBackend()
	}
	if _, err := slide.GetBackend(backend); err != nil {
		return nil, err
	}
	if cfg.Tiles.TileSize <= 0 {
		return nil, fmt.Errorf("bad tile size %d", cfg.Tiles.TileSize)
	}
	if cfg.MaxSlides < 0 {
		return nil, fmt.Errorf("bad maximum number of open slides %d", cfg.MaxSlides)
	}

	s := &Store{
		dir:     dir,
		ext:     ext,
		backend: backend,
		tiles:   cfg.Tiles,
		handles: lru.New(cfg.MaxSlides),
		pending: make(map[string]*pendingOpen),
	}
	s.handles.OnEvicted = s.evicted
	if cfg.TileCacheMB > 0 {
		s.tileCache = freecache.NewCache(cfg.TileCacheMB * wsi.Mega)
		wsi.Infof("Created freecache of ~ %d MB for encoded tiles.\n", cfg.TileCacheMB)
	}
	wsi.Infof("Serving %q slides from %s using %q backend\n", ext, dir, backend)
	return s, nil
}

// Dir returns the absolute slide directory.
func (s *Store) Dir() string {
	return s.dir
}

// Extension returns the lower-case slide extension including the leading dot.
func (s *Store) Extension() string {
	return s.ext
}

// TileOptions returns the deep zoom options used for every slide.
func (s *Store) TileOptions() deepzoom.Options {
	return s.tiles
}

func (s *Store) hasExtension(name string) bool {
	return len(name) > len(s.ext) && strings.EqualFold(name[len(name)-len(s.ext):], s.ext)
}

// Slug returns the slide name with the slide extension removed.
func (s *Store) Slug(name string) string {
	if s.hasExtension(name) {
		return name[:len(name)-len(s.ext)]
	}
	return name
}

// List returns the slide files in the slide directory sorted by name.  An empty
// directory returns an empty slice.
func (s *Store) List() ([]SlideInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, wsi.IOError(err, "unable to read slide directory %s", s.dir)
	}
	infos := []SlideInfo{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !s.hasExtension(name) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			wsi.Warningf("skipping slide %q: %v\n", name, err)
			continue
		}
		infos = append(infos, SlideInfo{
			Filename: name,
			Slug:     s.Slug(name),
			Size:     fi.Size(),
			ModTime:  fi.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Filename < infos[j].Filename })
	return infos, nil
}

// CheckName returns an error wrapping ErrBadName if the name is empty, absolute or
// has a parent directory segment.  It does not touch the file system.
func CheckName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrBadName)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q has NUL", ErrBadName, name)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return fmt.Errorf("%w: %q is absolute", ErrBadName, name)
	}
	if len(name) >= 2 && name[1] == ':' {
		return fmt.Errorf("%w: %q has a volume name", ErrBadName, name)
	}
	segments := strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' })
	for _, seg := range segments {
		if seg == ".." {
			return fmt.Errorf("%w: %q leaves slide directory", ErrBadName, name)
		}
	}
	return nil
}

// path returns the absolute path of a slide name within the slide directory.
func (s *Store) path(name string) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	p := filepath.Join(s.dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.dir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q resolves outside slide directory", ErrBadName, name)
	}
	return p, nil
}

// stat returns file info for a regular file in the slide directory.
func (s *Store) stat(name string) (string, os.FileInfo, error) {
	p, err := s.path(name)
	if err != nil {
		return "", nil, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, wsi.NotFoundf("slide %q", name)
		}
		return "", nil, wsi.IOError(err, "unable to stat slide %q", name)
	}
	if !fi.Mode().IsRegular() {
		return "", nil, wsi.NotFoundf("slide %q is not a file", name)
	}
	return p, fi, nil
}

// Resolve maps a slug to a slide file name.  The slug is tried as an exact file
// name, then with the slide extension appended, then as a prefix of slide file
// names.  Multiple prefix matches resolve to the lexically first.
func (s *Store) Resolve(slug string) (string, error) {
	if err := CheckName(slug); err != nil {
		return "", err
	}
	if _, _, err := s.stat(slug); err == nil {
		return slug, nil
	} else if !errors.Is(err, wsi.ErrNotFound) {
		return "", err
	}
	if _, _, err := s.stat(slug + s.ext); err == nil {
		return slug + s.ext, nil
	} else if !errors.Is(err, wsi.ErrNotFound) {
		return "", err
	}

	// Prefix matches are only searched within the slug's own directory.
	dir, base := filepath.Split(filepath.FromSlash(slug))
	pattern := filepath.Join(s.dir, dir, globEscape(base)+"*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", wsi.NotFoundf("slide %q", slug)
	}
	var candidates []string
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || !fi.Mode().IsRegular() || !s.hasExtension(m) {
			continue
		}
		rel, err := filepath.Rel(s.dir, m)
		if err != nil {
			continue
		}
		candidates = append(candidates, filepath.ToSlash(rel))
	}
	switch len(candidates) {
	case 0:
		return "", wsi.NotFoundf("no slide matches %q", slug)
	case 1:
	default:
		sort.Strings(candidates)
		wsi.Warningf("slug %q matches %d slides %v, using %q\n", slug, len(candidates), candidates, candidates[0])
	}
	return candidates[0], nil
}

// globEscape escapes glob metacharacters so a slug only matches literally.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Stats returns the number of slide opens, handle requests and handle cache hits.
func (s *Store) Stats() (opens, attempts, hits uint64) {
	return atomic.LoadUint64(&s.opens), atomic.LoadUint64(&s.attempts), atomic.LoadUint64(&s.hits)
}

// Close closes every slide that is not in use and marks the rest for closing on
// release.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles.Clear()
	if s.tileCache != nil {
		s.tileCache.Clear()
	}
}
