/*
Package slide defines the contract between wsiview and the imaging libraries that
decode whole-slide files, plus a registry of the available backends.

A Slide exposes the multi-resolution levels stored in the file.  Level 0 is the
full-resolution image and each following level is downsampled by the factor
reported by LevelDownsample.  All coordinates passed to ReadRegion are in the level 0
reference frame, as in OpenSlide.
*/
package slide

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"sync"

	"github.com/blang/semver"

	"github.com/janelia-flyem/wsiview/wsi"
)

// Well-known slide properties.  Backends that can't supply a property simply
// omit it.
const (
	PropertyVendor          = "openslide.vendor"
	PropertyBackgroundColor = "openslide.background-color"
	PropertyBoundsX         = "openslide.bounds-x"
	PropertyBoundsY         = "openslide.bounds-y"
	PropertyBoundsWidth     = "openslide.bounds-width"
	PropertyBoundsHeight    = "openslide.bounds-height"
	PropertyMPPX            = "openslide.mpp-x"
	PropertyMPPY            = "openslide.mpp-y"
	PropertyObjectivePower  = "openslide.objective-power"
)

// Slide is an opened whole-slide image.  Implementations must allow concurrent calls
// to ReadRegion.
type Slide interface {
	// LevelCount returns the number of resolution levels in the slide.
	LevelCount() int

	// LevelDimensions returns the width and height of the given level.
	LevelDimensions(level int) (w, h int64)

	// LevelDownsample returns the downsample factor of the level relative to level 0.
	LevelDownsample(level int) float64

	// Properties returns the slide's metadata.  The returned map must not be modified.
	Properties() map[string]string

	// ReadRegion returns the w x h pixels of the given level whose top left corner is
	// at (x, y) in level 0 coordinates.  Pixels outside the slide are transparent.
	ReadRegion(x, y int64, level int, w, h int) (*image.NRGBA, error)

	// Close releases the resources held by the slide.
	Close() error
}

// Backend opens slide files.
type Backend interface {
	// GetName returns the name used to select this backend.
	GetName() string

	// GetDescription returns a short human-readable description.
	GetDescription() string

	// GetSemVer returns the version of the backend or its underlying library.
	GetSemVer() semver.Version

	// Open opens the slide at path.  Missing files return an error wrapping
	// wsi.ErrNotFound and unreadable files one wrapping wsi.ErrDecode.
	Open(path string) (Slide, error)
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)

	// preferred backends in order of preference when none is configured.
	preferred = []string{"openslide", "image"}
)

// Register makes a backend available by name.  It is meant to be called from
// a backend package's init function.
func Register(b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, found := backends[b.GetName()]; found {
		wsi.Errorf("slide backend %q registered twice, ignoring second registration\n", b.GetName())
		return
	}
	backends[b.GetName()] = b
}

// GetBackend returns the backend with the given name.  An empty name returns the
// default backend.
func GetBackend(name string) (Backend, error) {
	if name == "" {
		name = DefaultBackend()
	}
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, found := backends[name]
	if !found {
		return nil, fmt.Errorf("no slide backend %q compiled into this executable (have %v)", name, backendNames())
	}
	return b, nil
}

// Backends returns the names of all registered backends in sorted order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	return backendNames()
}

func backendNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultBackend returns the most capable registered backend.
func DefaultBackend() string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	for _, name := range preferred {
		if _, found := backends[name]; found {
			return name
		}
	}
	if names := backendNames(); len(names) > 0 {
		return names[0]
	}
	return ""
}

// Open opens path using the named backend or the default one if name is empty.
func Open(backend, path string) (Slide, error) {
	b, err := GetBackend(backend)
	if err != nil {
		return nil, err
	}
	return b.Open(path)
}

// Dimensions returns the level 0 size of the slide.
func Dimensions(s Slide) (w, h int64) {
	return s.LevelDimensions(0)
}

// BestLevelForDownsample returns the level that should be read to produce an image
// downsampled by the given factor, i.e., the most downsampled level that still has
// at least the requested resolution.
func BestLevelForDownsample(s Slide, downsample float64) int {
	n := s.LevelCount()
	if n == 0 || downsample < s.LevelDownsample(0) {
		return 0
	}
	for level := 1; level < n; level++ {
		if downsample < s.LevelDownsample(level) {
			return level - 1
		}
	}
	return n - 1
}

// BackgroundColor returns the slide's background color, white if unspecified.
func BackgroundColor(s Slide) color.RGBA {
	white := color.RGBA{0xff, 0xff, 0xff, 0xff}
	hex, found := s.Properties()[PropertyBackgroundColor]
	if !found {
		return white
	}
	c, err := wsi.ParseHexColor(hex)
	if err != nil {
		wsi.Warningf("ignoring unparsable slide background color: %v\n", err)
		return white
	}
	return c
}
