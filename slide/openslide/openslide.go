//go:build openslide

package openslide

/*
#cgo pkg-config: openslide
#include <stdlib.h>
#include <stdint.h>
#include <openslide.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"unsafe"

	"github.com/blang/semver"

	"github.com/janelia-flyem/wsiview/slide"
	"github.com/janelia-flyem/wsiview/wsi"
)

func init() {
	libVersion := C.GoString(C.openslide_get_version())
	ver, err := semver.ParseTolerant(libVersion)
	if err != nil {
		wsi.Errorf("Unable to parse OpenSlide version %q: %v\n", libVersion, err)
	}
	slide.Register(Backend{"openslide", "OpenSlide " + libVersion + " vendor slide decoder", ver})
}

// --- Backend Implementation ------

type Backend struct {
	name   string
	desc   string
	semver semver.Version
}

func (b Backend) GetName() string {
	return b.name
}

func (b Backend) GetDescription() string {
	return b.desc
}

func (b Backend) GetSemVer() semver.Version {
	return b.semver
}

func (b Backend) String() string {
	return fmt.Sprintf("%s [%s]", b.name, b.semver)
}

// Open opens a slide with openslide_open.
func (b Backend) Open(path string) (slide.Slide, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wsi.NotFoundf("slide file %q", path)
		}
		return nil, wsi.IOError(err, "unable to stat %q", path)
	}
	if fi.IsDir() {
		return nil, wsi.NotFoundf("slide file %q is a directory", path)
	}

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	osr := C.openslide_open(cpath)
	if osr == nil {
		return nil, wsi.DecodeError(errors.New("format not recognized"), "openslide can't open %q", path)
	}
	if msg := C.openslide_get_error(osr); msg != nil {
		e := C.GoString(msg)
		C.openslide_close(osr)
		return nil, wsi.DecodeError(errors.New(e), "openslide can't open %q", path)
	}

	s := &Slide{osr: osr, props: make(map[string]string)}
	numLevels := int(C.openslide_get_level_count(osr))
	if numLevels <= 0 {
		C.openslide_close(osr)
		return nil, wsi.DecodeError(fmt.Errorf("%d levels", numLevels), "openslide slide %q", path)
	}
	s.dims = make([][2]int64, numLevels)
	s.downsamples = make([]float64, numLevels)
	for level := 0; level < numLevels; level++ {
		var w, h C.int64_t
		C.openslide_get_level_dimensions(osr, C.int32_t(level), &w, &h)
		s.dims[level] = [2]int64{int64(w), int64(h)}
		s.downsamples[level] = float64(C.openslide_get_level_downsample(osr, C.int32_t(level)))
	}

	names := C.openslide_get_property_names(osr)
	ptrSize := unsafe.Sizeof(uintptr(0))
	for i := uintptr(0); ; i++ {
		cname := *(**C.char)(unsafe.Add(unsafe.Pointer(names), i*ptrSize))
		if cname == nil {
			break
		}
		value := C.openslide_get_property_value(osr, cname)
		if value != nil {
			s.props[C.GoString(cname)] = C.GoString(value)
		}
	}
	return s, nil
}

// Slide wraps an openslide_t handle.  OpenSlide handles are thread-safe so reads only
// need to be guarded against a concurrent Close.
type Slide struct {
	mu          sync.RWMutex
	osr         *C.openslide_t
	dims        [][2]int64
	downsamples []float64
	props       map[string]string
}

func (s *Slide) LevelCount() int {
	return len(s.dims)
}

func (s *Slide) LevelDimensions(level int) (w, h int64) {
	if level < 0 || level >= len(s.dims) {
		return 0, 0
	}
	return s.dims[level][0], s.dims[level][1]
}

func (s *Slide) LevelDownsample(level int) float64 {
	if level < 0 || level >= len(s.downsamples) {
		return 0
	}
	return s.downsamples[level]
}

func (s *Slide) Properties() map[string]string {
	return s.props
}

// ReadRegion calls openslide_read_region and converts its premultiplied ARGB output
// into a non-premultiplied NRGBA image.
func (s *Slide) ReadRegion(x, y int64, level int, w, h int) (*image.NRGBA, error) {
	if level < 0 || level >= len(s.dims) {
		return nil, wsi.NotFoundf("level %d of %d-level slide", level, len(s.dims))
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("bad region size %d x %d", w, h)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.osr == nil {
		return nil, wsi.IOError(errors.New("slide closed"), "read region")
	}

	buf := make([]uint32, w*h)
	C.openslide_read_region(s.osr, (*C.uint32_t)(unsafe.Pointer(&buf[0])),
		C.int64_t(x), C.int64_t(y), C.int32_t(level), C.int64_t(w), C.int64_t(h))
	if msg := C.openslide_get_error(s.osr); msg != nil {
		return nil, wsi.DecodeError(errors.New(C.GoString(msg)), "openslide read region (%d,%d) level %d", x, y, level)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	pix := img.Pix
	for i, p := range buf {
		a := p >> 24
		r := (p >> 16) & 0xff
		g := (p >> 8) & 0xff
		b := p & 0xff
		if a != 0xff && a != 0 {
			r = r * 0xff / a
			g = g * 0xff / a
			b = b * 0xff / a
		}
		j := i * 4
		pix[j] = uint8(r)
		pix[j+1] = uint8(g)
		pix[j+2] = uint8(b)
		pix[j+3] = uint8(a)
	}
	return img, nil
}

func (s *Slide) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.osr != nil {
		C.openslide_close(s.osr)
		s.osr = nil
	}
	return nil
}
