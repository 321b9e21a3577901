/*
Package imagefile is a pure Go slide backend for flat image files (TIFF, PNG, JPEG and
BMP).  The image is decoded into memory when opened and a pyramid of levels is built by
successive 2x reductions so the deep zoom generator can pick a suitable level just as it
does for vendor slides.

Register it by importing the package:

	import _ "github.com/janelia-flyem/wsiview/slide/imagefile"
*/
package imagefile

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"os"
	"sync"

	_ "image/jpeg"
	_ "image/png"

	"github.com/blang/semver"
	"github.com/nfnt/resize"

	"github.com/janelia-flyem/wsiview/slide"
	"github.com/janelia-flyem/wsiview/wsi"
)

// MinLevelSize is the size in pixels below which no further reduced levels are made.
const MinLevelSize = 512

// VendorName is reported as the openslide.vendor property of image file slides.
const VendorName = "generic-image"

func init() {
	ver, err := semver.Make("1.0.0")
	if err != nil {
		wsi.Errorf("Unable to make semver in imagefile: %v\n", err)
	}
	slide.Register(Backend{"image", "In-memory pyramid built from a flat image file", ver})
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

// Open decodes the image file at path and builds its level pyramid.
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
	img, format, err := wsi.ImageFromFile(path)
	if err != nil {
		return nil, err
	}
	s := New(img)
	s.props["imagefile.format"] = format
	return s, nil
}

// Slide is an image held in memory with precomputed reduced levels.
type Slide struct {
	mu          sync.RWMutex
	levels      []*image.NRGBA
	downsamples []float64
	props       map[string]string
}

// New returns a slide for an already decoded image.
func New(img image.Image) *Slide {
	base := wsi.ToNRGBA(img)
	s := &Slide{
		levels:      []*image.NRGBA{base},
		downsamples: []float64{1.0},
		props: map[string]string{
			slide.PropertyVendor: VendorName,
		},
	}
	w0, h0 := base.Bounds().Dx(), base.Bounds().Dy()
	cur := base
	for {
		w, h := cur.Bounds().Dx(), cur.Bounds().Dy()
		if w <= MinLevelSize && h <= MinLevelSize {
			break
		}
		nw, nh := w/2, h/2
		if nw < 1 || nh < 1 {
			break
		}
		cur = wsi.ToNRGBA(resize.Resize(uint(nw), uint(nh), cur, resize.Bilinear))
		s.levels = append(s.levels, cur)
		ds := (float64(w0)/float64(nw) + float64(h0)/float64(nh)) / 2
		s.downsamples = append(s.downsamples, ds)
	}
	return s
}

func (s *Slide) LevelCount() int {
	return len(s.downsamples)
}

func (s *Slide) LevelDimensions(level int) (w, h int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if level < 0 || level >= len(s.levels) || s.levels[level] == nil {
		return 0, 0
	}
	b := s.levels[level].Bounds()
	return int64(b.Dx()), int64(b.Dy())
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

// ReadRegion copies the requested window of a level.  Coordinates are given in the
// level 0 reference frame.
func (s *Slide) ReadRegion(x, y int64, level int, w, h int) (*image.NRGBA, error) {
	if level < 0 || level >= len(s.downsamples) {
		return nil, wsi.NotFoundf("level %d of %d-level image", level, len(s.downsamples))
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("bad region size %d x %d", w, h)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.levels[level]
	if src == nil {
		return nil, wsi.IOError(fmt.Errorf("slide closed"), "read region")
	}
	ds := s.downsamples[level]
	lx := int(math.Floor(float64(x) / ds))
	ly := int(math.Floor(float64(y) / ds))

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	r := image.Rect(lx, ly, lx+w, ly+h).Intersect(src.Bounds())
	if !r.Empty() {
		draw.Draw(dst, r.Sub(image.Pt(lx, ly)), src, r.Min, draw.Src)
	}
	return dst, nil
}

func (s *Slide) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.levels {
		s.levels[i] = nil
	}
	return nil
}
