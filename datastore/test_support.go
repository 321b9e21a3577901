/* Slide fixtures for testing the datastore and packages that serve slides. */

package datastore

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blang/semver"

	"github.com/janelia-flyem/wsiview/deepzoom"
	"github.com/janelia-flyem/wsiview/slide"
	"github.com/janelia-flyem/wsiview/slide/imagefile"
	"github.com/janelia-flyem/wsiview/wsi"
)

// TestBackendName is the name of a backend that opens flat images like the image
// backend but counts opens and can be slowed down.
const TestBackendName = "counting"

// TestBackend counts slide opens.
type TestBackend struct {
	opens int64
	delay int64 // nanoseconds
}

// CountingBackend is registered under TestBackendName by RegisterTestBackend.
var CountingBackend = &TestBackend{}

var registerOnce sync.Once

// RegisterTestBackend makes the counting backend available to stores.  Test
// stores and servers register it themselves.
func RegisterTestBackend() {
	registerOnce.Do(func() {
		slide.Register(CountingBackend)
	})
}

func (b *TestBackend) GetName() string { return TestBackendName }

func (b *TestBackend) GetDescription() string { return "image backend that counts opens" }

func (b *TestBackend) GetSemVer() semver.Version { return semver.MustParse("1.0.0") }

func (b *TestBackend) Open(path string) (slide.Slide, error) {
	atomic.AddInt64(&b.opens, 1)
	if d := atomic.LoadInt64(&b.delay); d > 0 {
		time.Sleep(time.Duration(d))
	}
	img, _, err := wsi.ImageFromFile(path)
	if err != nil {
		return nil, err
	}
	return imagefile.New(img), nil
}

// Opens returns the number of opens since the last Reset.
func (b *TestBackend) Opens() int64 {
	return atomic.LoadInt64(&b.opens)
}

// Reset zeroes the open count and sets the delay applied to each open.
func (b *TestBackend) Reset(delay time.Duration) {
	atomic.StoreInt64(&b.opens, 0)
	atomic.StoreInt64(&b.delay, int64(delay))
}

// TestImage returns an opaque gradient image.
func TestImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), uint8(x + y), 0xff})
		}
	}
	return img
}

// WriteTestSlide writes a PNG-encoded gradient under the given name, which
// may carry a slide extension, into dir.
func WriteTestSlide(dir, name string, w, h int) error {
	data, err := wsi.EncodeImageBytes(TestImage(w, h), wsi.PNG, 0)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("unable to write test slide %q: %w", path, err)
	}
	return nil
}

// NewTestStore returns a store over dir using the counting backend and server
// tile defaults.
func NewTestStore(dir string, maxSlides int) (*Store, error) {
	RegisterTestBackend()
	return New(Config{
		Dir:       dir,
		Extension: DefaultExtension,
		Backend:   TestBackendName,
		Tiles:     deepzoom.Options{TileSize: deepzoom.DefaultTileSize, Format: wsi.JPEG},
		MaxSlides: maxSlides,
	})
}
