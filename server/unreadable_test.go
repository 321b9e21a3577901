package server

import (
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/blang/semver"

	"github.com/janelia-flyem/wsiview/slide"
	"github.com/janelia-flyem/wsiview/wsi"
)

const unreadableBackendName = "unreadable"

// unreadableBackend opens any file as a slide whose pixels cannot be decoded.
type unreadableBackend struct{}

func init() {
	slide.Register(unreadableBackend{})
}

func (unreadableBackend) GetName() string { return unreadableBackendName }

func (unreadableBackend) GetDescription() string { return "slides with corrupt pixel data" }

func (unreadableBackend) GetSemVer() semver.Version { return semver.MustParse("0.1.0") }

func (unreadableBackend) Open(path string) (slide.Slide, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, wsi.NotFoundf("no slide at %q", path)
	}
	return unreadableSlide{}, nil
}

type unreadableSlide struct{}

func (unreadableSlide) LevelCount() int { return 1 }

func (unreadableSlide) LevelDimensions(level int) (w, h int64) { return 100, 100 }

func (unreadableSlide) LevelDownsample(level int) float64 { return 1 }

func (unreadableSlide) Properties() map[string]string { return map[string]string{} }

func (unreadableSlide) ReadRegion(x, y int64, level int, w, h int) (*image.NRGBA, error) {
	return nil, wsi.DecodeError(fmt.Errorf("corrupt tile"), "reading (%d,%d) at level %d", x, y, level)
}

func (unreadableSlide) Close() error { return nil }

func TestUnreadableSlide(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.svs"), []byte("not a slide"), 0644); err != nil {
		t.Fatal(err)
	}
	config := DefaultConfig()
	config.Slides.Dir = dir
	config.Slides.Backend = unreadableBackendName
	s := NewTestServerWithConfig(t, config)

	// Metadata needs no pixels.
	TestHTTP(t, s, "GET", "/api/x.svs.dzi", nil)
	TestHTTP(t, s, "GET", "/info/x.svs", nil)

	TestBadHTTP(t, s, "GET", "/thumbnail/x.svs", http.StatusInternalServerError)
	TestBadHTTP(t, s, "GET", "/api/x.svs_files/7/0_0.jpeg", http.StatusNotFound)
	TestBadHTTP(t, s, "GET", "/api/x.svs_files/0/0_0.png", http.StatusNotFound)
}
