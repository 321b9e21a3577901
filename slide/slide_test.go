package slide

import (
	"image"
	"image/color"
	"testing"

	"github.com/blang/semver"
)

// fakeSlide has fixed level dimensions and returns a solid translucent region.
type fakeSlide struct {
	dims        [][2]int64
	downsamples []float64
	props       map[string]string
	reads       int
}

func newFakeSlide(w, h int64, downsamples ...float64) *fakeSlide {
	s := &fakeSlide{props: map[string]string{}}
	for _, ds := range downsamples {
		s.dims = append(s.dims, [2]int64{int64(float64(w) / ds), int64(float64(h) / ds)})
		s.downsamples = append(s.downsamples, ds)
	}
	return s
}

func (s *fakeSlide) LevelCount() int { return len(s.dims) }

func (s *fakeSlide) LevelDimensions(level int) (int64, int64) {
	return s.dims[level][0], s.dims[level][1]
}

func (s *fakeSlide) LevelDownsample(level int) float64 { return s.downsamples[level] }

func (s *fakeSlide) Properties() map[string]string { return s.props }

func (s *fakeSlide) ReadRegion(x, y int64, level int, w, h int) (*image.NRGBA, error) {
	s.reads++
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 0xff, 0x80
	}
	return img, nil
}

func (s *fakeSlide) Close() error { return nil }

func TestBestLevelForDownsample(t *testing.T) {
	s := newFakeSlide(40000, 30000, 1, 4, 16, 32)
	tests := []struct {
		downsample float64
		level      int
	}{
		{0.5, 0},
		{1, 0},
		{3.99, 0},
		{4, 1},
		{15, 1},
		{16, 2},
		{31.9, 2},
		{32, 3},
		{1000, 3},
	}
	for _, tc := range tests {
		if got := BestLevelForDownsample(s, tc.downsample); got != tc.level {
			t.Errorf("downsample %f: expected level %d, got %d\n", tc.downsample, tc.level, got)
		}
	}
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH int
		ew, eh           int
	}{
		{100, 50, 400, 400, 100, 50},
		{1000, 500, 400, 400, 400, 200},
		{500, 1000, 400, 400, 200, 400},
		{10000, 1, 400, 400, 400, 1},
		{800, 800, 400, 400, 400, 400},
	}
	for _, tc := range tests {
		w, h := FitSize(tc.w, tc.h, tc.maxW, tc.maxH)
		if w != tc.ew || h != tc.eh {
			t.Errorf("FitSize(%d,%d in %d,%d): expected %dx%d, got %dx%d\n",
				tc.w, tc.h, tc.maxW, tc.maxH, tc.ew, tc.eh, w, h)
		}
	}
}

func TestThumbnail(t *testing.T) {
	s := newFakeSlide(8000, 4000, 1, 4, 16)
	thumb, err := Thumbnail(s, 400, 400)
	if err != nil {
		t.Fatalf("unable to make thumbnail: %v\n", err)
	}
	b := thumb.Bounds()
	if b.Dx() != 400 || b.Dy() != 200 {
		t.Errorf("expected 400x200 thumbnail, got %s\n", b)
	}
	if s.reads != 1 {
		t.Errorf("expected a single region read, got %d\n", s.reads)
	}

	small := newFakeSlide(300, 200, 1)
	thumb, err = Thumbnail(small, 400, 400)
	if err != nil {
		t.Fatalf("unable to make thumbnail: %v\n", err)
	}
	if thumb.Bounds().Dx() != 300 || thumb.Bounds().Dy() != 200 {
		t.Errorf("small slide shouldn't be scaled up, got %s\n", thumb.Bounds())
	}
	if _, _, _, a := thumb.At(0, 0).RGBA(); a != 0xffff {
		t.Errorf("thumbnail should be opaque, got alpha %d\n", a)
	}

	if _, err := Thumbnail(s, 0, 400); err == nil {
		t.Errorf("expected error on zero thumbnail width\n")
	}
}

func TestBackgroundColor(t *testing.T) {
	s := newFakeSlide(10, 10, 1)
	if c := BackgroundColor(s); c != (color.RGBA{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("expected white default background, got %v\n", c)
	}
	s.props[PropertyBackgroundColor] = "102030"
	if c := BackgroundColor(s); c != (color.RGBA{0x10, 0x20, 0x30, 0xff}) {
		t.Errorf("bad background color, got %v\n", c)
	}
	s.props[PropertyBackgroundColor] = "zz"
	if c := BackgroundColor(s); c != (color.RGBA{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("expected white on bad background property, got %v\n", c)
	}
}

type fakeBackend struct {
	name  string
	slide Slide
}

func (b fakeBackend) GetName() string           { return b.name }
func (b fakeBackend) GetDescription() string    { return "fake" }
func (b fakeBackend) GetSemVer() semver.Version { return semver.MustParse("0.0.1") }
func (b fakeBackend) Open(path string) (Slide, error) {
	return b.slide, nil
}

func TestRegistry(t *testing.T) {
	fake := newFakeSlide(10, 10, 1)
	Register(fakeBackend{"zz-fake", fake})
	Register(fakeBackend{"zz-fake", nil})

	s, err := Open("zz-fake", "whatever.svs")
	if err != nil {
		t.Fatalf("unable to open through fake backend: %v\n", err)
	}
	if s != fake {
		t.Errorf("second registration should have been ignored\n")
	}
	if _, err := Open("no-such-backend", "x"); err == nil {
		t.Errorf("expected error for unknown backend\n")
	}
	found := false
	for _, name := range Backends() {
		if name == "zz-fake" {
			found = true
		}
	}
	if !found {
		t.Errorf("fake backend not listed: %v\n", Backends())
	}
	if DefaultBackend() == "" {
		t.Errorf("expected some default backend\n")
	}
}
