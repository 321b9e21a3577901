package deepzoom

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/janelia-flyem/wsiview/slide"
	"github.com/janelia-flyem/wsiview/slide/imagefile"
	"github.com/janelia-flyem/wsiview/wsi"
)

// gradientSlide returns a slide whose level 0 pixel at (x,y) is (x%256, y%256, 0x40).
func gradientSlide(w, h int) *imagefile.Slide {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 0x40, 0xff})
		}
	}
	return imagefile.New(img)
}

func newGenerator(t *testing.T, s slide.Slide, opts Options) *Generator {
	t.Helper()
	g, err := New(s, opts)
	if err != nil {
		t.Fatalf("unable to create generator: %v", err)
	}
	return g
}

func TestLevels(t *testing.T) {
	g := newGenerator(t, gradientSlide(1000, 600), Options{TileSize: 256, Overlap: 1, Format: wsi.JPEG})
	if g.LevelCount() != 11 {
		t.Fatalf("expected 11 levels, got %d", g.LevelCount())
	}
	levels := []struct {
		level      int
		w, h       int64
		cols, rows int
	}{
		{0, 1, 1, 1, 1},
		{4, 16, 10, 1, 1},
		{6, 63, 38, 1, 1},
		{8, 250, 150, 1, 1},
		{9, 500, 300, 2, 2},
		{10, 1000, 600, 4, 3},
	}
	for _, tc := range levels {
		w, h := g.LevelDimensions(tc.level)
		if w != tc.w || h != tc.h {
			t.Errorf("level %d: expected %d x %d, got %d x %d", tc.level, tc.w, tc.h, w, h)
		}
		cols, rows := g.LevelTiles(tc.level)
		if cols != tc.cols || rows != tc.rows {
			t.Errorf("level %d: expected %d x %d tiles, got %d x %d", tc.level, tc.cols, tc.rows, cols, rows)
		}
	}
	if n := g.TileCount(); n != 25 {
		t.Errorf("expected 25 tiles, got %d", n)
	}
	if cols, rows := g.LevelTiles(11); cols != 0 || rows != 0 {
		t.Errorf("expected empty grid past last level, got %d x %d", cols, rows)
	}
}

func TestTileSizes(t *testing.T) {
	g := newGenerator(t, gradientSlide(1000, 600), Options{TileSize: 256, Overlap: 1, Format: wsi.JPEG})
	tests := []struct {
		level, col, row int
		w, h            int
	}{
		{10, 0, 0, 257, 257},
		{10, 1, 1, 258, 258},
		{10, 3, 0, 233, 257},
		{10, 3, 2, 233, 89},
		{9, 1, 1, 245, 45},
		{8, 0, 0, 250, 150},
		{0, 0, 0, 1, 1},
	}
	for _, tc := range tests {
		tile, err := g.Tile(tc.level, tc.col, tc.row)
		if err != nil {
			t.Errorf("tile %d/%d_%d: %v", tc.level, tc.col, tc.row, err)
			continue
		}
		b := tile.Bounds()
		if b.Dx() != tc.w || b.Dy() != tc.h {
			t.Errorf("tile %d/%d_%d: expected %d x %d, got %d x %d",
				tc.level, tc.col, tc.row, tc.w, tc.h, b.Dx(), b.Dy())
		}
	}
}

func TestTilePixels(t *testing.T) {
	g := newGenerator(t, gradientSlide(1000, 600), Options{TileSize: 256, Overlap: 1, Format: wsi.PNG})

	// First pixel of an interior tile is the overlap pixel left and above the tile origin.
	tile, err := g.Tile(10, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	r, gr, b, a := tile.At(0, 0).RGBA()
	if r>>8 != 255 || gr>>8 != 255 || b>>8 != 0x40 || a>>8 != 0xff {
		t.Errorf("bad pixel at tile origin: %d %d %d %d", r>>8, gr>>8, b>>8, a>>8)
	}
	r, gr, _, _ = tile.At(1, 1).RGBA()
	if r>>8 != 0 || gr>>8 != 0 {
		t.Errorf("expected (256,256) pixel to wrap to zero, got %d %d", r>>8, gr>>8)
	}
}

func TestTileRegion(t *testing.T) {
	g := newGenerator(t, gradientSlide(1000, 600), Options{TileSize: 256, Overlap: 1, Format: wsi.JPEG})

	r, err := g.TileRegion(TileCoord{10, 3, 2})
	if err != nil {
		t.Fatal(err)
	}
	if r.Level != 0 || r.Location != [2]int64{767, 511} || r.Size != [2]int{233, 89} {
		t.Errorf("bad full resolution region: %+v", r)
	}

	// Level 8 is a 250x150 image read from the 500x300 slide level and scaled down.
	r, err = g.TileRegion(TileCoord{8, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if r.Level != 1 || r.Location != [2]int64{0, 0} || r.Size != [2]int{500, 300} || r.TileSize != [2]int{250, 150} {
		t.Errorf("bad downsampled region: %+v", r)
	}
}

// Every tile in the grid is readable when native levels round down.
func TestOddDimensions(t *testing.T) {
	dims := [][2]int{{1025, 1023}, {2049, 5}, {7, 4097}}
	opts := []Options{
		{TileSize: 256, Overlap: 0, Format: wsi.JPEG},
		{TileSize: 254, Overlap: 1, Format: wsi.JPEG},
	}
	for _, d := range dims {
		s := gradientSlide(d[0], d[1])
		for _, o := range opts {
			g := newGenerator(t, s, o)
			for level := 0; level < g.LevelCount(); level++ {
				cols, rows := g.LevelTiles(level)
				for row := 0; row < rows; row++ {
					for col := 0; col < cols; col++ {
						c := TileCoord{level, col, row}
						r, err := g.TileRegion(c)
						if err != nil {
							t.Fatalf("%d x %d, tile size %d: region of %s: %v", d[0], d[1], o.TileSize, c, err)
						}
						if r.Size[0] < 1 || r.Size[1] < 1 {
							t.Fatalf("%d x %d: tile %s reads %v", d[0], d[1], c, r.Size)
						}
						tile, err := g.Tile(level, col, row)
						if err != nil {
							t.Fatalf("%d x %d, tile size %d: tile %s: %v", d[0], d[1], o.TileSize, c, err)
						}
						if b := tile.Bounds(); b.Dx() != r.TileSize[0] || b.Dy() != r.TileSize[1] {
							t.Errorf("%d x %d: tile %s is %v, expected %v", d[0], d[1], c, b, r.TileSize)
						}
					}
				}
			}
		}
	}
}

func TestOutOfRange(t *testing.T) {
	g := newGenerator(t, gradientSlide(1000, 600), Options{TileSize: 256, Overlap: 1, Format: wsi.JPEG})
	bad := []TileCoord{
		{-1, 0, 0},
		{11, 0, 0},
		{10, 4, 0},
		{10, 0, 3},
		{10, -1, 0},
		{0, 1, 0},
	}
	for _, c := range bad {
		if _, err := g.Tile(c.Level, c.Col, c.Row); !errors.Is(err, wsi.ErrNotFound) {
			t.Errorf("tile %s: expected not found error, got %v", c, err)
		}
		if _, err := g.EncodedTile(c.Level, c.Col, c.Row, 90); !errors.Is(err, wsi.ErrNotFound) {
			t.Errorf("encoded tile %s: expected not found error, got %v", c, err)
		}
	}
}

func TestLimitBounds(t *testing.T) {
	s := gradientSlide(1000, 600)
	props := s.Properties()
	props[slide.PropertyBoundsX] = "100"
	props[slide.PropertyBoundsY] = "50"
	props[slide.PropertyBoundsWidth] = "500"
	props[slide.PropertyBoundsHeight] = "300"

	g := newGenerator(t, s, Options{TileSize: 256, Format: wsi.PNG, LimitBounds: true})
	if w, h := g.Dimensions(); w != 500 || h != 300 {
		t.Fatalf("expected bounded dimensions 500 x 300, got %d x %d", w, h)
	}
	if g.LevelCount() != 10 {
		t.Errorf("expected 10 levels, got %d", g.LevelCount())
	}
	tile, err := g.Tile(9, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	r, gr, _, _ := tile.At(0, 0).RGBA()
	if r>>8 != 100 || gr>>8 != 50 {
		t.Errorf("expected tile to start at bounds offset (100,50), got (%d,%d)", r>>8, gr>>8)
	}

	// Without limit bounds the properties are ignored.
	g = newGenerator(t, s, Options{TileSize: 256, Format: wsi.PNG})
	if w, h := g.Dimensions(); w != 1000 || h != 600 {
		t.Errorf("expected full dimensions, got %d x %d", w, h)
	}
}

func TestBackground(t *testing.T) {
	s := imagefile.New(image.NewNRGBA(image.Rect(0, 0, 40, 30)))
	s.Properties()[slide.PropertyBackgroundColor] = "E0E0E0"
	g := newGenerator(t, s, Options{TileSize: 256, Format: wsi.PNG})
	tile, err := g.Tile(g.LevelCount()-1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	r, gr, b, a := tile.At(20, 15).RGBA()
	if r>>8 != 0xe0 || gr>>8 != 0xe0 || b>>8 != 0xe0 || a>>8 != 0xff {
		t.Errorf("transparent pixel not flattened onto background: %d %d %d %d", r>>8, gr>>8, b>>8, a>>8)
	}
}

func TestBadOptions(t *testing.T) {
	s := gradientSlide(10, 10)
	if _, err := New(s, Options{TileSize: 0}); err == nil {
		t.Errorf("expected error on zero tile size")
	}
	if _, err := New(s, Options{TileSize: 256, Overlap: -1}); err == nil {
		t.Errorf("expected error on negative overlap")
	}
}

func TestDescriptor(t *testing.T) {
	g := newGenerator(t, gradientSlide(1000, 600), Options{TileSize: 254, Overlap: 1, Format: wsi.JPEG})
	data, err := g.DZI()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("<?xml")) {
		t.Errorf("descriptor missing xml header: %s", data)
	}
	for _, want := range []string{
		`xmlns="http://schemas.microsoft.com/deepzoom/2008"`,
		`TileSize="254"`,
		`Overlap="1"`,
		`Format="jpeg"`,
		`<Size Width="1000" Height="600">`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("descriptor missing %s: %s", want, data)
		}
	}
	d, err := ParseDescriptor(data)
	if err != nil {
		t.Fatal(err)
	}
	if d.TileSize != 254 || d.Overlap != 1 || d.Format != "jpeg" || d.Size.Width != 1000 || d.Size.Height != 600 {
		t.Errorf("bad parsed descriptor: %+v", d)
	}
}

// The last tile in each direction of the top level, sized from the descriptor alone,
// must match the tile the generator produces.
func TestDescriptorConsistency(t *testing.T) {
	g := newGenerator(t, gradientSlide(700, 300), Options{TileSize: 254, Overlap: 1, Format: wsi.JPEG})
	data, err := g.DZI()
	if err != nil {
		t.Fatal(err)
	}
	d, err := ParseDescriptor(data)
	if err != nil {
		t.Fatal(err)
	}
	ts := int64(d.TileSize)
	cols := int((d.Size.Width + ts - 1) / ts)
	rows := int((d.Size.Height + ts - 1) / ts)
	top := g.LevelCount() - 1
	if c, r := g.LevelTiles(top); c != cols || r != rows {
		t.Fatalf("descriptor implies %d x %d tiles, generator has %d x %d", cols, rows, c, r)
	}
	tile, err := g.EncodedTile(top, cols-1, rows-1, 90)
	if err != nil {
		t.Fatal(err)
	}
	img, format, err := wsi.ImageFromBytes(tile)
	if err != nil {
		t.Fatalf("tile does not decode: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg tile, got %s", format)
	}
	wantW := int(d.Size.Width-ts*int64(cols-1)) + d.Overlap
	wantH := int(d.Size.Height-ts*int64(rows-1)) + d.Overlap
	if b := img.Bounds(); b.Dx() != wantW || b.Dy() != wantH {
		t.Errorf("expected last tile %d x %d, got %d x %d", wantW, wantH, b.Dx(), b.Dy())
	}
}
