/*
Package deepzoom computes a Deep Zoom tile pyramid over the native levels of a slide.

Deep Zoom level N-1 is the full-resolution image and each lower level halves the
previous one (rounding up) down to a single 1x1 pixel level 0.  Each level is cut into
square tiles of TileSize pixels with Overlap extra pixels shared with each neighbour.
Tiles are read from the slide level whose resolution is closest to, but not less than,
what the Deep Zoom level requires, then scaled to the exact tile size.

See https://learn.microsoft.com/en-us/previous-versions/windows/silverlight/dotnet-windows-silverlight/cc645077(v=vs.95)
for the tile addressing scheme.
*/
package deepzoom

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/nfnt/resize"

	"github.com/janelia-flyem/wsiview/slide"
	"github.com/janelia-flyem/wsiview/wsi"
)

const (
	// DefaultTileSize is the tile size used by the tile server.
	DefaultTileSize = 256

	// DefaultOverlap is the tile overlap used by the tile server.
	DefaultOverlap = 0
)

// Options control how a slide is cut into tiles.
type Options struct {
	// TileSize is the width and height of tiles, not counting overlap.
	TileSize int

	// Overlap is the number of extra pixels added to each interior tile edge.
	Overlap int

	// LimitBounds restricts the pyramid to the non-empty slide region if the
	// slide reports bounds properties.
	LimitBounds bool

	// Format is the tile image format announced in the descriptor.
	Format wsi.Format
}

// TileCoord addresses a single tile of the pyramid.
type TileCoord struct {
	Level int
	Col   int
	Row   int
}

func (c TileCoord) String() string {
	return fmt.Sprintf("%d/%d_%d", c.Level, c.Col, c.Row)
}

// Generator produces tiles and the descriptor for a slide.  It holds no mutable state
// after construction so it may be used from multiple goroutines as long as the slide's
// ReadRegion is safe for concurrent use.
type Generator struct {
	slide      slide.Slide
	opts       Options
	background color.RGBA

	// level 0 offset of the active area
	l0Offset [2]int64

	// per slide level
	lDimensions  [][2]int64
	l0Downsample []float64

	// per deep zoom level
	zDimensions  [][2]int64
	tDimensions  [][2]int
	slideLevel   []int
	lzDownsample []float64
}

// New returns a generator for the given slide.
func New(s slide.Slide, opts Options) (*Generator, error) {
	if opts.TileSize <= 0 {
		return nil, fmt.Errorf("tile size must be positive, got %d", opts.TileSize)
	}
	if opts.Overlap < 0 {
		return nil, fmt.Errorf("overlap must be non-negative, got %d", opts.Overlap)
	}
	numLevels := s.LevelCount()
	if numLevels == 0 {
		return nil, wsi.DecodeError(fmt.Errorf("no levels"), "slide has no image data")
	}
	g := &Generator{
		slide:      s,
		opts:       opts,
		background: slide.BackgroundColor(s),
	}

	// Slide level dimensions, restricted to the active area if requested.
	w0, h0 := s.LevelDimensions(0)
	scale := [2]float64{1, 1}
	if opts.LimitBounds {
		props := s.Properties()
		g.l0Offset[0] = propInt(props, slide.PropertyBoundsX, 0)
		g.l0Offset[1] = propInt(props, slide.PropertyBoundsY, 0)
		if w0 > 0 {
			scale[0] = float64(propInt(props, slide.PropertyBoundsWidth, w0)) / float64(w0)
		}
		if h0 > 0 {
			scale[1] = float64(propInt(props, slide.PropertyBoundsHeight, h0)) / float64(h0)
		}
	}
	g.lDimensions = make([][2]int64, numLevels)
	g.l0Downsample = make([]float64, numLevels)
	for level := 0; level < numLevels; level++ {
		w, h := s.LevelDimensions(level)
		if opts.LimitBounds {
			w = int64(math.Ceil(float64(w) * scale[0]))
			h = int64(math.Ceil(float64(h) * scale[1]))
		}
		g.lDimensions[level] = [2]int64{w, h}
		g.l0Downsample[level] = s.LevelDownsample(level)
	}
	l0 := g.lDimensions[0]
	if l0[0] <= 0 || l0[1] <= 0 {
		return nil, wsi.DecodeError(fmt.Errorf("dimensions %d x %d", l0[0], l0[1]), "empty slide")
	}

	// Deep zoom levels from full resolution down to 1x1, then reversed.
	zSize := l0
	zDims := [][2]int64{zSize}
	for zSize[0] > 1 || zSize[1] > 1 {
		zSize = [2]int64{halve(zSize[0]), halve(zSize[1])}
		zDims = append(zDims, zSize)
	}
	numZ := len(zDims)
	g.zDimensions = make([][2]int64, numZ)
	for i, d := range zDims {
		g.zDimensions[numZ-1-i] = d
	}

	tileSize := int64(opts.TileSize)
	g.tDimensions = make([][2]int, numZ)
	g.slideLevel = make([]int, numZ)
	g.lzDownsample = make([]float64, numZ)
	for z := 0; z < numZ; z++ {
		d := g.zDimensions[z]
		g.tDimensions[z] = [2]int{int(ceilDiv(d[0], tileSize)), int(ceilDiv(d[1], tileSize))}

		l0zDownsample := math.Pow(2, float64(numZ-z-1))
		g.slideLevel[z] = slide.BestLevelForDownsample(s, l0zDownsample)
		g.lzDownsample[z] = l0zDownsample / g.l0Downsample[g.slideLevel[z]]
	}
	return g, nil
}

func halve(v int64) int64 {
	h := (v + 1) / 2
	if h < 1 {
		return 1
	}
	return h
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

func propInt(props map[string]string, key string, def int64) int64 {
	s, found := props[key]
	if !found {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		wsi.Warningf("ignoring bad slide property %s=%q\n", key, s)
		return def
	}
	return v
}

// Options returns the options used to construct the generator.
func (g *Generator) Options() Options {
	return g.opts
}

// LevelCount returns the number of deep zoom levels.
func (g *Generator) LevelCount() int {
	return len(g.zDimensions)
}

// LevelTiles returns the number of tile columns and rows in a level.
func (g *Generator) LevelTiles(level int) (cols, rows int) {
	if level < 0 || level >= len(g.tDimensions) {
		return 0, 0
	}
	return g.tDimensions[level][0], g.tDimensions[level][1]
}

// LevelDimensions returns the pixel dimensions of a level.
func (g *Generator) LevelDimensions(level int) (w, h int64) {
	if level < 0 || level >= len(g.zDimensions) {
		return 0, 0
	}
	return g.zDimensions[level][0], g.zDimensions[level][1]
}

// Dimensions returns the pixel dimensions of the full resolution level.
func (g *Generator) Dimensions() (w, h int64) {
	return g.lDimensions[0][0], g.lDimensions[0][1]
}

// TileCount returns the total number of tiles in the pyramid.
func (g *Generator) TileCount() int64 {
	var n int64
	for _, t := range g.tDimensions {
		n += int64(t[0]) * int64(t[1])
	}
	return n
}

// Valid returns nil if the tile coordinate lies within the pyramid or an error wrapping
// wsi.ErrNotFound otherwise.
func (g *Generator) Valid(c TileCoord) error {
	if c.Level < 0 || c.Level >= len(g.zDimensions) {
		return wsi.NotFoundf("level %d not in [0,%d]", c.Level, len(g.zDimensions)-1)
	}
	cols, rows := g.LevelTiles(c.Level)
	if c.Col < 0 || c.Col >= cols || c.Row < 0 || c.Row >= rows {
		return wsi.NotFoundf("tile %s outside %d x %d grid", c, cols, rows)
	}
	return nil
}

// Region describes the slide read required for a tile.
type Region struct {
	// Location is the top left corner in level 0 coordinates.
	Location [2]int64

	// Level is the slide level read.
	Level int

	// Size is the size of the read in pixels of the slide level.
	Size [2]int

	// TileSize is the final size of the tile after scaling.
	TileSize [2]int
}

// TileRegion returns the slide read and final size of a tile.
func (g *Generator) TileRegion(c TileCoord) (Region, error) {
	if err := g.Valid(c); err != nil {
		return Region{}, err
	}
	slideLevel := g.slideLevel[c.Level]
	tileSize := int64(g.opts.TileSize)
	overlap := int64(g.opts.Overlap)
	t := [2]int64{int64(c.Col), int64(c.Row)}
	tLim := g.tDimensions[c.Level]

	var r Region
	r.Level = slideLevel
	for i := 0; i < 2; i++ {
		// Overlap is added on the top/left edge unless in the first column/row and on the
		// bottom/right edge unless in the last.
		var tl, br int64
		if t[i] != 0 {
			tl = overlap
		}
		if t[i] != int64(tLim[i])-1 {
			br = overlap
		}
		zLim := g.zDimensions[c.Level][i]
		zSize := min64(tileSize, zLim-tileSize*t[i]) + tl + br
		r.TileSize[i] = int(zSize)

		z := tileSize*t[i] - tl
		l := g.lzDownsample[c.Level] * float64(z)
		lLim := float64(g.lDimensions[slideLevel][i])
		lSize := math.Min(math.Ceil(g.lzDownsample[c.Level]*float64(zSize)), lLim-math.Ceil(l))
		if lSize < 1 {
			// A native level slightly smaller than the deep zoom level leaves nothing
			// past the edge, so scale up its last pixel.
			l = lLim - 1
			lSize = 1
		}
		r.Location[i] = int64(g.l0Downsample[slideLevel]*l) + g.l0Offset[i]
		r.Size[i] = int(lSize)
	}
	return r, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Tile returns the opaque tile image at the given level, column and row.  Coordinates
// outside the pyramid return an error wrapping wsi.ErrNotFound.
func (g *Generator) Tile(level, col, row int) (image.Image, error) {
	c := TileCoord{level, col, row}
	r, err := g.TileRegion(c)
	if err != nil {
		return nil, err
	}
	region, err := g.slide.ReadRegion(r.Location[0], r.Location[1], r.Level, r.Size[0], r.Size[1])
	if err != nil {
		return nil, err
	}
	tile := wsi.Flatten(region, g.background)
	if r.Size[0] != r.TileSize[0] || r.Size[1] != r.TileSize[1] {
		return resize.Resize(uint(r.TileSize[0]), uint(r.TileSize[1]), tile, resize.Lanczos3), nil
	}
	return tile, nil
}

// EncodedTile returns the tile encoded in the generator's format.
func (g *Generator) EncodedTile(level, col, row, quality int) ([]byte, error) {
	tile, err := g.Tile(level, col, row)
	if err != nil {
		return nil, err
	}
	return wsi.EncodeImageBytes(tile, g.opts.Format, quality)
}
