package slide

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"

	"github.com/janelia-flyem/wsiview/wsi"
)

// maxRegionPixels bounds the size of a single level read for a thumbnail so a slide
// without low-resolution levels can't exhaust memory.
const maxRegionPixels = 1 << 28

// Thumbnail returns an opaque preview of the whole slide that fits within maxW x maxH
// pixels while preserving the aspect ratio.  The preview is read from the best level
// for the required downsample and flattened onto the slide's background color.
func Thumbnail(s Slide, maxW, maxH int) (image.Image, error) {
	if maxW <= 0 || maxH <= 0 {
		return nil, fmt.Errorf("bad thumbnail size %d x %d", maxW, maxH)
	}
	w0, h0 := Dimensions(s)
	if w0 <= 0 || h0 <= 0 {
		return nil, wsi.DecodeError(fmt.Errorf("dimensions %d x %d", w0, h0), "empty slide")
	}
	downsample := math.Max(float64(w0)/float64(maxW), float64(h0)/float64(maxH))
	level := BestLevelForDownsample(s, downsample)
	lw, lh := s.LevelDimensions(level)
	if lw*lh > maxRegionPixels {
		return nil, wsi.DecodeError(fmt.Errorf("level %d is %d x %d pixels", level, lw, lh),
			"no level small enough for thumbnail")
	}
	region, err := s.ReadRegion(0, 0, level, int(lw), int(lh))
	if err != nil {
		return nil, err
	}
	flat := wsi.Flatten(region, BackgroundColor(s))

	tw, th := FitSize(int(lw), int(lh), maxW, maxH)
	if tw == int(lw) && th == int(lh) {
		return flat, nil
	}
	return resize.Resize(uint(tw), uint(th), flat, resize.Lanczos3), nil
}

// FitSize returns the largest size with the aspect ratio of w x h that fits within
// maxW x maxH.  Sizes already within bounds are returned unchanged.
func FitSize(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	tw := int(math.Round(float64(w) * scale))
	th := int(math.Round(float64(h) * scale))
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}
