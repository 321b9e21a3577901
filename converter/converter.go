/*
Package converter pre-renders the Deep Zoom pyramids of a slide directory into a
static site that needs no tile server:

	index.html                                gallery of converted slides
	view/{slide}.html                         viewer page
	tiles/{slide}.dzi                         descriptor, written after all tiles
	tiles/{slide}_files/{level}/{col}_{row}.jpeg

Slides whose descriptor exists and whose tile directory is non-empty are not
regenerated.  Viewer and index pages are always rewritten.
*/
package converter

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/wsiview/datastore"
	"github.com/janelia-flyem/wsiview/deepzoom"
	"github.com/janelia-flyem/wsiview/pages"
	"github.com/janelia-flyem/wsiview/wsi"
)

const (
	// DefaultTileSize and DefaultOverlap give 256 pixel tiles including overlap.
	DefaultTileSize = 254
	DefaultOverlap  = 1

	// DefaultQuality is the JPEG quality of converted tiles.
	DefaultQuality = 90
)

// Options control a conversion run.
type Options struct {
	// SlideDir holds the slides to convert.
	SlideDir string

	// Output is a local directory or a bucket URL.  See OpenSink.
	Output string

	// Extension and Backend select and open slide files.  Empty values use the
	// datastore defaults.
	Extension string
	Backend   string

	Tiles   deepzoom.Options
	Quality int

	// Workers bounds the number of tiles generated concurrently.
	Workers int

	// Title and ViewerScript customize the generated pages.
	Title        string
	ViewerScript string
}

// DefaultOptions returns the options of a standard conversion.
func DefaultOptions(slideDir, output string) Options {
	return Options{
		SlideDir: slideDir,
		Output:   output,
		Tiles: deepzoom.Options{
			TileSize:    DefaultTileSize,
			Overlap:     DefaultOverlap,
			LimitBounds: true,
			Format:      wsi.JPEG,
		},
		Quality: DefaultQuality,
		Workers: wsi.NumCPU,
	}
}

// SlideResult is the outcome of converting one slide.
type SlideResult struct {
	Filename string
	Name     string

	// Skipped is true if an existing pyramid was kept.
	Skipped bool

	Tiles         int64
	Bytes         int64
	Width, Height int64

	Err error
}

// Report summarizes a conversion run.
type Report struct {
	Slides  []SlideResult
	Elapsed time.Duration
}

// Converted returns the names of slides included in the index.
func (r *Report) Converted() []string {
	var names []string
	for _, s := range r.Slides {
		if s.Err == nil {
			names = append(names, s.Name)
		}
	}
	return names
}

// Failed returns the number of slides that could not be converted.
func (r *Report) Failed() int {
	var n int
	for _, s := range r.Slides {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// TilesWritten returns the total number of tiles generated.
func (r *Report) TilesWritten() int64 {
	var n int64
	for _, s := range r.Slides {
		n += s.Tiles
	}
	return n
}

// Convert converts every slide in the slide directory into the output location.
// Failures of individual slides are logged and recorded in the report.  An error is
// returned only if the run could not start or was cancelled.
func Convert(ctx context.Context, opts Options) (*Report, error) {
	sink, err := OpenSink(ctx, opts.Output)
	if err != nil {
		return nil, err
	}
	report, err := ConvertTo(ctx, opts, sink)
	if closeErr := sink.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return report, err
}

// ConvertTo is like Convert but writes to the given sink, which is not closed.
func ConvertTo(ctx context.Context, opts Options, sink Sink) (*Report, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Tiles.Format != wsi.JPEG && opts.Tiles.Format != wsi.PNG {
		return nil, fmt.Errorf("tiles can only be jpeg or png, not %s", opts.Tiles.Format)
	}
	// Only the slide being converted needs to stay open.
	store, err := datastore.New(datastore.Config{
		Dir:       opts.SlideDir,
		Extension: opts.Extension,
		Backend:   opts.Backend,
		Tiles:     opts.Tiles,
		MaxSlides: 1,
	})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	infos, err := store.List()
	if err != nil {
		return nil, err
	}
	timedLog := wsi.NewTimeLog()
	wsi.Infof("Found %d %s slides in %s, writing to %s\n", len(infos), store.Extension(), store.Dir(), sink)

	report := &Report{}
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result := convertSlide(ctx, store, sink, opts, info)
		if result.Err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			wsi.Errorf("Unable to convert %s: %v\n", info.Filename, result.Err)
		}
		report.Slides = append(report.Slides, result)
	}

	idx := pages.Index{Title: opts.Title}
	for _, name := range report.Converted() {
		idx.Cards = append(idx.Cards, pages.Card{
			Name:    name,
			ViewURL: "view/" + pages.PathEscape(name) + ".html",
		})
	}
	var buf bytes.Buffer
	if err := pages.StaticIndex(&buf, idx); err != nil {
		return report, err
	}
	if err := sink.Write(ctx, "index.html", buf.Bytes()); err != nil {
		return report, err
	}
	report.Elapsed = timedLog.Elapsed()

	var totalBytes int64
	for _, s := range report.Slides {
		totalBytes += s.Bytes
	}
	timedLog.Infof("Converted %d of %d slides: %s tiles, %s written", len(report.Converted()), len(infos),
		humanize.Comma(report.TilesWritten()), humanize.Bytes(uint64(totalBytes)))
	return report, nil
}

func convertSlide(ctx context.Context, store *datastore.Store, sink Sink, opts Options, info datastore.SlideInfo) SlideResult {
	result := SlideResult{
		Filename: info.Filename,
		Name:     info.Slug,
	}
	wsi.Infof("Processing %s (%s) ...\n", result.Name, humanize.Bytes(uint64(info.Size)))

	h, err := store.Get(info.Filename)
	if err != nil {
		result.Err = err
		return result
	}
	defer h.Release()
	result.Width, result.Height = h.Generator.Dimensions()

	dziKey := "tiles/" + result.Name + ".dzi"
	filesPrefix := "tiles/" + result.Name + "_files/"
	haveDZI, err := sink.Exists(ctx, dziKey)
	if err != nil {
		result.Err = err
		return result
	}
	haveTiles, err := sink.NonEmpty(ctx, filesPrefix)
	if err != nil {
		result.Err = err
		return result
	}
	if haveDZI && haveTiles {
		wsi.Infof("  Tiles already exist for %s, skipping tile generation.\n", result.Name)
		result.Skipped = true
	} else {
		result.Tiles, result.Bytes, err = writeTiles(ctx, sink, h.Generator, filesPrefix, opts)
		if err != nil {
			result.Err = err
			return result
		}
		dzi, err := h.Generator.DZI()
		if err != nil {
			result.Err = err
			return result
		}
		if err := sink.Write(ctx, dziKey, dzi); err != nil {
			result.Err = err
			return result
		}
	}

	v := pages.Viewer{
		Name:      result.Name,
		DZIURL:    "../tiles/" + pages.PathEscape(result.Name) + ".dzi",
		BackURL:   "../index.html",
		ScriptURL: opts.ViewerScript,
	}
	var buf bytes.Buffer
	if err := pages.StaticViewer(&buf, v); err != nil {
		result.Err = err
		return result
	}
	if err := sink.Write(ctx, "view/"+result.Name+".html", buf.Bytes()); err != nil {
		result.Err = err
		return result
	}
	wsi.Infof("Completed %s\n", result.Name)
	return result
}

// writeTiles writes every tile of the pyramid, level by level, generating the tiles
// of a level concurrently.
func writeTiles(ctx context.Context, sink Sink, gen *deepzoom.Generator, prefix string, opts Options) (tiles, written int64, err error) {
	ext := gen.Options().Format.String()
	numLevels := gen.LevelCount()
	for level := 0; level < numLevels; level++ {
		timedLog := wsi.NewTimeLog()
		cols, rows := gen.LevelTiles(level)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for col := 0; col < cols; col++ {
			for row := 0; row < rows; row++ {
				col, row := col, row
				g.Go(func() error {
					if err := gctx.Err(); err != nil {
						return err
					}
					data, err := gen.EncodedTile(level, col, row, opts.Quality)
					if err != nil {
						return fmt.Errorf("tile %d/%d_%d: %w", level, col, row, err)
					}
					key := fmt.Sprintf("%s%d/%d_%d.%s", prefix, level, col, row, ext)
					if err := sink.Write(gctx, key, data); err != nil {
						return err
					}
					atomic.AddInt64(&tiles, 1)
					atomic.AddInt64(&written, int64(len(data)))
					return nil
				})
			}
		}
		if err := g.Wait(); err != nil {
			return tiles, written, err
		}
		timedLog.Infof("  Generated level %d/%d (%d x %d tiles)", level, numLevels-1, cols, rows)
	}
	return tiles, written, nil
}
