package datastore

import (
	"fmt"

	"github.com/coocood/freecache"

	"github.com/janelia-flyem/wsiview/slide"
	"github.com/janelia-flyem/wsiview/wsi"
)

// tileKey is a unique key for an encoded image of a particular slide file version.
func (h *Handle) tileKey(kind string, a, b, c int, format wsi.Format, quality int) []byte {
	return []byte(fmt.Sprintf("%s\x00%s\x00%s/%d/%d/%d.%s:%d", h.Name, h.generation(), kind, a, b, c, format, quality))
}

func (s *Store) cached(key []byte) []byte {
	if s.tileCache == nil {
		return nil
	}
	data, err := s.tileCache.Get(key)
	if err != nil {
		if err != freecache.ErrNotFound {
			wsi.Errorf("tile cache get: %v\n", err)
		}
		return nil
	}
	return data
}

func (s *Store) cache(key, data []byte) {
	if s.tileCache == nil {
		return
	}
	if err := s.tileCache.Set(key, data, 0); err != nil {
		wsi.Debugf("not caching %d byte image: %v\n", len(data), err)
	}
}

// Tile returns an encoded deep zoom tile of the slide.  Coordinates outside the
// pyramid return an error wrapping wsi.ErrNotFound.
func (s *Store) Tile(h *Handle, level, col, row int, format wsi.Format, quality int) ([]byte, error) {
	key := h.tileKey("tile", level, col, row, format, quality)
	if data := s.cached(key); data != nil {
		return data, nil
	}
	tile, err := h.Generator.Tile(level, col, row)
	if err != nil {
		return nil, err
	}
	data, err := wsi.EncodeImageBytes(tile, format, quality)
	if err != nil {
		return nil, err
	}
	s.cache(key, data)
	return data, nil
}

// Thumbnail returns an encoded preview of the slide that fits within the given size.
func (s *Store) Thumbnail(h *Handle, maxW, maxH int, format wsi.Format, quality int) ([]byte, error) {
	key := h.tileKey("thumbnail", maxW, maxH, 0, format, quality)
	if data := s.cached(key); data != nil {
		return data, nil
	}
	img, err := slide.Thumbnail(h.Slide, maxW, maxH)
	if err != nil {
		return nil, err
	}
	data, err := wsi.EncodeImageBytes(img, format, quality)
	if err != nil {
		return nil, err
	}
	s.cache(key, data)
	return data, nil
}

// TileCacheStats returns the hit and miss counts of the encoded tile cache.
func (s *Store) TileCacheStats() (hits, misses int64) {
	if s.tileCache == nil {
		return 0, 0
	}
	return s.tileCache.HitCount(), s.tileCache.MissCount()
}
